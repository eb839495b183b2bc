// Package telemetry exports published controller states to an MQTT broker.
// Each unit publishes a retained JSON snapshot on <prefix>/<addr>/state
// whenever the state changes, plus an optional periodic heartbeat.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/micro-nova/amplipi-preamp/internal/models"
)

const (
	subscriberID = "telemetry"
	publishWait  = 10 * time.Second
)

// Publisher is the part of mqtt.Client the exporter uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Source supplies published states.
type Source interface {
	Subscribe(id string) <-chan models.State
	Unsubscribe(id string)
	Latest() (models.State, bool)
}

// Exporter forwards states from a Source to MQTT.
type Exporter struct {
	client Publisher
	src    Source
	prefix string
	wait   time.Duration
	warn   *rate.Limiter
}

// New returns an exporter publishing under prefix.
func New(client Publisher, src Source, prefix string) *Exporter {
	return &Exporter{
		client: client,
		src:    src,
		prefix: prefix,
		wait:   publishWait,
		warn:   rate.NewLimiter(rate.Every(time.Minute), 1),
	}
}

// Topic returns the state topic of the unit at addr.
func Topic(prefix string, addr uint8) string {
	return fmt.Sprintf("%s/%02x/state", prefix, addr)
}

// Run publishes every state from the source until ctx is done. A non-empty
// heartbeat is a cron spec (e.g. "@every 1m") on which the latest state is
// published again.
func (e *Exporter) Run(ctx context.Context, heartbeat string) error {
	ch := e.src.Subscribe(subscriberID)
	defer e.src.Unsubscribe(subscriberID)

	if heartbeat != "" {
		c := cron.New()
		if _, err := c.AddFunc(heartbeat, func() {
			if st, ok := e.src.Latest(); ok {
				e.report(e.Publish(st))
			}
		}); err != nil {
			return fmt.Errorf("telemetry: heartbeat %q: %w", heartbeat, err)
		}
		c.Start()
		defer c.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-ch:
			if !ok {
				return nil
			}
			e.report(e.Publish(st))
		}
	}
}

func (e *Exporter) report(err error) {
	if err != nil && e.warn.Allow() {
		slog.Warn("telemetry: publish failed", "err", err)
	}
}

// Publish sends st. States of a unit without a bus address are skipped,
// since the address names the topic.
func (e *Exporter) Publish(st models.State) error {
	if st.Addr == 0 {
		return nil
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("telemetry: marshal: %w", err)
	}
	topic := Topic(e.prefix, st.Addr)
	token := e.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(e.wait) {
		return fmt.Errorf("telemetry: publish to %s timed out after %v", topic, e.wait)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: publish to %s: %w", topic, err)
	}
	return nil
}
