package telemetry

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const connectWait = 10 * time.Second

// Connect opens a client to broker, e.g. tcp://localhost:1883. The client
// reconnects on its own after the first successful connection.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("telemetry: connection lost", "broker", broker, "err", err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			slog.Info("telemetry: connected", "broker", broker)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectWait) {
		return nil, fmt.Errorf("telemetry: connect to %s timed out after %v", broker, connectWait)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("telemetry: connect to %s: %w", broker, err)
	}
	return client, nil
}
