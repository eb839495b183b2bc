package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/micro-nova/amplipi-preamp/internal/models"
)

// keepAlive is the interval of comment lines on an idle stream.
const keepAlive = 15 * time.Second

// stateStream writes "state" events. Snapshots equal to the last one sent
// are dropped, so a subscriber primed with the current state does not see it
// twice.
type stateStream struct {
	w    http.ResponseWriter
	f    http.Flusher
	seq  uint64
	last models.State
}

func (s *stateStream) send(st models.State) error {
	if s.seq > 0 && st == s.last {
		return nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: state\ndata: %s\n\n", s.seq, data); err != nil {
		return err
	}
	s.f.Flush()
	s.last = st
	return nil
}

func (s *stateStream) ping() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// sseEvents streams the unit's state, starting with the current snapshot.
func (h *Handlers) sseEvents(w http.ResponseWriter, r *http.Request) {
	f, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	id := "sse-" + uuid.NewString()
	states := h.events.Subscribe(id)
	defer h.events.Unsubscribe(id)

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	s := &stateStream{w: w, f: f}
	err := s.send(h.unit.Snapshot())
	for err == nil {
		select {
		case st, ok := <-states:
			if !ok {
				return
			}
			err = s.send(st)
		case <-ticker.C:
			err = s.ping()
		case <-r.Context().Done():
			return
		}
	}
	slog.Debug("api: subscriber dropped", "id", id, "sent", s.seq, "err", err)
}
