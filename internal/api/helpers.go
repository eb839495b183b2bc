// Package api implements the preamp's debug HTTP API: a JSON view of the
// controller state and register map, register writes, and a state stream.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/micro-nova/amplipi-preamp/internal/models"
	"github.com/micro-nova/amplipi-preamp/internal/regmap"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	unit   Unit
	events EventBus
}

// Unit is the controller state the handlers read and modify.
type Unit interface {
	Snapshot() models.State
	Update(fn func(st *models.State))
}

// EventBus is the interface for subscribing to published states.
type EventBus interface {
	Subscribe(id string) <-chan models.State
	Unsubscribe(id string)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an AppError as a JSON response.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		w.WriteHeader(appErr.Status)
		_ = json.NewEncoder(w).Encode(appErr)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(models.ErrInternal(err.Error()))
}

// regParam resolves the {reg} path parameter, given as a number (decimal,
// 0x hex) or a register name.
func regParam(r *http.Request) (byte, error) {
	s := chi.URLParam(r, "reg")
	if n, err := strconv.ParseUint(s, 0, 8); err == nil {
		if !regmap.Defined(byte(n)) {
			return 0, models.ErrNotFound("register " + s + " is not defined")
		}
		return byte(n), nil
	}
	if reg, ok := regmap.Lookup(s); ok {
		return reg, nil
	}
	return 0, models.ErrNotFound("unknown register " + s)
}
