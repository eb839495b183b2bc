package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/micro-nova/amplipi-preamp/internal/models"
	"github.com/micro-nova/amplipi-preamp/internal/regmap"
)

// Register is one register map cell.
type Register struct {
	Addr     string `json:"addr"`
	Name     string `json:"name"`
	Value    byte   `json:"value"`
	Writable bool   `json:"writable"`
}

// RegisterWrite is the body of a register write.
type RegisterWrite struct {
	Value *uint `json:"value"`
}

func register(st *models.State, reg byte) Register {
	return Register{
		Addr:     fmt.Sprintf("0x%02X", reg),
		Name:     regmap.Name(reg),
		Value:    regmap.Read(st, reg),
		Writable: regmap.Writable(reg),
	}
}

func (h *Handlers) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.unit.Snapshot())
}

func (h *Handlers) getRegisters(w http.ResponseWriter, r *http.Request) {
	st := h.unit.Snapshot()
	var regs []Register
	for i := 0; i <= 0xFF; i++ {
		if regmap.Defined(byte(i)) {
			regs = append(regs, register(&st, byte(i)))
		}
	}
	writeJSON(w, http.StatusOK, regs)
}

func (h *Handlers) getRegister(w http.ResponseWriter, r *http.Request) {
	reg, err := regParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	st := h.unit.Snapshot()
	writeJSON(w, http.StatusOK, register(&st, reg))
}

func (h *Handlers) putRegister(w http.ResponseWriter, r *http.Request) {
	reg, err := regParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !regmap.Writable(reg) {
		writeError(w, models.ErrBadRequest(regmap.Name(reg)+" is read-only"))
		return
	}
	var body RegisterWrite
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, models.ErrBadRequest("invalid JSON: "+err.Error()))
		return
	}
	if body.Value == nil || *body.Value > 0xFF {
		writeError(w, &models.AppError{Code: "BAD_REQUEST", Message: "value must be 0..255", Field: "value", Status: http.StatusBadRequest})
		return
	}

	var out Register
	h.unit.Update(func(st *models.State) {
		regmap.Write(st, reg, byte(*body.Value))
		out = register(st, reg)
	})
	slog.Info("api: register written", "reg", out.Name, "value", *body.Value)
	writeJSON(w, http.StatusOK, out)
}
