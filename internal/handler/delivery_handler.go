package handler

import (
	"net/http"
	"time"

	"storefront/internal/delivery"
	"storefront/internal/model"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// SlotOption is one delivery window on the picker.
type SlotOption struct {
	Slot      model.DeliverySlot `json:"slot"`
	Available bool               `json:"available"`
}

// SlotsResponse lists every window of a day and whether it can be booked.
// Selected echoes the caller's slot when the day still admits it.
type SlotsResponse struct {
	Date        string             `json:"date"`
	Slots       []SlotOption       `json:"slots"`
	Selected    model.DeliverySlot `json:"selected,omitempty"`
	SlotCleared bool               `json:"slotCleared"`
}

// DeliveryHandler handles delivery slot requests.
type DeliveryHandler struct {
	clock  clockwork.Clock
	loc    *time.Location
	logger zerolog.Logger
}

// NewDeliveryHandler creates a new delivery handler. Dates are read in loc.
func NewDeliveryHandler(clock clockwork.Clock, loc *time.Location, logger zerolog.Logger) *DeliveryHandler {
	if loc == nil {
		loc = time.Local
	}
	return &DeliveryHandler{
		clock:  clock,
		loc:    loc,
		logger: logger.With().Str("handler", "delivery").Logger(),
	}
}

// Slots handles GET /api/delivery/slots?date=YYYY-MM-DD&slot=14-18 requests.
// A missing date means today. The optional slot is the one currently picked
// on the form; it is dropped when the date no longer admits it.
func (h *DeliveryHandler) Slots(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now().In(h.loc)

	date := now
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := delivery.ParseDate(raw, h.loc)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidField, "date must be YYYY-MM-DD", h.logger)
			return
		}
		date = d
	}

	var sel delivery.Selection
	if raw := r.URL.Query().Get("slot"); raw != "" {
		slot, err := delivery.ParseSlot(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidField, err.Error(), h.logger)
			return
		}
		sel.Slot = slot
	}
	cleared := sel.SetDate(date, now)

	available := make(map[model.DeliverySlot]bool)
	for _, slot := range delivery.AvailableSlots(date, now) {
		available[slot] = true
	}

	resp := SlotsResponse{
		Date:        date.Format(delivery.DateLayout),
		Slots:       make([]SlotOption, 0, len(model.DeliverySlots)),
		Selected:    sel.Slot,
		SlotCleared: cleared,
	}
	for _, slot := range model.DeliverySlots {
		resp.Slots = append(resp.Slots, SlotOption{Slot: slot, Available: available[slot]})
	}

	writeJSON(w, http.StatusOK, resp)
}
