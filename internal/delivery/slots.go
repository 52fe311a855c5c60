// Package delivery decides which delivery windows can be booked.
package delivery

import (
	"fmt"
	"time"

	"storefront/internal/model"
)

// DateLayout is the wire format of delivery dates.
const DateLayout = "2006-01-02"

// ParseSlot validates a slot label such as "14-18".
func ParseSlot(s string) (model.DeliverySlot, error) {
	slot := model.DeliverySlot(s)
	if !slot.Valid() {
		return "", fmt.Errorf("unknown delivery slot %q", s)
	}
	return slot, nil
}

// ParseDate parses a YYYY-MM-DD delivery date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid delivery date %q: %w", s, err)
	}
	return d, nil
}

// IsSlotAvailable reports whether slot may be booked for the calendar day of
// date, judged at now. Future days admit every slot, past days none, and today
// only slots that start strictly after the current time of day.
func IsSlotAvailable(slot model.DeliverySlot, date, now time.Time) bool {
	if !slot.Valid() {
		return false
	}

	switch cmp := compareDays(date, now); {
	case cmp > 0:
		return true
	case cmp < 0:
		return false
	}

	hours := hoursFraction(now)
	return hours < float64(slot.End()) && float64(slot.Start()) > hours
}

// AvailableSlots returns the bookable slots for date in chronological order.
func AvailableSlots(date, now time.Time) []model.DeliverySlot {
	out := make([]model.DeliverySlot, 0, len(model.DeliverySlots))
	for _, slot := range model.DeliverySlots {
		if IsSlotAvailable(slot, date, now) {
			out = append(out, slot)
		}
	}
	return out
}

// compareDays compares calendar days, reading date's own Y/M/D so that a date
// parsed in another location still names the day the user picked.
func compareDays(date, now time.Time) int {
	dy, dm, dd := date.Date()
	ny, nm, nd := now.Date()
	a := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	switch {
	case a.After(b):
		return 1
	case a.Before(b):
		return -1
	}
	return 0
}

func hoursFraction(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}
