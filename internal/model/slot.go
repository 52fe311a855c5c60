package model

// DeliverySlot is one of the four fixed delivery windows of a day.
type DeliverySlot string

const (
	Slot10To14 DeliverySlot = "10-14"
	Slot14To18 DeliverySlot = "14-18"
	Slot18To21 DeliverySlot = "18-21"
	Slot21To00 DeliverySlot = "21-00"
)

// DeliverySlots lists every slot in chronological order.
var DeliverySlots = []DeliverySlot{Slot10To14, Slot14To18, Slot18To21, Slot21To00}

var slotBounds = map[DeliverySlot][2]int{
	Slot10To14: {10, 14},
	Slot14To18: {14, 18},
	Slot18To21: {18, 21},
	Slot21To00: {21, 24},
}

// Valid reports whether s is one of the fixed slots.
func (s DeliverySlot) Valid() bool {
	_, ok := slotBounds[s]
	return ok
}

// Start returns the nominal start hour.
func (s DeliverySlot) Start() int {
	return slotBounds[s][0]
}

// End returns the nominal end hour; the midnight slot ends at 24.
func (s DeliverySlot) End() int {
	return slotBounds[s][1]
}
