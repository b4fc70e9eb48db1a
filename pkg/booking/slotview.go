package booking

import "time"

// SlotStatus classifies a slot relative to the clock and its bookings.
type SlotStatus string

const (
	// SlotStatusAvailable: upcoming, seats free, viewer not booked.
	SlotStatusAvailable SlotStatus = "available"
	// SlotStatusConfirmed: upcoming and booked by the viewer.
	SlotStatusConfirmed SlotStatus = "confirmed"
	// SlotStatusNoAvailability: upcoming, full, viewer not booked.
	SlotStatusNoAvailability SlotStatus = "no_availability"
	// SlotStatusInProgress: the window has started but not ended.
	SlotStatusInProgress SlotStatus = "in_progress"
	// SlotStatusCompleted: the window has ended.
	SlotStatusCompleted SlotStatus = "completed"
)

// SlotView is a slot annotated for one viewer.
type SlotView struct {
	Slot          Slot
	BookedCount   int
	IsUserBooked  bool
	IsFullyBooked bool
	Status        SlotStatus
}

// DeriveSlotView computes the viewer-facing classification. The derivation
// is pure: same slot, clock, count, and booking flag always yield the same
// view.
func DeriveSlotView(slot Slot, now time.Time, bookedCount int, isUserBooked bool) SlotView {
	view := SlotView{
		Slot:          slot,
		BookedCount:   bookedCount,
		IsUserBooked:  isUserBooked,
		IsFullyBooked: bookedCount >= slot.Capacity,
	}
	switch {
	case !now.Before(slot.EndTime):
		view.Status = SlotStatusCompleted
	case !now.Before(slot.StartTime):
		view.Status = SlotStatusInProgress
	case isUserBooked:
		view.Status = SlotStatusConfirmed
	case view.IsFullyBooked:
		view.Status = SlotStatusNoAvailability
	default:
		view.Status = SlotStatusAvailable
	}
	return view
}
