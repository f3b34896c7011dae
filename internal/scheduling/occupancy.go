package scheduling

import "time"

// overlaps is the half-open interval test: touching ranges do not overlap.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// ResolveOccupancy attributes availability to every slot.
//
// A slot that has already started is unavailable with no conflict reason.
// Otherwise an overlapping occupying local booking wins over an overlapping
// external busy range, so a local cancellation frees the slot even while the
// mirrored external event still exists.
func ResolveOccupancy(slots []TimeSlot, bookings []Booking, busy []BusyTime, now time.Time) []TimeSlot {
	out := make([]TimeSlot, len(slots))
	for i, slot := range slots {
		slot.Available = true
		slot.ConflictReason = ConflictNone

		switch {
		case now.After(slot.Start):
			slot.Available = false
		case localConflict(slot, bookings):
			slot.Available = false
			slot.ConflictReason = ConflictLocal
		case externalConflict(slot, busy):
			slot.Available = false
			slot.ConflictReason = ConflictExternal
		}

		out[i] = slot
	}
	return out
}

func localConflict(slot TimeSlot, bookings []Booking) bool {
	for _, b := range bookings {
		if !b.Occupies() {
			continue
		}
		if overlaps(slot.Start, slot.End, b.ScheduledAt, b.End()) {
			return true
		}
	}
	return false
}

func externalConflict(slot TimeSlot, busy []BusyTime) bool {
	for _, t := range busy {
		if overlaps(slot.Start, slot.End, t.Start, t.End) {
			return true
		}
	}
	return false
}

// findSlot returns the slot starting at start, if the grid contains one.
func findSlot(slots []TimeSlot, start time.Time) (TimeSlot, bool) {
	for _, s := range slots {
		if s.Start.Equal(start) {
			return s, true
		}
	}
	return TimeSlot{}, false
}
