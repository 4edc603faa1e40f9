package models

// Outcome is the result of resolving a meeting request against the
// calendar. It is either Booked or AlternativesProposed.
type Outcome interface {
	outcome()
}

// Booked means the requested slot was free and the event was created.
type Booked struct {
	Event Event
}

// AlternativesProposed means the requested slot could not be booked.
// Requested is nil when the email named no usable date and time.
type AlternativesProposed struct {
	Requested *TimeSlot
	Slots     SlotSearchResult
}

func (Booked) outcome()               {}
func (AlternativesProposed) outcome() {}
