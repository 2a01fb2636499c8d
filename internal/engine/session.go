package engine

// Session is the open/closed state machine. The effective state follows
// the schedule unless a manual override is set; the next automatic
// transition clears the override. Session is not synchronized.
type Session struct {
	open     bool
	override *bool
	lastAuto *bool
}

// Transition describes what one Observe call changed.
type Transition struct {
	// Auto is true when the schedule flipped on this observation.
	Auto bool
	Open bool
}

// Observe feeds the schedule-derived state for the current tick.
func (s *Session) Observe(shouldBeOpen bool) Transition {
	if s.lastAuto == nil {
		s.lastAuto = &shouldBeOpen
		if s.override == nil {
			s.open = shouldBeOpen
		}
	}

	var tr Transition
	if shouldBeOpen != *s.lastAuto {
		s.override = nil
		s.open = shouldBeOpen
		s.lastAuto = &shouldBeOpen
		tr.Auto = true
	}

	if s.override != nil {
		s.open = *s.override
	}
	tr.Open = s.open
	return tr
}

// SetOpen forces the state until the next automatic transition.
func (s *Session) SetOpen(open bool) {
	s.override = &open
	s.open = open
}

// IsOpen returns the effective state.
func (s *Session) IsOpen() bool {
	return s.open
}

// Override returns the manual override, if any.
func (s *Session) Override() (open bool, ok bool) {
	if s.override == nil {
		return false, false
	}
	return *s.override, true
}
