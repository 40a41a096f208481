package conversation

// LeadState is the position of a session in the qualification flow.
type LeadState string

const (
	StateNoInterest                  LeadState = "no_interest"
	StateInterestDetected            LeadState = "interest_detected"
	StateCollectingInfo              LeadState = "collecting_info"
	StateInfoComplete                LeadState = "info_complete"
	StateAwaitingMeetingConfirmation LeadState = "awaiting_meeting_confirmation"
	StateWaitingMeetingSlotSelection LeadState = "waiting_meeting_slot_selection"
)

func (s LeadState) String() string { return string(s) }

// Valid reports whether s is one of the known states.
func (s LeadState) Valid() bool {
	switch s {
	case StateNoInterest, StateInterestDetected, StateCollectingInfo, StateInfoComplete,
		StateAwaitingMeetingConfirmation, StateWaitingMeetingSlotSelection:
		return true
	}
	return false
}

