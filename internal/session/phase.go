package session

// Phase is a step of the session state machine.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseSubmitting        Phase = "submitting"
	PhaseAwaitingReady     Phase = "awaiting_ready"
	PhaseFilesAvailable    Phase = "files_available"
	PhaseAwaitingSelection Phase = "awaiting_selection"
	PhasePreparingURLs     Phase = "preparing_urls"
	PhasePlayerLaunched    Phase = "player_launched"
	PhaseStreaming         Phase = "streaming"
	PhaseClosed            Phase = "closed"
	PhaseCancelled         Phase = "cancelled"
)

func (p Phase) String() string {
	return string(p)
}

// Terminal reports whether no background work can follow this phase without an
// explicit restart.
func (p Phase) Terminal() bool {
	return p == PhaseClosed || p == PhaseCancelled
}

func (p Phase) in(phases ...Phase) bool {
	for _, candidate := range phases {
		if p == candidate {
			return true
		}
	}

	return false
}
