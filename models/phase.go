package models

// Phase is the room's current stage. Transitions move forward only, except
// FINAL -> LOBBY via an explicit reset.
type Phase string

const (
	PhaseLobby  Phase = "LOBBY"
	PhaseRound  Phase = "ROUND"
	PhaseVote   Phase = "VOTE"
	PhaseReveal Phase = "REVEAL"
	PhaseFinal  Phase = "FINAL"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseLobby, PhaseRound, PhaseVote, PhaseReveal, PhaseFinal:
		return true
	}
	return false
}
