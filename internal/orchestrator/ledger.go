package orchestrator

// Ledger is the ordered record of insight rounds for one request. It is a
// value: Append returns a new ledger and never mutates the receiver.
type Ledger struct {
	rounds []Round
}

func (l Ledger) Append(round Round) Ledger {
	next := make([]Round, len(l.rounds), len(l.rounds)+1)
	copy(next, l.rounds)
	return Ledger{rounds: append(next, round)}
}

// Rounds returns a copy of the recorded rounds.
func (l Ledger) Rounds() []Round {
	out := make([]Round, len(l.rounds))
	copy(out, l.rounds)
	return out
}

func (l Ledger) Len() int {
	return len(l.rounds)
}

// AllFailed is true when at least one round exists and none succeeded.
func (l Ledger) AllFailed() bool {
	return len(l.rounds) > 0 && !l.AnySucceeded()
}

func (l Ledger) AnySucceeded() bool {
	for _, round := range l.rounds {
		if round.Outcome.Success {
			return true
		}
	}
	return false
}

// LastHint is the next-step hint of the most recent incomplete assessment.
func (l Ledger) LastHint() string {
	for i := len(l.rounds) - 1; i >= 0; i-- {
		if assessment := l.rounds[i].Assessment; assessment != nil {
			if assessment.Complete {
				return ""
			}
			return assessment.Hint
		}
	}
	return ""
}
