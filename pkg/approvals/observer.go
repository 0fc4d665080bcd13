package approvals

// Observer is told about every approval that leaves the pending state,
// whichever component performed the transition. The telemetry collector
// implements it; the default sink discards everything.
type Observer interface {
	// ApprovalResolved is called once per pending -> terminal transition
	// with the terminal status ("approved", "rejected", "expired").
	ApprovalResolved(decision string)
}

type nopObserver struct{}

func (nopObserver) ApprovalResolved(string) {}
