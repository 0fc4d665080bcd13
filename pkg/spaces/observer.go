package spaces

// Observer receives a callback for every registry operation. The telemetry
// collector implements it; the default sink discards everything.
type Observer interface {
	// RegistryOperation is called once per registry call with the
	// operation name and its outcome.
	RegistryOperation(operation string, err error)
}

type nopObserver struct{}

func (nopObserver) RegistryOperation(string, error) {}
