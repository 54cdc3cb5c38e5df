package reconcile

// Verdict is the aggregated watched state of one (user, entry) pair.
type Verdict struct {
	Watched bool

	// Conflict is set when servers disagreed. The verdict is still Watched.
	Conflict bool
}

// Aggregate combines per-server observations into a verdict. It returns false
// when obs is empty: with nothing observed there is no verdict and no action.
// Otherwise any true observation wins, so watched state never regresses
// because one server lags behind another.
func Aggregate(obs Observation) (Verdict, bool) {
	if len(obs) == 0 {
		return Verdict{}, false
	}

	var sawTrue, sawFalse bool

	for _, watched := range obs {
		if watched {
			sawTrue = true
		} else {
			sawFalse = true
		}
	}

	return Verdict{Watched: sawTrue, Conflict: sawTrue && sawFalse}, true
}
