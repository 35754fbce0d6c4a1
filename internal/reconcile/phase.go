package reconcile

// Phase is where one record currently is in a sync cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLocalChanged
	PhasePushing
	PhasePushed
	PhaseSuppressed
	PhaseRemoteSnapshot
	PhaseApplying
	PhaseApplied
	PhaseTombstoned
	PhasePurged
)

var phaseNames = [...]string{
	PhaseIdle:           "idle",
	PhaseLocalChanged:   "local_changed",
	PhasePushing:        "pushing",
	PhasePushed:         "pushed",
	PhaseSuppressed:     "suppressed",
	PhaseRemoteSnapshot: "remote_snapshot",
	PhaseApplying:       "applying",
	PhaseApplied:        "applied",
	PhaseTombstoned:     "tombstoned",
	PhasePurged:         "purged",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}
