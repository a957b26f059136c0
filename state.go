package migrate

// State is the phase a Migrate is in.
type State int32

const (
	// Idle is the state before Initialize and after a finished flow.
	Idle State = iota
	// Initialized means a driver is bound and no flow ran yet.
	Initialized
	// Resolving reads the workspace and the ledger.
	Resolving
	// Executing runs the scripts of a group.
	Executing
	// Recording writes a ledger row.
	Recording
	// Reporting runs a verify-only flow, nothing is kept.
	Reporting
	// RollingBack undoes the transaction of a failed group.
	RollingBack
	// Aborted is the state after a failed flow.
	Aborted
)

var stateNames = [...]string{
	Idle:        "idle",
	Initialized: "initialized",
	Resolving:   "resolving",
	Executing:   "executing",
	Recording:   "recording",
	Reporting:   "reporting",
	RollingBack: "rolling back",
	Aborted:     "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
