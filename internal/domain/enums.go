package domain

// ChunkStatus is the locally tracked lifecycle state of a chunk.
type ChunkStatus string

const (
	ChunkStatusUnsubmitted ChunkStatus = "unsubmitted"
	ChunkStatusSubmitted   ChunkStatus = "submitted"
	ChunkStatusInProgress  ChunkStatus = "in_progress"
	ChunkStatusCompleted   ChunkStatus = "completed"
	ChunkStatusFailed      ChunkStatus = "failed"
	ChunkStatusExpired     ChunkStatus = "expired"
	ChunkStatusCancelled   ChunkStatus = "cancelled"
)

// IsTerminal reports whether the remote job behind this status will not change again.
func (s ChunkStatus) IsTerminal() bool {
	switch s {
	case ChunkStatusCompleted, ChunkStatusFailed, ChunkStatusExpired, ChunkStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is a known status.
func (s ChunkStatus) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsFailure reports whether the chunk ended without results and may be resubmitted.
func (s ChunkStatus) IsFailure() bool {
	return s == ChunkStatusFailed || s == ChunkStatusExpired || s == ChunkStatusCancelled
}

// validTransitions lists the statuses reachable from each status. The remote
// service may skip states we never observe, so submitted may jump straight to
// any terminal state.
var validTransitions = map[ChunkStatus][]ChunkStatus{
	ChunkStatusUnsubmitted: {ChunkStatusSubmitted},
	ChunkStatusSubmitted: {
		ChunkStatusInProgress, ChunkStatusCompleted,
		ChunkStatusFailed, ChunkStatusExpired, ChunkStatusCancelled,
	},
	ChunkStatusInProgress: {
		ChunkStatusCompleted, ChunkStatusFailed, ChunkStatusExpired, ChunkStatusCancelled,
	},
	ChunkStatusFailed:    {ChunkStatusSubmitted},
	ChunkStatusExpired:   {ChunkStatusSubmitted},
	ChunkStatusCancelled: {ChunkStatusSubmitted},
	ChunkStatusCompleted: nil,
}

// CanTransition reports whether a chunk may move from one status to another.
func CanTransition(from, to ChunkStatus) bool {
	if from == to {
		return true
	}
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RemoteStatus is a job status as reported by the remote batch service.
type RemoteStatus string

const (
	RemoteStatusValidating RemoteStatus = "validating"
	RemoteStatusInProgress RemoteStatus = "in_progress"
	RemoteStatusFinalizing RemoteStatus = "finalizing"
	RemoteStatusCompleted  RemoteStatus = "completed"
	RemoteStatusFailed     RemoteStatus = "failed"
	RemoteStatusExpired    RemoteStatus = "expired"
	RemoteStatusCancelling RemoteStatus = "cancelling"
	RemoteStatusCancelled  RemoteStatus = "cancelled"
)

// ChunkStatusFromRemote maps a remote job status onto the local lifecycle.
// The second return value is false for statuses this mapping does not know;
// those are treated as still running.
func ChunkStatusFromRemote(s RemoteStatus) (ChunkStatus, bool) {
	switch s {
	case RemoteStatusValidating:
		return ChunkStatusSubmitted, true
	case RemoteStatusInProgress, RemoteStatusFinalizing, RemoteStatusCancelling:
		return ChunkStatusInProgress, true
	case RemoteStatusCompleted:
		return ChunkStatusCompleted, true
	case RemoteStatusFailed:
		return ChunkStatusFailed, true
	case RemoteStatusExpired:
		return ChunkStatusExpired, true
	case RemoteStatusCancelled:
		return ChunkStatusCancelled, true
	default:
		return ChunkStatusInProgress, false
	}
}

// RunStatus is the overall state recorded in the ledger metadata.
type RunStatus string

const (
	RunStatusPlanned    RunStatus = "planned"
	RunStatusSubmitting RunStatus = "submitting"
	RunStatusRunning    RunStatus = "running"
	RunStatusCompleted  RunStatus = "completed"
)

// MarketDirection is a predicted direction of an asset class.
type MarketDirection string

const (
	MarketRise    MarketDirection = "rise"
	MarketFall    MarketDirection = "fall"
	MarketNeutral MarketDirection = "neutral"
)

// IsValid reports whether d is one of the allowed directions.
func (d MarketDirection) IsValid() bool {
	switch d {
	case MarketRise, MarketFall, MarketNeutral:
		return true
	default:
		return false
	}
}
