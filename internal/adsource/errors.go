package adsource

// LoadError mirrors the load error codes reported by the Unity Ads SDK. AdMob
// failures are mapped onto the same codes.
type LoadError int

const (
	LoadErrorNone LoadError = iota
	LoadErrorUnknown
	LoadErrorInitializeFailed
	LoadErrorInternal
	LoadErrorInvalidArgument
	LoadErrorTimeout
	LoadErrorNoFill
)

func (e LoadError) String() string {
	switch e {
	case LoadErrorNone:
		return "NONE"
	case LoadErrorInitializeFailed:
		return "INITIALIZE_FAILED"
	case LoadErrorInternal:
		return "INTERNAL_ERROR"
	case LoadErrorInvalidArgument:
		return "INVALID_ARGUMENT"
	case LoadErrorTimeout:
		return "TIMEOUT"
	case LoadErrorNoFill:
		return "NO_FILL"
	default:
		return "UNKNOWN"
	}
}

// ShowError mirrors the Unity Ads show failure codes.
type ShowError int

const (
	ShowErrorNone ShowError = iota
	ShowErrorUnknown
	ShowErrorNotInitialized
	ShowErrorNotReady
	ShowErrorVideoPlayer
	ShowErrorInvalidArgument
	ShowErrorNoConnection
	ShowErrorAlreadyShowing
	ShowErrorInternal
)

func (e ShowError) String() string {
	switch e {
	case ShowErrorNone:
		return "NONE"
	case ShowErrorNotInitialized:
		return "NOT_INITIALIZED"
	case ShowErrorNotReady:
		return "NOT_READY"
	case ShowErrorVideoPlayer:
		return "VIDEO_PLAYER_ERROR"
	case ShowErrorInvalidArgument:
		return "INVALID_ARGUMENT"
	case ShowErrorNoConnection:
		return "NO_CONNECTION"
	case ShowErrorAlreadyShowing:
		return "ALREADY_SHOWING"
	case ShowErrorInternal:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// CompletionState is how a view ended.
type CompletionState int

const (
	CompletionCompleted CompletionState = iota
	CompletionSkipped
	CompletionUnknown
)

func (c CompletionState) String() string {
	switch c {
	case CompletionCompleted:
		return "COMPLETED"
	case CompletionSkipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}
