package db

import "errors"

// Sentinel errors for job-store and ledger operations. Handlers map these to
// stable machine-readable codes at the HTTP boundary; worker handlers use
// them to decide whether a task is retryable.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientCredits = errors.New("insufficient credits")

	ErrJobNotFound         = errors.New("job not found")
	ErrStageCompleted      = errors.New("stage already completed")
	ErrStageAlreadyRunning = errors.New("another stage is already processing")
	ErrResearchNotFound    = errors.New("research not found")
	ErrScriptNotFound      = errors.New("script not found")
	ErrAudioNotFound       = errors.New("audio not found")
	ErrInvalidAudioData    = errors.New("invalid audio data")
)
