package worker

import "fmt"

// Stable machine-readable stage failure codes. The code is the prefix of the
// persisted step error message, so callers and tests can match on it.
const (
	CodeResearchGeneration = "ResearchGenerationError"
	CodeScriptGeneration   = "ScriptGenerationError"
	CodeInvalidScript      = "InvalidScript"
	CodeNoAudioGenerated   = "NoAudioGenerated"
	CodeAudioDownload      = "AudioDownloadFailed"
	CodeAudioMerge         = "AudioMergeFailed"
	CodeUpload             = "UploadFailed"
	CodeFinalUpdate        = "FinalUpdateFailed"
	CodeStageTimeout       = "StageTimeout"
)

// StageError pairs a stable code with the underlying failure.
type StageError struct {
	Code string
	Err  error
}

func (e *StageError) Error() string {
	return e.Code + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErrorf(code, format string, args ...interface{}) *StageError {
	return &StageError{Code: code, Err: fmt.Errorf(format, args...)}
}
