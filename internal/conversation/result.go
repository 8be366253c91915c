package conversation

// Stage is a step of the per-request state machine
type Stage string

const (
	StageReceived     Stage = "received"
	StageValidating   Stage = "validating"
	StageTranscribing Stage = "transcribing"
	StageAnalyzing    Stage = "analyzing"
	StageRendering    Stage = "rendering"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// Result is everything one request produced. On failure Err is set and
// Transcript is kept when it was obtained before the failing stage.
type Result struct {
	RequestID  string
	Upload     *UploadedConversation
	Transcript *Transcript
	Insights   []SpeakerInsight
	Stage      Stage

	// FailedAt is the stage that was running when Err occurred
	FailedAt Stage
	Err      error
}
