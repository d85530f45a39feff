package analysis

// State is a step of the per-request pipeline.
type State string

const (
	StateReceived   State = "received"
	StateValidated  State = "validated"
	StatePersisted  State = "persisted"
	StateExtracting State = "extracting"
	StateUploading  State = "uploading"
	StateAnalyzed   State = "analyzed"
	StateCleanedUp  State = "cleaned_up"
	StateResponded  State = "responded"
	StateFailed     State = "failed"
)
