package job

// Event names dispatched to the webhook layer as a job moves through its
// lifecycle (spec §4.6 event table).
const (
	EventJobStarted          = "job.started"
	EventJobProgress         = "job.progress"
	EventJobCompleted        = "job.completed"
	EventJobFailed           = "job.failed"
	EventProcessingHighError = "processing.high_error_rate"
)
