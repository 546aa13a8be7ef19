package logger

// Kind identifies the type of a logged event.
type Kind string

const (
	// KindPipelineStart is logged before the first stage of a pipeline starts.
	KindPipelineStart Kind = "pipeline_start"
	// KindStageLaunch is logged for each process that was started.
	KindStageLaunch Kind = "stage_launch"
	// KindLaunchFailed is logged when a stage or pipeline couldn't be started.
	KindLaunchFailed Kind = "launch_failed"
	// KindJobRegistered is logged when a background pipeline becomes a job.
	KindJobRegistered Kind = "job_registered"
	// KindJobDropped is logged when the job table is full.
	KindJobDropped Kind = "job_dropped"
	// KindJobCompleted is logged when a job's process is reaped.
	KindJobCompleted Kind = "job_completed"
	// KindBuiltin is logged when a built-in command runs.
	KindBuiltin Kind = "builtin"
)

// LogEntry is a single event. Fields that don't apply to the Kind are left
// empty.
type LogEntry struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	SessionID       string `json:"session_id,omitempty"`
	Kind            Kind   `json:"kind"`

	Command    string   `json:"command,omitempty"`
	Argv       []string `json:"argv,omitempty"`
	Background bool     `json:"background,omitempty"`
	Stage      int      `json:"stage,omitempty"`

	PID      int    `json:"pid,omitempty"`
	Index    int    `json:"index,omitempty"`
	Label    string `json:"label,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`

	Error string `json:"error,omitempty"`
}
