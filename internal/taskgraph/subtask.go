package taskgraph

// Status is the execution state reported by the task API for a task or subtask.
// Values outside the known set are kept verbatim and treated as opaque.
type Status string

const (
	StatusPending    Status = "PENDING"    // Created, waiting on upstreams
	StatusReady      Status = "READY"      // Upstreams done, queued for execution
	StatusRunning    Status = "RUNNING"    // Currently executing
	StatusSuccessful Status = "SUCCESSFUL" // Finished successfully
	StatusFailed     Status = "FAILED"     // Finished with error
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusSuccessful || s == StatusFailed
}

// SubtaskRecord is one unit of backend-executed work within a task instance.
// The task API returns these as a flat, unordered list; graph structure is only
// implied through the upstream and downstream id lists.
type SubtaskRecord struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name,omitempty"`
	Type        string  `json:"type,omitempty"` // Executor type, matches the TYPE in log markers
	Status      Status  `json:"status"`
	Upstreams   []int64 `json:"upstreams"`
	Downstreams []int64 `json:"downstreams"`
	StartTime   string  `json:"startTime,omitempty"`  // RFC3339, empty until started
	FinishTime  string  `json:"finishTime,omitempty"` // RFC3339, empty while running
	LogText     string  `json:"logText,omitempty"`
}

// Window implements duration.Timed.
func (r *SubtaskRecord) Window() (start, finish string, running bool) {
	return r.StartTime, r.FinishTime, r.Status == StatusRunning
}

// TaskInstance is the container the task API returns for one submitted task.
type TaskInstance struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name,omitempty"`
	Status     Status          `json:"status"`
	StartTime  string          `json:"startTime,omitempty"`
	FinishTime string          `json:"finishTime,omitempty"`
	Subtasks   []SubtaskRecord `json:"subtasks"`
}

// Window implements duration.Timed.
func (t *TaskInstance) Window() (start, finish string, running bool) {
	return t.StartTime, t.FinishTime, t.Status == StatusRunning
}

func cloneRecord(r SubtaskRecord) SubtaskRecord {
	cp := r
	cp.Upstreams = append([]int64(nil), r.Upstreams...)
	cp.Downstreams = append([]int64(nil), r.Downstreams...)
	return cp
}
