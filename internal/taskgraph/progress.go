package taskgraph

// progressPriority is the order in which statuses claim the progress pointer.
// A failure blocks everything after it, so it wins over running work, which
// wins over queued work. When everything succeeded the earliest record wins.
var progressPriority = []Status{
	StatusFailed,
	StatusRunning,
	StatusReady,
	StatusPending,
	StatusSuccessful,
}

// LocateProgress picks the record to highlight as "where execution currently
// stands" from a flattened sequence (see Flatten). It returns the first record
// in sequence order with the highest-priority status, falling back to the first
// record when none has a known status, and nil for an empty sequence.
func LocateProgress(flat []*SubtaskRecord) *SubtaskRecord {
	if len(flat) == 0 {
		return nil
	}

	for _, status := range progressPriority {
		for _, r := range flat {
			if r != nil && r.Status == status {
				return r
			}
		}
	}

	return flat[0]
}

// Progress counts subtasks by status.
type Progress struct {
	Total      int
	Successful int
	Running    int
	Failed     int
	Ready      int
	Pending    int
	Other      int // Statuses outside the known set
}

// Done reports whether every subtask finished successfully.
func (p Progress) Done() bool {
	return p.Total > 0 && p.Successful == p.Total
}

// Summarize counts the records of a flattened sequence by status.
func Summarize(flat []*SubtaskRecord) Progress {
	var p Progress
	for _, r := range flat {
		if r == nil {
			continue
		}
		p.Total++
		switch r.Status {
		case StatusSuccessful:
			p.Successful++
		case StatusRunning:
			p.Running++
		case StatusFailed:
			p.Failed++
		case StatusReady:
			p.Ready++
		case StatusPending:
			p.Pending++
		default:
			p.Other++
		}
	}
	return p
}
