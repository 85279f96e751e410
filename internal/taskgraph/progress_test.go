package taskgraph

import "testing"

func withStatus(id int64, s Status) *SubtaskRecord {
	return &SubtaskRecord{ID: id, Status: s}
}

func TestLocateProgress(t *testing.T) {
	tests := []struct {
		name    string
		flat    []*SubtaskRecord
		wantID  int64
		wantNil bool
	}{
		{
			name:    "empty sequence",
			flat:    nil,
			wantNil: true,
		},
		{
			name: "failed wins over earlier running",
			flat: []*SubtaskRecord{
				withStatus(1, StatusRunning),
				withStatus(2, StatusFailed),
				withStatus(3, StatusSuccessful),
				withStatus(4, StatusPending),
			},
			wantID: 2,
		},
		{
			name: "first failed in sequence order",
			flat: []*SubtaskRecord{
				withStatus(1, StatusRunning),
				withStatus(2, StatusReady),
				withStatus(3, StatusFailed),
				withStatus(4, StatusRunning),
				withStatus(5, StatusFailed),
			},
			wantID: 3,
		},
		{
			name: "running over ready",
			flat: []*SubtaskRecord{
				withStatus(1, StatusSuccessful),
				withStatus(2, StatusReady),
				withStatus(3, StatusRunning),
			},
			wantID: 3,
		},
		{
			name: "ready over pending",
			flat: []*SubtaskRecord{
				withStatus(1, StatusSuccessful),
				withStatus(2, StatusPending),
				withStatus(3, StatusReady),
			},
			wantID: 3,
		},
		{
			name: "pending over successful",
			flat: []*SubtaskRecord{
				withStatus(1, StatusSuccessful),
				withStatus(2, StatusPending),
			},
			wantID: 2,
		},
		{
			name: "all successful picks earliest",
			flat: []*SubtaskRecord{
				withStatus(1, StatusSuccessful),
				withStatus(2, StatusSuccessful),
			},
			wantID: 1,
		},
		{
			name: "opaque statuses fall back to first",
			flat: []*SubtaskRecord{
				withStatus(8, "CANCELLED"),
				withStatus(9, "ROLLBACK"),
			},
			wantID: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LocateProgress(tt.flat)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("LocateProgress() = %d, want nil", got.ID)
				}
				return
			}
			if got == nil {
				t.Fatal("LocateProgress() = nil")
			}
			if got.ID != tt.wantID {
				t.Errorf("LocateProgress() = %d, want %d", got.ID, tt.wantID)
			}
		})
	}
}

// TestLocateProgressOnReconstructedFork runs the locator over a real
// reconstruction: the failed branch is highlighted, not the running start.
func TestLocateProgressOnReconstructedFork(t *testing.T) {
	subtasks := forkJoin()
	subtasks[0].Status = StatusRunning
	subtasks[1].Status = StatusFailed
	subtasks[2].Status = StatusSuccessful
	subtasks[3].Status = StatusPending

	nodes, err := Reconstruct(subtasks)
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}

	flat := Flatten(nodes)
	ids := recordIDs(flat)
	if len(ids) != 4 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 || ids[3] != 4 {
		t.Fatalf("Flatten() = %v, want [1 2 3 4]", ids)
	}

	if got := LocateProgress(flat); got == nil || got.ID != 2 {
		t.Errorf("LocateProgress() = %v, want subtask 2", got)
	}
}

func TestSummarize(t *testing.T) {
	p := Summarize([]*SubtaskRecord{
		withStatus(1, StatusSuccessful),
		withStatus(2, StatusSuccessful),
		withStatus(3, StatusRunning),
		withStatus(4, StatusFailed),
		withStatus(5, StatusReady),
		withStatus(6, StatusPending),
		withStatus(7, "CANCELLED"),
		nil,
	})

	want := Progress{Total: 7, Successful: 2, Running: 1, Failed: 1, Ready: 1, Pending: 1, Other: 1}
	if p != want {
		t.Errorf("Summarize() = %+v, want %+v", p, want)
	}
	if p.Done() {
		t.Error("Done() = true with unfinished subtasks")
	}

	if !Summarize([]*SubtaskRecord{withStatus(1, StatusSuccessful)}).Done() {
		t.Error("Done() = false with every subtask successful")
	}
}
