package taskgraph

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func rec(id int64, ups, downs []int64) SubtaskRecord {
	return SubtaskRecord{ID: id, Status: StatusPending, Upstreams: ups, Downstreams: downs}
}

// describe renders a sequence compactly: "1" for a single node, "[2 3]" for a fork.
func describe(nodes []GraphNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n.IsFork() {
			out = append(out, fmt.Sprint(recordIDs(n.Branches)))
			continue
		}
		out = append(out, fmt.Sprint(n.Record.ID))
	}
	return out
}

// forkJoin is the diamond 1 -> {2,3} -> 4.
func forkJoin() []SubtaskRecord {
	return []SubtaskRecord{
		rec(1, nil, []int64{2, 3}),
		rec(2, []int64{1}, []int64{4}),
		rec(3, []int64{1}, []int64{4}),
		rec(4, []int64{2, 3}, nil),
	}
}

// TestReconstruct covers the supported shapes.
func TestReconstruct(t *testing.T) {
	tests := []struct {
		name     string
		subtasks []SubtaskRecord
		want     []string
	}{
		{
			name:     "empty input",
			subtasks: nil,
			want:     []string{},
		},
		{
			name:     "single subtask",
			subtasks: []SubtaskRecord{rec(7, nil, nil)},
			want:     []string{"7"},
		},
		{
			name: "linear chain out of order",
			subtasks: []SubtaskRecord{
				rec(3, []int64{2}, nil),
				rec(1, nil, []int64{2}),
				rec(2, []int64{1}, []int64{3}),
			},
			want: []string{"1", "2", "3"},
		},
		{
			name:     "fork and join",
			subtasks: forkJoin(),
			want:     []string{"1", "[2 3]", "4"},
		},
		{
			name: "fork with unsorted adjacency",
			subtasks: []SubtaskRecord{
				rec(4, []int64{3, 2}, nil),
				rec(1, nil, []int64{3, 2}),
				rec(3, []int64{1}, []int64{4}),
				rec(2, []int64{1}, []int64{4}),
			},
			want: []string{"1", "[2 3]", "4"},
		},
		{
			name: "multiple start subtasks",
			subtasks: []SubtaskRecord{
				rec(1, nil, []int64{3}),
				rec(2, nil, []int64{3}),
				rec(3, []int64{1, 2}, []int64{4}),
				rec(4, []int64{3}, nil),
			},
			want: []string{"[1 2]", "3", "4"},
		},
		{
			name: "fork at the end",
			subtasks: []SubtaskRecord{
				rec(1, nil, []int64{2, 3, 4}),
				rec(2, []int64{1}, nil),
				rec(3, []int64{1}, nil),
				rec(4, []int64{1}, nil),
			},
			want: []string{"1", "[2 3 4]"},
		},
		{
			name: "branch without downstream still joins",
			subtasks: []SubtaskRecord{
				rec(1, nil, []int64{2, 3}),
				rec(2, []int64{1}, []int64{4}),
				rec(3, []int64{1}, nil),
				rec(4, []int64{2}, nil),
			},
			want: []string{"1", "[2 3]", "4"},
		},
		{
			name: "two consecutive forks",
			subtasks: []SubtaskRecord{
				rec(1, nil, []int64{2, 3}),
				rec(2, []int64{1}, []int64{4}),
				rec(3, []int64{1}, []int64{4}),
				rec(4, []int64{2, 3}, []int64{5, 6}),
				rec(5, []int64{4}, []int64{7}),
				rec(6, []int64{4}, []int64{7}),
				rec(7, []int64{5, 6}, nil),
			},
			want: []string{"1", "[2 3]", "4", "[5 6]", "7"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := Reconstruct(tt.subtasks)
			if err != nil {
				t.Fatalf("Reconstruct() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, describe(nodes)); diff != "" {
				t.Errorf("Reconstruct() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestReconstructTopologyErrors verifies partial output plus a typed error.
func TestReconstructTopologyErrors(t *testing.T) {
	tests := []struct {
		name     string
		subtasks []SubtaskRecord
		want     []string
		wantErrs []error
		notErrs  []error
	}{
		{
			name: "multi-way join",
			subtasks: []SubtaskRecord{
				rec(1, nil, []int64{2, 3}),
				rec(2, []int64{1}, []int64{4}),
				rec(3, []int64{1}, []int64{5}),
				rec(4, []int64{2}, nil),
				rec(5, []int64{3}, nil),
			},
			want:     []string{"1", "[2 3]"},
			wantErrs: []error{ErrUnsupportedTopology, ErrUnreachable},
		},
		{
			name: "nested fork",
			subtasks: []SubtaskRecord{
				rec(1, nil, []int64{2, 3}),
				rec(2, []int64{1}, []int64{4, 5}),
				rec(3, []int64{1}, []int64{6}),
				rec(4, []int64{2}, []int64{6}),
				rec(5, []int64{2}, []int64{6}),
				rec(6, []int64{3, 4, 5}, nil),
			},
			want:     []string{"1", "[2 3]"},
			wantErrs: []error{ErrUnsupportedTopology, ErrUnreachable},
		},
		{
			name: "branch depends on its sibling",
			subtasks: []SubtaskRecord{
				rec(1, nil, []int64{2, 3}),
				rec(2, []int64{1}, []int64{3}),
				rec(3, []int64{1, 2}, nil),
			},
			want:     []string{"1"},
			wantErrs: []error{ErrUnsupportedTopology, ErrUnreachable},
			notErrs:  []error{ErrInvalidGraph},
		},
		{
			name: "sibling dependency before a join",
			subtasks: []SubtaskRecord{
				rec(1, nil, []int64{2, 3, 4}),
				rec(2, []int64{1}, []int64{3}),
				rec(3, []int64{1, 2}, []int64{5}),
				rec(4, []int64{1}, []int64{5}),
				rec(5, []int64{3, 4}, nil),
			},
			want:     []string{"1"},
			wantErrs: []error{ErrUnsupportedTopology, ErrUnreachable},
			notErrs:  []error{ErrInvalidGraph},
		},
		{
			name: "disconnected components",
			subtasks: []SubtaskRecord{
				rec(1, nil, []int64{2}),
				rec(2, []int64{1}, nil),
				rec(3, nil, []int64{4}),
				rec(4, []int64{3}, nil),
			},
			want:     []string{"[1 3]"},
			wantErrs: []error{ErrUnsupportedTopology, ErrUnreachable},
		},
		{
			name: "dangling downstream",
			subtasks: []SubtaskRecord{
				rec(1, nil, []int64{9}),
			},
			want:     []string{"1"},
			wantErrs: []error{ErrInvalidGraph},
		},
		{
			name: "cycle behind the start",
			subtasks: []SubtaskRecord{
				rec(1, nil, []int64{2}),
				rec(2, []int64{1, 3}, []int64{3}),
				rec(3, []int64{2}, []int64{2}),
			},
			want:     []string{"1", "2", "3"},
			wantErrs: []error{ErrInvalidGraph},
		},
		{
			name: "no start subtask",
			subtasks: []SubtaskRecord{
				rec(1, []int64{2}, []int64{2}),
				rec(2, []int64{1}, []int64{1}),
			},
			want:     []string{},
			wantErrs: []error{ErrInvalidGraph, ErrUnreachable},
		},
		{
			name: "duplicate ids",
			subtasks: []SubtaskRecord{
				rec(1, nil, []int64{2}),
				rec(2, []int64{1}, nil),
				rec(2, []int64{1}, nil),
			},
			want:     []string{"1", "2"},
			wantErrs: []error{ErrInvalidGraph},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := Reconstruct(tt.subtasks)
			if err == nil {
				t.Fatal("Reconstruct() expected error, got nil")
			}
			for _, want := range tt.wantErrs {
				if !errors.Is(err, want) {
					t.Errorf("Reconstruct() error = %v, want it to wrap %v", err, want)
				}
			}
			for _, reject := range tt.notErrs {
				if errors.Is(err, reject) {
					t.Errorf("Reconstruct() error = %v, must not wrap %v", err, reject)
				}
			}
			if diff := cmp.Diff(tt.want, describe(nodes)); diff != "" {
				t.Errorf("partial sequence mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestReconstructDeterministic shuffles the input and every adjacency list and
// expects the exact same sequence each time.
func TestReconstructDeterministic(t *testing.T) {
	base := []SubtaskRecord{
		rec(1, nil, []int64{2, 3, 4}),
		rec(2, []int64{1}, []int64{5}),
		rec(3, []int64{1}, []int64{5}),
		rec(4, []int64{1}, []int64{5}),
		rec(5, []int64{2, 3, 4}, []int64{6}),
		rec(6, []int64{5}, nil),
	}

	want, err := Reconstruct(base)
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := make([]SubtaskRecord, len(base))
		for j, p := range rng.Perm(len(base)) {
			r := cloneRecord(base[p])
			rng.Shuffle(len(r.Upstreams), func(a, b int) { r.Upstreams[a], r.Upstreams[b] = r.Upstreams[b], r.Upstreams[a] })
			rng.Shuffle(len(r.Downstreams), func(a, b int) { r.Downstreams[a], r.Downstreams[b] = r.Downstreams[b], r.Downstreams[a] })
			shuffled[j] = r
		}

		got, err := Reconstruct(shuffled)
		if err != nil {
			t.Fatalf("iteration %d: Reconstruct() error = %v", i, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("iteration %d: sequence differs (-want +got):\n%s", i, diff)
		}
	}
}

// TestReconstructCoverageAndOrder checks that every record appears exactly
// once and after all of its upstreams.
func TestReconstructCoverageAndOrder(t *testing.T) {
	graphs := map[string][]SubtaskRecord{
		"diamond": forkJoin(),
		"wide fork": {
			rec(10, nil, []int64{11, 12, 13, 14}),
			rec(11, []int64{10}, []int64{15}),
			rec(12, []int64{10}, []int64{15}),
			rec(13, []int64{10}, []int64{15}),
			rec(14, []int64{10}, []int64{15}),
			rec(15, []int64{11, 12, 13, 14}, []int64{16}),
			rec(16, []int64{15}, nil),
		},
		"starts then chain": {
			rec(5, nil, []int64{8}),
			rec(6, nil, []int64{8}),
			rec(7, nil, []int64{8}),
			rec(8, []int64{5, 6, 7}, []int64{9}),
			rec(9, []int64{8}, nil),
		},
	}

	for name, subtasks := range graphs {
		t.Run(name, func(t *testing.T) {
			nodes, err := Reconstruct(subtasks)
			if err != nil {
				t.Fatalf("Reconstruct() error = %v", err)
			}

			flat := Flatten(nodes)
			if len(flat) != len(subtasks) {
				t.Fatalf("flattened %d records, want %d", len(flat), len(subtasks))
			}

			position := make(map[int64]int, len(flat))
			for i, r := range flat {
				if _, dup := position[r.ID]; dup {
					t.Fatalf("subtask %d appears twice", r.ID)
				}
				position[r.ID] = i
			}

			for _, r := range flat {
				for _, up := range r.Upstreams {
					if position[up] >= position[r.ID] {
						t.Errorf("subtask %d at %d does not follow upstream %d at %d", r.ID, position[r.ID], up, position[up])
					}
				}
			}
		})
	}
}

// TestReconstructDoesNotMutateInput guards the caller's snapshot.
func TestReconstructDoesNotMutateInput(t *testing.T) {
	input := []SubtaskRecord{
		rec(2, []int64{1}, nil),
		rec(1, nil, []int64{2}),
	}
	input[0].Status = StatusRunning

	if _, err := Reconstruct(input); err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}

	if input[0].ID != 2 || input[1].ID != 1 {
		t.Errorf("input order changed: %d, %d", input[0].ID, input[1].ID)
	}
}

// TestValidate checks the precondition report and topological order.
func TestValidate(t *testing.T) {
	order, err := Validate(forkJoin())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(order) != 4 || order[0] != 1 || order[3] != 4 {
		t.Errorf("Validate() order = %v, want 1 first and 4 last", order)
	}

	_, err = Validate([]SubtaskRecord{
		rec(1, nil, []int64{2}),
		rec(2, nil, nil), // does not list 1 as upstream
	})
	if !errors.Is(err, ErrInvalidGraph) {
		t.Fatalf("Validate() error = %v, want ErrInvalidGraph", err)
	}
	if !strings.Contains(err.Error(), "does not list it upstream") {
		t.Errorf("error %q does not describe the mismatch", err)
	}

	_, err = Validate([]SubtaskRecord{rec(1, []int64{1}, []int64{1})})
	if !errors.Is(err, ErrInvalidGraph) || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("Validate() self-loop error = %v, want cycle", err)
	}
}
