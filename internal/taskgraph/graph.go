package taskgraph

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/gammazero/toposort"
)

var (
	// ErrUnsupportedTopology is returned when branches do not reconverge on a
	// single join subtask (nested forks, multi-way joins).
	ErrUnsupportedTopology = errors.New("unsupported topology")

	// ErrUnreachable is returned when some subtasks cannot be reached from the
	// start subtask(s), e.g. the graph has more than one component.
	ErrUnreachable = errors.New("subtasks unreachable from start")

	// ErrInvalidGraph is returned for dangling references, adjacency lists that
	// disagree with each other, duplicate ids and cycles.
	ErrInvalidGraph = errors.New("invalid subtask graph")
)

// index is an id-keyed view over a canonicalised copy of a subtask list.
// Records are sorted by id and every adjacency list is sorted ascending, so any
// permutation of the same input produces the same index.
type index struct {
	records []*SubtaskRecord // ascending id, duplicates removed
	byID    map[int64]*SubtaskRecord
}

func newIndex(subtasks []SubtaskRecord) (*index, error) {
	sorted := make([]*SubtaskRecord, 0, len(subtasks))
	for _, st := range subtasks {
		cp := cloneRecord(st)
		slices.Sort(cp.Upstreams)
		slices.Sort(cp.Downstreams)
		sorted = append(sorted, &cp)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	idx := &index{
		records: make([]*SubtaskRecord, 0, len(sorted)),
		byID:    make(map[int64]*SubtaskRecord, len(sorted)),
	}

	var errs []error
	for _, r := range sorted {
		if _, exists := idx.byID[r.ID]; exists {
			errs = append(errs, fmt.Errorf("%w: duplicate subtask id %d", ErrInvalidGraph, r.ID))
			continue
		}
		idx.byID[r.ID] = r
		idx.records = append(idx.records, r)
	}

	return idx, errors.Join(errs...)
}

// Validate checks the structural preconditions of a subtask list and returns
// the subtask ids in a topological order.
// It reports dangling references, upstream/downstream lists that disagree,
// duplicate ids and cycles. It does not check the single-level branching
// assumption; Reconstruct reports that while walking.
func Validate(subtasks []SubtaskRecord) ([]int64, error) {
	idx, dupErr := newIndex(subtasks)
	order, err := idx.validate()
	return order, errors.Join(dupErr, err)
}

func (idx *index) validate() ([]int64, error) {
	if len(idx.records) == 0 {
		return nil, nil
	}

	var errs []error

	// Every reference must resolve, and both ends of an edge must agree.
	for _, r := range idx.records {
		for _, upID := range r.Upstreams {
			up, ok := idx.byID[upID]
			if !ok {
				errs = append(errs, fmt.Errorf("%w: subtask %d depends on unknown subtask %d", ErrInvalidGraph, r.ID, upID))
				continue
			}
			if !containsID(up.Downstreams, r.ID) {
				errs = append(errs, fmt.Errorf("%w: subtask %d lists upstream %d, which does not list it downstream", ErrInvalidGraph, r.ID, upID))
			}
		}
		for _, downID := range r.Downstreams {
			down, ok := idx.byID[downID]
			if !ok {
				errs = append(errs, fmt.Errorf("%w: subtask %d feeds unknown subtask %d", ErrInvalidGraph, r.ID, downID))
				continue
			}
			if !containsID(down.Upstreams, r.ID) {
				errs = append(errs, fmt.Errorf("%w: subtask %d lists downstream %d, which does not list it upstream", ErrInvalidGraph, r.ID, downID))
			}
		}
	}

	// Build edges for topological sort
	var edges []toposort.Edge
	for _, r := range idx.records {
		if len(r.Upstreams) == 0 {
			// Root subtask: edge from nil so it is part of the result
			edges = append(edges, toposort.Edge{nil, r.ID})
			continue
		}
		for _, upID := range r.Upstreams {
			// Edge (upID, r.ID) means upID must come before r.ID
			edges = append(edges, toposort.Edge{upID, r.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: subtask graph contains cycle: %v", ErrInvalidGraph, err))
		return nil, errors.Join(errs...)
	}

	order := make([]int64, 0, len(idx.records))
	for _, id := range sorted {
		if id == nil {
			continue
		}
		// Dangling upstream ids show up in the sort; they are already reported.
		if _, ok := idx.byID[id.(int64)]; ok {
			order = append(order, id.(int64))
		}
	}

	return order, errors.Join(errs...)
}

// Reconstruct turns an unordered subtask list into an ordered execution
// sequence, collapsing parallel branches into fork groups and resuming the main
// sequence at the join subtask.
//
// Only one level of branching is supported. When the walk meets a topology it
// cannot represent, or when some subtasks are never reached, the sequence
// built so far is returned together with an error wrapping
// ErrUnsupportedTopology, ErrUnreachable or ErrInvalidGraph. Callers rendering
// the result should display the partial sequence and surface the error.
func Reconstruct(subtasks []SubtaskRecord) ([]GraphNode, error) {
	if len(subtasks) == 0 {
		return []GraphNode{}, nil
	}

	idx, dupErr := newIndex(subtasks)
	_, validateErr := idx.validate()

	nodes, walkErr := idx.walk()

	// Surface anything the walk never reached
	var unreachableErr error
	seen := make(map[int64]bool, len(idx.records))
	for _, r := range Flatten(nodes) {
		seen[r.ID] = true
	}
	var missing []int64
	for _, r := range idx.records {
		if !seen[r.ID] {
			missing = append(missing, r.ID)
		}
	}
	if len(missing) > 0 {
		unreachableErr = fmt.Errorf("%w: %v", ErrUnreachable, missing)
	}

	return nodes, errors.Join(dupErr, validateErr, walkErr, unreachableErr)
}

// walk follows downstream links from the start subtask(s).
func (idx *index) walk() ([]GraphNode, error) {
	starts := idx.starts()
	if len(starts) == 0 {
		return []GraphNode{}, fmt.Errorf("%w: every subtask has an upstream", ErrInvalidGraph)
	}

	nodes := make([]GraphNode, 0, len(idx.records))
	visited := make(map[int64]bool, len(idx.records))

	// With several start candidates a virtual root feeds all of them; the root
	// is never emitted, so the walk opens with a fork group of the candidates.
	var next *SubtaskRecord
	var pending []int64
	if len(starts) == 1 {
		next = starts[0]
	} else {
		pending = recordIDs(starts)
	}

	for {
		if next != nil {
			if visited[next.ID] {
				return nodes, fmt.Errorf("%w: subtask %d reached twice", ErrInvalidGraph, next.ID)
			}
			visited[next.ID] = true
			nodes = append(nodes, Single(next))
			pending = next.Downstreams
			next = nil
		}

		switch len(pending) {
		case 0:
			return nodes, nil

		case 1:
			r, ok := idx.byID[pending[0]]
			if !ok {
				return nodes, fmt.Errorf("%w: subtask %d not found", ErrInvalidGraph, pending[0])
			}
			next = r

		default:
			branches, join, err := idx.fork(pending)
			for _, b := range branches {
				if visited[b.ID] {
					return nodes, fmt.Errorf("%w: subtask %d reached twice", ErrInvalidGraph, b.ID)
				}
				visited[b.ID] = true
			}
			if len(branches) > 0 {
				nodes = append(nodes, Fork(branches))
			}
			if err != nil {
				return nodes, err
			}
			if join == nil {
				return nodes, nil
			}
			next = join
		}
	}
}

// fork resolves the sibling branches for the given downstream ids and the
// join subtask they converge on. join is nil when no branch has a downstream.
// No branches are returned when one sibling depends on another.
func (idx *index) fork(ids []int64) ([]*SubtaskRecord, *SubtaskRecord, error) {
	branches := make([]*SubtaskRecord, 0, len(ids))
	var unknown []int64
	union := make(map[int64]struct{})

	for _, id := range ids {
		r, ok := idx.byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		branches = append(branches, r)
		for _, d := range r.Downstreams {
			union[d] = struct{}{}
		}
	}

	if len(unknown) > 0 {
		return branches, nil, fmt.Errorf("%w: fork references unknown subtasks %v", ErrInvalidGraph, unknown)
	}

	// A branch that waits on a sibling cannot sit in the same group.
	for _, r := range branches {
		for _, up := range r.Upstreams {
			if slices.Contains(ids, up) {
				return nil, nil, fmt.Errorf("%w: subtask %d runs after its sibling %d", ErrUnsupportedTopology, r.ID, up)
			}
		}
		for _, d := range r.Downstreams {
			if slices.Contains(ids, d) {
				return nil, nil, fmt.Errorf("%w: subtask %d runs after its sibling %d", ErrUnsupportedTopology, d, r.ID)
			}
		}
	}

	joins := make([]int64, 0, len(union))
	for id := range union {
		joins = append(joins, id)
	}
	slices.Sort(joins)

	switch len(joins) {
	case 0:
		return branches, nil, nil
	case 1:
		join, ok := idx.byID[joins[0]]
		if !ok {
			return branches, nil, fmt.Errorf("%w: join subtask %d not found", ErrInvalidGraph, joins[0])
		}
		return branches, join, nil
	default:
		return branches, nil, fmt.Errorf("%w: branches %v converge on %v instead of a single join",
			ErrUnsupportedTopology, recordIDs(branches), joins)
	}
}

// starts returns the records without upstreams, ascending id.
func (idx *index) starts() []*SubtaskRecord {
	var starts []*SubtaskRecord
	for _, r := range idx.records {
		if len(r.Upstreams) == 0 {
			starts = append(starts, r)
		}
	}
	return starts
}

func recordIDs(records []*SubtaskRecord) []int64 {
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func containsID(ids []int64, id int64) bool {
	_, found := slices.BinarySearch(ids, id)
	return found
}
