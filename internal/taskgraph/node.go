package taskgraph

// NodeKind distinguishes the variants of GraphNode.
type NodeKind int

const (
	NodeSingle NodeKind = iota // One subtask on the main sequence
	NodeFork                   // Parallel branches between a fork and its join
)

// GraphNode is one position in a reconstructed execution sequence: either a
// single subtask or a fork group wrapping sibling branches.
type GraphNode struct {
	Kind     NodeKind
	Record   *SubtaskRecord   // Set for NodeSingle
	Branches []*SubtaskRecord // Set for NodeFork, ascending id
}

// Single wraps a record as a plain sequence node.
func Single(r *SubtaskRecord) GraphNode {
	return GraphNode{Kind: NodeSingle, Record: r}
}

// Fork wraps sibling branches as a fork group.
func Fork(branches []*SubtaskRecord) GraphNode {
	return GraphNode{Kind: NodeFork, Branches: branches}
}

// IsFork reports whether the node is a fork group.
func (n GraphNode) IsFork() bool {
	return n.Kind == NodeFork
}

// Records returns the subtasks covered by this node in display order.
func (n GraphNode) Records() []*SubtaskRecord {
	if n.Kind == NodeFork {
		return n.Branches
	}
	if n.Record == nil {
		return nil
	}
	return []*SubtaskRecord{n.Record}
}

// Flatten expands fork groups in place, preserving sequence order.
func Flatten(nodes []GraphNode) []*SubtaskRecord {
	flat := make([]*SubtaskRecord, 0, len(nodes))
	for _, n := range nodes {
		flat = append(flat, n.Records()...)
	}
	return flat
}
