package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskconsole/internal/logseg"
	"github.com/aristath/taskconsole/internal/snapshot"
	"github.com/aristath/taskconsole/internal/taskgraph"
)

// currentMarker flags the progress pointer in graph rows.
const currentMarker = "◀"

// graphRow is one line of a rendered graph. Fork headers carry no record.
type graphRow struct {
	record *taskgraph.SubtaskRecord
	prefix string
	forkOf int // Branch count, set on fork headers
}

// graphRows lays out nodes in sequence order, expanding each fork group into
// a header followed by one row per branch.
func graphRows(nodes []taskgraph.GraphNode) []graphRow {
	rows := make([]graphRow, 0, len(nodes))
	for _, n := range nodes {
		if !n.IsFork() {
			rows = append(rows, graphRow{record: n.Record})
			continue
		}
		rows = append(rows, graphRow{forkOf: len(n.Branches)})
		for i, b := range n.Branches {
			prefix := "├ "
			if i == len(n.Branches)-1 {
				prefix = "└ "
			}
			rows = append(rows, graphRow{record: b, prefix: prefix})
		}
	}
	return rows
}

// recordTitle names a subtask by id and name, falling back to its type.
func recordTitle(r *taskgraph.SubtaskRecord) string {
	name := r.Name
	if name == "" {
		name = r.Type
	}
	return strings.TrimSpace(fmt.Sprintf("#%d %s", r.ID, name))
}

// renderRow formats one graph row. styled applies status colors.
func renderRow(row graphRow, snap snapshot.Snapshot, styled bool) string {
	if row.record == nil {
		return fmt.Sprintf("┬ parallel (%d)", row.forkOf)
	}

	r := row.record
	icon := StatusIcon(r.Status)
	status := string(r.Status)
	if styled {
		icon = StatusStyle(r.Status).Render(icon)
		status = StatusStyle(r.Status).Render(status)
	}

	line := fmt.Sprintf("%s%s %s  %s  %s", row.prefix, icon, recordTitle(r), status, snap.Durations[r.ID])
	if snap.Current != nil && snap.Current.ID == r.ID {
		line += " " + currentMarker
	}
	return line
}

// taskHeader renders the task name, status and total duration.
func taskHeader(snap snapshot.Snapshot, styled bool) string {
	t := snap.Task
	status := string(t.Status)
	if styled {
		status = StatusStyle(t.Status).Render(status)
	}
	title := strings.TrimSpace(fmt.Sprintf("Task #%d %s", t.ID, t.Name))
	if styled {
		title = StyleTitle.Render(title)
	}
	return fmt.Sprintf("%s  %s  %s", title, status, snap.Duration)
}

// progressLine summarizes subtask counts.
func progressLine(p taskgraph.Progress) string {
	line := fmt.Sprintf("%d/%d successful, %d running, %d failed, %d ready, %d pending",
		p.Successful, p.Total, p.Running, p.Failed, p.Ready, p.Pending)
	if p.Other > 0 {
		line += fmt.Sprintf(", %d other", p.Other)
	}
	return line
}

// staleLine describes a snapshot served from the cache.
func staleLine(snap snapshot.Snapshot) string {
	return fmt.Sprintf("cached copy from %s, task API unreachable", snap.TakenAt.Format(time.DateTime))
}

// renderLog formats a subtask log newest segment first. Segments with an
// empty label print their body only.
func renderLog(log logseg.Log, styled bool) string {
	segs := log.Segments()
	if len(segs) == 0 {
		return "(no log output)"
	}

	var b strings.Builder
	for i, s := range segs {
		if i > 0 {
			b.WriteString("\n")
		}
		label := strings.TrimSpace(s.NodeLabel)
		if label != "" {
			if styled {
				label = StyleLogLabel.Render(label)
			}
			b.WriteString("── " + label + "\n")
		}
		if s.Body != "" {
			b.WriteString(s.Body)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderPlain renders a snapshot as a static report: header, progress,
// graph and the log of the subtask at the progress pointer. With styled
// set, statuses and labels carry terminal colors.
func RenderPlain(snap snapshot.Snapshot, styled bool) string {
	if snap.Task == nil {
		return "No task data\n"
	}

	var b strings.Builder
	b.WriteString(taskHeader(snap, styled))
	b.WriteString("\n")
	b.WriteString(progressLine(snap.Progress))
	b.WriteString("\n")

	if snap.Stale {
		line := staleLine(snap)
		if styled {
			line = StyleStale.Render(line)
		}
		b.WriteString(line + "\n")
	}
	if snap.TopologyErr != nil {
		line := "partial graph: " + snap.TopologyErr.Error()
		if styled {
			line = StyleError.Render(line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	rows := graphRows(snap.Nodes)
	if len(rows) == 0 {
		b.WriteString("(no subtasks)\n")
	}
	for _, row := range rows {
		b.WriteString(renderRow(row, snap, styled))
		b.WriteString("\n")
	}

	if cur := snap.Current; cur != nil {
		title := "Log " + recordTitle(cur)
		if styled {
			title = lipgloss.NewStyle().Bold(true).Render(title)
		}
		b.WriteString("\n" + title + "\n")
		b.WriteString(renderLog(snap.Logs[cur.ID], styled))
		b.WriteString("\n")
	}

	return b.String()
}
