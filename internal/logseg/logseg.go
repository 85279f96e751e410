// Package logseg splits a raw subtask log into labelled segments.
//
// The executor writes an inline marker before the output of each step:
//
//	############TYPE{2024-01-01T00:00:00Z}############
//
// Split cuts the text at those markers and returns the segments newest first,
// which is how the console lists them.
package logseg

import (
	"regexp"
	"strings"
	"time"
)

// markerRe matches one marker. Type and timestamp are both optional so a
// malformed marker still splits the text and degrades to empty captures.
var markerRe = regexp.MustCompile(`#{12}([^#{}\n]*)(?:\{([^{}#\n]*)\})?#{12}`)

// timeLayouts are tried in order when parsing a marker timestamp.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// clockLayout matches markers written by Render. Those already carry a local
// clock and are shown as written.
const clockLayout = "15:04:05"

// Log is a segmented log. Labels[i] and Types[i] describe Bodies[i]. Bodies
// may hold one more entry than Labels: the text written before the first
// marker, which has no label and is the oldest, so it comes last.
type Log struct {
	Labels []string
	Types  []string
	Bodies []string
}

// Segment pairs a body with its label.
type Segment struct {
	NodeLabel string
	Type      string
	Body      string
}

// chunk is one piece of the raw text: a marker or the text after it.
type chunk struct {
	marker bool
	typ    string
	ts     string
	text   string
}

// Split segments raw. Marker timestamps are shown as HH:mm:ss in loc, or in
// the offset they were written with when loc is nil.
func Split(raw string, loc *time.Location) Log {
	log := Log{Labels: []string{}, Types: []string{}, Bodies: []string{}}
	if raw == "" {
		return log
	}

	chunks := splitChunks(raw)

	// Chronological in the source, newest first on screen.
	for i, j := 0, len(chunks)-1; i < j; i, j = i+1, j-1 {
		chunks[i], chunks[j] = chunks[j], chunks[i]
	}

	for _, c := range chunks {
		if c.marker {
			log.Labels = append(log.Labels, label(c.typ, c.ts, loc))
			log.Types = append(log.Types, c.typ)
			continue
		}
		log.Bodies = append(log.Bodies, trimBlankLines(c.text))
	}

	return log
}

// splitChunks cuts raw at every marker, keeping the markers and the text
// between them in source order. Text preceding the first marker is kept only
// when it is not blank; every marker is followed by exactly one text chunk.
func splitChunks(raw string) []chunk {
	matches := markerRe.FindAllStringSubmatchIndex(raw, -1)
	chunks := make([]chunk, 0, 2*len(matches)+1)

	prev := 0
	for i, m := range matches {
		if i > 0 || strings.TrimSpace(raw[:m[0]]) != "" {
			chunks = append(chunks, chunk{text: raw[prev:m[0]]})
		}
		chunks = append(chunks, chunk{
			marker: true,
			typ:    group(raw, m, 1),
			ts:     group(raw, m, 2),
		})
		prev = m[1]
	}
	if len(matches) > 0 || strings.TrimSpace(raw) != "" {
		chunks = append(chunks, chunk{text: raw[prev:]})
	}

	return chunks
}

// group returns capture n of a submatch index, or "" when it did not participate.
func group(s string, m []int, n int) string {
	if 2*n+1 >= len(m) || m[2*n] < 0 {
		return ""
	}
	return strings.TrimSpace(s[m[2*n]:m[2*n+1]])
}

func label(typ, ts string, loc *time.Location) string {
	return strings.TrimSpace(typ + " " + clock(ts, loc))
}

// clock formats ts as HH:mm:ss, or returns "" when ts cannot be parsed.
func clock(ts string, loc *time.Location) string {
	if ts == "" {
		return ""
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			if loc != nil {
				t = t.In(loc)
			}
			return t.Format(clockLayout)
		}
	}
	if t, err := time.Parse(clockLayout, ts); err == nil {
		return t.Format(clockLayout)
	}
	return ""
}

// trimBlankLines drops leading and trailing lines that hold only whitespace,
// keeping the indentation of the remaining lines.
func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

// Segments pairs each label with its body. The unlabelled preamble, if any,
// is returned last with an empty NodeLabel.
func (l Log) Segments() []Segment {
	segs := make([]Segment, 0, len(l.Bodies))
	for i, body := range l.Bodies {
		var s Segment
		if i < len(l.Labels) {
			s.NodeLabel = l.Labels[i]
		}
		if i < len(l.Types) {
			s.Type = l.Types[i]
		}
		s.Body = body
		segs = append(segs, s)
	}
	return segs
}

// Len returns the number of segments.
func (l Log) Len() int {
	return len(l.Bodies)
}

// Render reassembles the log in source order with normalised markers.
// Timestamps appear as they are labelled (HH:mm:ss), not as originally written.
func (l Log) Render() string {
	var b strings.Builder
	segs := l.Segments()
	for i := len(segs) - 1; i >= 0; i-- {
		s := segs[i]
		if i < len(l.Labels) {
			ts := strings.TrimSpace(strings.TrimPrefix(s.NodeLabel, s.Type))
			b.WriteString(Marker(s.Type, ts))
			b.WriteString("\n")
		}
		if s.Body != "" {
			b.WriteString(s.Body)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Marker formats an inline marker. The braces are omitted when ts is empty.
func Marker(typ, ts string) string {
	if ts == "" {
		return "############" + typ + "############"
	}
	return "############" + typ + "{" + ts + "}############"
}
