// Package patch parses and applies the textual patch envelope produced by
// report-writing models. The envelope is delimited by "*** Begin Patch" and
// "*** End Patch" and contains Add/Delete/Update file operations with
// unified-diff-like hunks.
package patch

import (
	"errors"
	"fmt"
	"strings"
)

// Envelope delimiters and operation headers. These are an external contract;
// do not change the literals.
const (
	beginMarker  = "*** Begin Patch"
	endMarker    = "*** End Patch"
	addHeader    = "*** Add File: "
	deleteHeader = "*** Delete File: "
	updateHeader = "*** Update File: "
	moveHeader   = "*** Move to: "
	eofMarker    = "*** End of File"
)

// ErrMalformed marks envelope syntax errors.
var ErrMalformed = errors.New("malformed patch")

// OpKind distinguishes file operations.
type OpKind int

const (
	OpAdd OpKind = iota
	OpDelete
	OpUpdate
)

func (k OpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	case OpUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// LineKind distinguishes hunk lines.
type LineKind int

const (
	LineContext LineKind = iota
	LineAdd
	LineDelete
)

// HunkLine is one line of an update hunk, without its +/-/space prefix.
type HunkLine struct {
	Kind LineKind
	Text string
}

// Hunk is one change chunk of an update operation. Marker carries the text
// after "@@ " and, when non-empty, anchors the hunk below a matching line.
type Hunk struct {
	Marker string
	Lines  []HunkLine
}

// FileOp is one file operation of a patch.
type FileOp struct {
	Kind   OpKind
	Path   string
	MoveTo string

	// Hunks for updates.
	Hunks []Hunk

	// Content lines for adds.
	Content []string
}

// Patch is a parsed envelope.
type Patch struct {
	Ops []FileOp
}

// Parse decodes a patch envelope. Leading and trailing whitespace around the
// envelope is tolerated; everything inside is taken literally.
func Parse(text string) (*Patch, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	start := -1
	end := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == beginMarker && start == -1 {
			start = i
		}
		if strings.TrimSpace(line) == endMarker {
			end = i
		}
	}
	if start == -1 {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformed, beginMarker)
	}
	if end == -1 || end < start {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformed, endMarker)
	}

	patch := &Patch{}
	var current *FileOp
	var hunk *Hunk

	flushHunk := func() {
		if current != nil && hunk != nil && len(hunk.Lines) > 0 {
			current.Hunks = append(current.Hunks, *hunk)
		}
		hunk = nil
	}
	flushOp := func() {
		flushHunk()
		if current != nil {
			patch.Ops = append(patch.Ops, *current)
		}
		current = nil
	}

	for _, line := range lines[start+1 : end] {
		switch {
		case strings.HasPrefix(line, addHeader):
			flushOp()
			current = &FileOp{Kind: OpAdd, Path: strings.TrimSpace(line[len(addHeader):])}

		case strings.HasPrefix(line, deleteHeader):
			flushOp()
			current = &FileOp{Kind: OpDelete, Path: strings.TrimSpace(line[len(deleteHeader):])}

		case strings.HasPrefix(line, updateHeader):
			flushOp()
			current = &FileOp{Kind: OpUpdate, Path: strings.TrimSpace(line[len(updateHeader):])}

		case strings.HasPrefix(line, moveHeader):
			if current == nil || current.Kind != OpUpdate {
				return nil, fmt.Errorf("%w: %q outside an update operation", ErrMalformed, moveHeader)
			}
			current.MoveTo = strings.TrimSpace(line[len(moveHeader):])

		case strings.TrimSpace(line) == eofMarker:
			flushHunk()

		case strings.HasPrefix(line, "@@"):
			if current == nil || current.Kind != OpUpdate {
				return nil, fmt.Errorf("%w: hunk marker outside an update operation", ErrMalformed)
			}
			flushHunk()
			hunk = &Hunk{Marker: strings.TrimSpace(strings.TrimPrefix(line, "@@"))}

		default:
			if current == nil {
				if strings.TrimSpace(line) == "" {
					continue
				}
				return nil, fmt.Errorf("%w: content before any file operation: %q", ErrMalformed, line)
			}

			if current.Kind == OpAdd {
				if !strings.HasPrefix(line, "+") {
					return nil, fmt.Errorf("%w: add-file lines must start with '+': %q", ErrMalformed, line)
				}
				current.Content = append(current.Content, line[1:])
				continue
			}
			if current.Kind == OpDelete {
				if strings.TrimSpace(line) == "" {
					continue
				}
				return nil, fmt.Errorf("%w: delete-file operations carry no lines: %q", ErrMalformed, line)
			}

			if hunk == nil {
				hunk = &Hunk{}
			}
			switch {
			case strings.HasPrefix(line, "+"):
				hunk.Lines = append(hunk.Lines, HunkLine{Kind: LineAdd, Text: line[1:]})
			case strings.HasPrefix(line, "-"):
				hunk.Lines = append(hunk.Lines, HunkLine{Kind: LineDelete, Text: line[1:]})
			case strings.HasPrefix(line, " "):
				hunk.Lines = append(hunk.Lines, HunkLine{Kind: LineContext, Text: line[1:]})
			case line == "":
				// Models often emit blank context lines without the space.
				hunk.Lines = append(hunk.Lines, HunkLine{Kind: LineContext, Text: ""})
			default:
				return nil, fmt.Errorf("%w: hunk lines must start with '+', '-' or ' ': %q", ErrMalformed, line)
			}
		}
	}
	flushOp()

	if len(patch.Ops) == 0 {
		return nil, fmt.Errorf("%w: no file operations", ErrMalformed)
	}
	return patch, nil
}
