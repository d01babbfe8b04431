package patch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrContextNotFound marks hunks whose context does not occur in the target.
var ErrContextNotFound = errors.New("hunk context not found")

// Result of applying one update operation to a document.
type Result struct {
	Text    string
	Added   int
	Removed int
}

// ApplyUpdate applies an update operation to a document held in memory and
// returns the new text plus line counts. Hunks apply in order; each hunk
// searches forward from where the previous one landed.
func ApplyUpdate(original string, op FileOp) (Result, error) {
	if op.Kind != OpUpdate {
		return Result{}, fmt.Errorf("cannot apply %s operation to a document", op.Kind)
	}

	hadTrailingNewline := strings.HasSuffix(original, "\n")
	var lines []string
	if original != "" {
		lines = strings.Split(strings.TrimSuffix(original, "\n"), "\n")
	}

	result := Result{}
	cursor := 0

	for _, hunk := range op.Hunks {
		if hunk.Marker != "" {
			cursor = advanceToMarker(lines, cursor, hunk.Marker)
		}

		oldSeq, newSeq := hunkSequences(hunk)
		for _, line := range hunk.Lines {
			switch line.Kind {
			case LineAdd:
				result.Added++
			case LineDelete:
				result.Removed++
			}
		}

		if len(oldSeq) == 0 {
			// Pure insertion with no context anchors at the end.
			lines = append(lines, newSeq...)
			cursor = len(lines)
			continue
		}

		at := findSequenceFuzzy(lines, cursor, oldSeq)
		if at == -1 {
			// Retry from the top in case the marker overshot.
			at = findSequenceFuzzy(lines, 0, oldSeq)
		}
		if at == -1 {
			return Result{}, fmt.Errorf("%w: %q", ErrContextNotFound, strings.Join(oldSeq, "\\n"))
		}

		rest := append([]string{}, lines[at+len(oldSeq):]...)
		lines = append(lines[:at], append(newSeq, rest...)...)
		cursor = at + len(newSeq)
	}

	result.Text = strings.Join(lines, "\n")
	if hadTrailingNewline || (original == "" && len(lines) > 0) {
		result.Text += "\n"
	}
	return result, nil
}

// hunkSequences projects a hunk onto the pre-image (context + deletes) and
// post-image (context + adds) line sequences.
func hunkSequences(hunk Hunk) (oldSeq, newSeq []string) {
	for _, line := range hunk.Lines {
		switch line.Kind {
		case LineContext:
			oldSeq = append(oldSeq, line.Text)
			newSeq = append(newSeq, line.Text)
		case LineDelete:
			oldSeq = append(oldSeq, line.Text)
		case LineAdd:
			newSeq = append(newSeq, line.Text)
		}
	}
	return oldSeq, newSeq
}

func advanceToMarker(lines []string, from int, marker string) int {
	for i := from; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == marker {
			return i
		}
	}
	return from
}

// findSequenceFuzzy matches with progressively looser whitespace handling:
// exact, then trailing whitespace ignored, then surrounding whitespace
// ignored. A stricter pass always wins over a looser one.
func findSequenceFuzzy(lines []string, from int, seq []string) int {
	identity := func(s string) string { return s }
	rstrip := func(s string) string { return strings.TrimRight(s, " \t") }

	for _, norm := range []func(string) string{identity, rstrip, strings.TrimSpace} {
		if at := findSequence(lines, from, seq, norm); at != -1 {
			return at
		}
	}
	return -1
}

func findSequence(lines []string, from int, seq []string, norm func(string) string) int {
	if from < 0 {
		from = 0
	}
	for i := from; i+len(seq) <= len(lines); i++ {
		match := true
		for j, want := range seq {
			if norm(lines[i+j]) != norm(want) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// AddContent joins an add operation's lines into file content with a
// trailing newline.
func AddContent(op FileOp) string {
	if len(op.Content) == 0 {
		return ""
	}
	return strings.Join(op.Content, "\n") + "\n"
}
