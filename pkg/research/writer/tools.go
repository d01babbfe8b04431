// Package writer implements the report-editing agent: a patch-envelope tool
// restricted to the single report target, a draft/commit state machine, and a
// hot system prompt carrying the evidence and the live draft.
package writer

import (
	"context"
	"errors"
	"fmt"

	"github.com/fathomresearch/fathom/pkg/config"
	"github.com/fathomresearch/fathom/pkg/patch"
	"github.com/fathomresearch/fathom/pkg/research"
	"github.com/fathomresearch/fathom/pkg/tools"
	"github.com/fathomresearch/fathom/pkg/workflow"
)

// ErrPatchRejected marks patches the writer policy refuses: wrong operation,
// wrong target, moves, malformed envelopes, or catastrophic deletes. Never
// terminal; the agent sees it as a failed tool result and may retry.
var ErrPatchRejected = errors.New("patch rejected")

// Catastrophic-delete rule: a patch may not shrink a draft longer than
// catastrophicMinLen characters below catastrophicRatio of its prior length.
const (
	catastrophicMinLen = 100
	catastrophicRatio  = 0.5
)

// Tools exposes the writer tool set over one run context.
type Tools struct {
	rc *workflow.Context
}

// NewTools creates the tool set bound to rc's state store.
func NewTools(rc *workflow.Context) *Tools {
	return &Tools{rc: rc}
}

// Registry returns the two writer tools.
func (t *Tools) Registry() *tools.Registry {
	return tools.NewRegistry().MustRegister(
		tools.NewFuncTool(tools.ToolInfo{
			Name: "apply_patch",
			Description: "Apply a patch to the report draft. The patch must be a *** Begin Patch / *** End Patch " +
				"envelope with exactly Update File operations targeting " + config.ReportArtifactPath + ".",
			Parameters: []tools.ToolParameter{
				{Name: "diff", Type: "string", Description: "The patch envelope to apply.", Required: true},
			},
		}, t.applyPatch),

		tools.NewFuncTool(tools.ToolInfo{
			Name:         "finish_writing",
			Description:  "Commit the current draft as the new report and finish the writing task.",
			ReturnDirect: true,
		}, t.finishWriting),
	)
}

func (t *Tools) applyPatch(ctx context.Context, args map[string]any) (string, error) {
	diff := tools.StringArg(args, "diff")
	if diff == "" {
		return "", fmt.Errorf("%w: diff is required", ErrPatchRejected)
	}

	p, err := patch.Parse(diff)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPatchRejected, err)
	}
	for _, op := range p.Ops {
		if op.Kind != patch.OpUpdate {
			return "", fmt.Errorf("%w: only Update File operations are allowed, got %s of %s", ErrPatchRejected, op.Kind, op.Path)
		}
		if op.Path != config.ReportArtifactPath {
			return "", fmt.Errorf("%w: the only allowed target is %s, got %s", ErrPatchRejected, config.ReportArtifactPath, op.Path)
		}
		if op.MoveTo != "" {
			return "", fmt.Errorf("%w: moves are not allowed", ErrPatchRejected)
		}
	}

	edit := research.EditState(t.rc.Store())
	artifact := &edit.State.ResearchArtifact

	// The first patch of a turn edits a draft seeded from the committed
	// report.
	prior := artifact.Content
	if artifact.TurnDraft != nil {
		prior = *artifact.TurnDraft
	}

	text := prior
	added, removed := 0, 0
	for _, op := range p.Ops {
		result, err := patch.ApplyUpdate(text, op)
		if err != nil {
			edit.Discard()
			return "", fmt.Errorf("%w: %v", ErrPatchRejected, err)
		}
		text = result.Text
		added += result.Added
		removed += result.Removed
	}

	if len(prior) > catastrophicMinLen && float64(len(text)) < catastrophicRatio*float64(len(prior)) {
		edit.Discard()
		return "", fmt.Errorf("%w: patch would shrink the draft from %d to %d characters", ErrPatchRejected, len(prior), len(text))
	}

	artifact.TurnDraft = &text
	edit.Close()

	return fmt.Sprintf("added %d lines, removed %d lines", added, removed), nil
}

func (t *Tools) finishWriting(ctx context.Context, args map[string]any) (string, error) {
	edit := research.EditState(t.rc.Store())
	artifact := &edit.State.ResearchArtifact

	if artifact.TurnDraft == nil {
		edit.Discard()
		return "", fmt.Errorf("no draft to commit; apply at least one patch first")
	}

	artifact.Content = *artifact.TurnDraft
	artifact.TurnDraft = nil
	edit.State.ResearchTurn.Clear()
	edit.Close()

	return artifact.Content, nil
}
