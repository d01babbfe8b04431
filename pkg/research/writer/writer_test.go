package writer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomresearch/fathom/pkg/llms"
	"github.com/fathomresearch/fathom/pkg/research"
	"github.com/fathomresearch/fathom/pkg/workflow"
)

const appendSectionPatch = "*** Begin Patch\n" +
	"*** Update File: artifacts/report.md\n" +
	"@@\n" +
	" ## Intro\n" +
	" hi\n" +
	"+\n" +
	"+## Background\n" +
	"+X\n" +
	"*** End Patch"

func newWriterTools(t *testing.T) (*Tools, *workflow.Context) {
	t.Helper()
	rc := workflow.NewContext()
	return NewTools(rc), rc
}

func seedReport(rc *workflow.Context, content string) {
	edit := research.EditState(rc.Store())
	edit.State.ResearchArtifact.Content = content
	edit.Close()
}

func artifact(rc *workflow.Context) research.ResearchArtifactState {
	return research.GetState(rc.Store()).ResearchArtifact
}

func TestApplyPatchAppendsSection(t *testing.T) {
	tls, rc := newWriterTools(t)
	seedReport(rc, "# Title\n\n## Intro\nhi\n")

	out, err := tls.applyPatch(context.Background(), map[string]any{"diff": appendSectionPatch})
	require.NoError(t, err)
	assert.Equal(t, "added 3 lines, removed 0 lines", out)

	a := artifact(rc)
	require.NotNil(t, a.TurnDraft)
	assert.True(t, strings.HasSuffix(*a.TurnDraft, "## Background\nX\n"))
	// Commit happens only at finish_writing.
	assert.Equal(t, "# Title\n\n## Intro\nhi\n", a.Content)
}

func TestFinishWritingCommitsDraftAndClearsTurn(t *testing.T) {
	tls, rc := newWriterTools(t)
	seedReport(rc, "# Title\n\n## Intro\nhi\n")

	edit := research.EditState(rc.Store())
	edit.State.ResearchTurn.AddEvidenceItems([]research.EvidenceItem{
		{URL: "https://a.example", Content: "c", Summary: "s"},
	})
	edit.Close()

	_, err := tls.applyPatch(context.Background(), map[string]any{"diff": appendSectionPatch})
	require.NoError(t, err)

	report, err := tls.finishWriting(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(report, "## Background\nX\n"))

	state := research.GetState(rc.Store())
	assert.Equal(t, report, state.ResearchArtifact.Content)
	assert.Nil(t, state.ResearchArtifact.TurnDraft)
	assert.Empty(t, state.ResearchTurn.Evidence.Items)
	assert.Empty(t, state.ResearchTurn.SeenURLs)
}

func TestFinishWritingWithoutDraftFails(t *testing.T) {
	tls, rc := newWriterTools(t)
	seedReport(rc, "report")

	_, err := tls.finishWriting(context.Background(), nil)
	assert.Error(t, err)
	assert.Equal(t, "report", artifact(rc).Content)
}

func TestApplyPatchPolicyRejections(t *testing.T) {
	cases := []struct {
		name string
		diff string
	}{
		{"add file", "*** Begin Patch\n*** Add File: artifacts/report.md\n+hello\n*** End Patch"},
		{"delete file", "*** Begin Patch\n*** Delete File: artifacts/report.md\n*** End Patch"},
		{"wrong target", "*** Begin Patch\n*** Update File: notes.md\n@@\n+x\n*** End Patch"},
		{"move", "*** Begin Patch\n*** Update File: artifacts/report.md\n*** Move to: other.md\n@@\n+x\n*** End Patch"},
		{"malformed", "not a patch at all"},
		{"empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tls, rc := newWriterTools(t)
			seedReport(rc, "# Title\nbody\n")

			_, err := tls.applyPatch(context.Background(), map[string]any{"diff": tc.diff})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPatchRejected)
			assert.Nil(t, artifact(rc).TurnDraft)
		})
	}
}

func TestApplyPatchCatastrophicDeleteRejected(t *testing.T) {
	tls, rc := newWriterTools(t)

	var content strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&content, "line-%02d\n", i)
	}
	seedReport(rc, content.String())

	var diff strings.Builder
	diff.WriteString("*** Begin Patch\n*** Update File: artifacts/report.md\n@@\n")
	for i := 0; i < 45; i++ {
		fmt.Fprintf(&diff, "-line-%02d\n", i)
	}
	diff.WriteString("*** End Patch")

	_, err := tls.applyPatch(context.Background(), map[string]any{"diff": diff.String()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPatchRejected)
	assert.Contains(t, err.Error(), "shrink")

	a := artifact(rc)
	assert.Nil(t, a.TurnDraft)
	assert.Equal(t, content.String(), a.Content)
}

func TestApplyPatchContextNotFoundRejected(t *testing.T) {
	tls, rc := newWriterTools(t)
	seedReport(rc, "# Title\nbody\n")

	diff := "*** Begin Patch\n*** Update File: artifacts/report.md\n@@\n-no such line\n+replacement\n*** End Patch"
	_, err := tls.applyPatch(context.Background(), map[string]any{"diff": diff})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPatchRejected)
	assert.Nil(t, artifact(rc).TurnDraft)
}

func TestApplyPatchIteratesOnDraft(t *testing.T) {
	tls, rc := newWriterTools(t)
	seedReport(rc, "# Title\n\n## Intro\nhi\n")
	ctx := context.Background()

	_, err := tls.applyPatch(ctx, map[string]any{"diff": appendSectionPatch})
	require.NoError(t, err)

	// The second patch edits the draft produced by the first.
	second := "*** Begin Patch\n*** Update File: artifacts/report.md\n@@\n ## Background\n-X\n+X and Y\n*** End Patch"
	out, err := tls.applyPatch(ctx, map[string]any{"diff": second})
	require.NoError(t, err)
	assert.Equal(t, "added 1 lines, removed 1 lines", out)

	a := artifact(rc)
	require.NotNil(t, a.TurnDraft)
	assert.True(t, strings.HasSuffix(*a.TurnDraft, "## Background\nX and Y\n"))
}

func TestWriterAgentSinglePatchRun(t *testing.T) {
	rc := workflow.NewContext()
	seedReport(rc, "# Title\n\n## Intro\nhi\n")

	edit := research.EditState(rc.Store())
	edit.State.ResearchTurn.AddEvidenceItems([]research.EvidenceItem{
		{URL: "https://src.example", Title: "Src", Content: "Background facts.", Summary: "- facts"},
	})
	edit.Close()

	llm := llms.NewMock("main")
	llm.EnqueueToolCall("c1", "apply_patch", map[string]any{"diff": appendSectionPatch})
	llm.EnqueueToolCall("c2", "finish_writing", map[string]any{})

	ag := New(llm, rc)
	report, err := ag.Run(context.Background(), rc, "Instruction: append a Background section")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(report, "## Background\nX\n"))

	// The hot prompt carries the evidence and the committed report.
	require.NotEmpty(t, llm.Requests)
	system := llm.Requests[0][0]
	assert.Equal(t, llms.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "## Source: Src")
	assert.Contains(t, system.Content, "# Title")

	// The second call sees the patched draft and its word count.
	require.Len(t, llm.Requests, 2)
	assert.Contains(t, llm.Requests[1][0].Content, "## Background")

	state := research.GetState(rc.Store())
	assert.Nil(t, state.ResearchArtifact.TurnDraft)
	assert.Empty(t, state.ResearchTurn.Evidence.Items)
}
