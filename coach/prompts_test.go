package coach

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPersonaSystemPromptIsDeterministic(t *testing.T) {
	session := testSession()
	first := BuildPersonaSystemPrompt(session)
	second := BuildPersonaSystemPrompt(session)
	assert.Equal(t, first, second)
}

func TestBuildPersonaSystemPromptInterpolatesSession(t *testing.T) {
	session := testSession()
	prompt := BuildPersonaSystemPrompt(session)

	assert.Contains(t, prompt, "Dr. Sarah Chen")
	assert.Contains(t, prompt, "Cardiology")
	assert.Contains(t, prompt, session.Question.Text)
	assert.Contains(t, prompt, "Context: Patients are well controlled on a competitor.")
	assert.Contains(t, prompt, "Category: clinical_value")
	assert.Contains(t, prompt, "Difficulty: hard")
	assert.Contains(t, prompt, session.Persona.Quote)
	assert.Contains(t, prompt, `Communication Style: {"pace":"rapid"}`)
}

func TestBuildPersonaSystemPromptCarriesAllPhases(t *testing.T) {
	prompt := BuildPersonaSystemPrompt(testSession())

	phase1 := "## Phase 1: Clarification (First 2-3 turns)"
	phase2 := "## Phase 2: Deeper Probing (Turns 3-5)"
	phase3 := "## Phase 3: Guidance (After 5+ turns)"
	require.Contains(t, prompt, phase1)
	require.Contains(t, prompt, phase2)
	require.Contains(t, prompt, phase3)

	assert.Less(t, strings.Index(prompt, phase1), strings.Index(prompt, phase2))
	assert.Less(t, strings.Index(prompt, phase2), strings.Index(prompt, phase3))
}

func TestFeedbackSystemPromptStructure(t *testing.T) {
	assert.Contains(t, FeedbackSystemPrompt, "# Step 1: Coherence check")
	assert.Contains(t, FeedbackSystemPrompt, "# Step 2: Normal rubric")
	assert.Contains(t, FeedbackSystemPrompt, "**Strengths:**")
	assert.Contains(t, FeedbackSystemPrompt, "**Areas for Improvement:**")
	assert.Contains(t, FeedbackSystemPrompt, "**Key Suggestions:**")
	assert.Contains(t, FeedbackSystemPrompt, "**Overall Score:**")
	assert.Contains(t, FeedbackSystemPrompt, "**Summary:**")

	// The worked example anchors the short-circuit path.
	assert.Contains(t, FeedbackSystemPrompt, "USER: asdf jkl zzzz qqqq 12345")
	assert.Contains(t, FeedbackSystemPrompt, "**Overall Score:** 1/10")
	assert.Contains(t, FeedbackSystemPrompt, "incoherent or off-topic")
}

func TestBuildFeedbackRequest(t *testing.T) {
	session := testSession()
	transcript := "USER: Hello\n\nPERSONA: What specifically?"
	request := BuildFeedbackRequest(session, transcript)

	assert.Contains(t, request, "Dr. Sarah Chen")
	assert.Contains(t, request, session.Question.Text)
	assert.Contains(t, request, transcript)
}

func TestRenderTranscript(t *testing.T) {
	now := time.Now()
	turns := []Turn{
		{TurnNumber: 1, Speaker: SpeakerUser, Message: "We have strong outcome data.", CreatedAt: now},
		{TurnNumber: 2, Speaker: SpeakerPersona, Message: "Which endpoints specifically?", CreatedAt: now},
		{TurnNumber: 3, Speaker: SpeakerUser, Message: "MACE reduction at 24 months.", CreatedAt: now},
	}

	expected := "USER: We have strong outcome data.\n\n" +
		"PERSONA: Which endpoints specifically?\n\n" +
		"USER: MACE reduction at 24 months."
	assert.Equal(t, expected, RenderTranscript(turns))
}

func TestRenderTranscriptEmpty(t *testing.T) {
	assert.Equal(t, "", RenderTranscript(nil))
}
