package discussion

import (
	"strings"
	"testing"

	"github.com/docpanel/docpanel/message"
	"github.com/docpanel/docpanel/session"
)

func TestRenderTranscript(t *testing.T) {
	turns := []*message.Turn{
		message.NewUserTurn("look at the roadmap"),
		message.NewAgentTurn("m1", "Security Reviewer", "Security", "nova-lite", "needs threat model"),
		message.NewSystemTurn("operator note"),
	}

	got := renderTranscript(turns, "what about timelines?")

	if !strings.HasPrefix(got, "<conversation_history>\n") || !strings.HasSuffix(got, "</conversation_history>") {
		t.Errorf("transcript not wrapped: %q", got)
	}
	if !strings.Contains(got, "<user_message>look at the roadmap</user_message>") {
		t.Error("user turn missing")
	}
	if !strings.Contains(got, "<agent_message agent='Security Reviewer' role='Security'>needs threat model</agent_message>") {
		t.Error("agent turn missing or mis-tagged")
	}
	if strings.Contains(got, "operator note") {
		t.Error("system turns must not leak into the transcript")
	}
	if !strings.Contains(got, "<current_user_prompt>what about timelines?</current_user_prompt>") {
		t.Error("current prompt missing")
	}
}

func TestRenderTranscriptDefaultsRole(t *testing.T) {
	turn := message.NewAgentTurn("m1", "A", "", "nova-lite", "hello")
	got := renderTranscript([]*message.Turn{turn}, "p")
	if !strings.Contains(got, "role='Team Member'") {
		t.Errorf("empty role should render as Team Member: %q", got)
	}
}

func TestFactoryTemplatePrecedence(t *testing.T) {
	f := NewFactory(testModels())

	moderator := session.TeamMember{ID: "m1", Name: "Team Moderator", Role: "Moderator", Model: "nova-pro"}
	custom := session.TeamMember{ID: "m2", Name: "Contract Reviewer", Role: "Legal", Model: "nova-lite"}
	regular := session.TeamMember{ID: "m3", Name: "UX Reviewer", Role: "User Experience", Model: "nova-lite"}

	if got := f.Build(moderator, "docs", "history", "ignored custom").SystemPrompt; !strings.Contains(got, "You are the Team Moderator") {
		t.Error("moderator must get the synthesis prompt even when a custom prompt is supplied")
	}
	if got := f.Build(custom, "docs", "history", "You are a contract lawyer.").SystemPrompt; !strings.Contains(got, "You are a contract lawyer.") || !strings.Contains(got, "ADDITIONAL INSTRUCTIONS:") {
		t.Error("custom prompt should be wrapped with context sections")
	}
	if got := f.Build(regular, "docs", "history", "").SystemPrompt; !strings.Contains(got, "You are UX Reviewer, a team member") {
		t.Error("regular member should get the role default")
	}
}

func TestFactoryEmbedsContext(t *testing.T) {
	f := NewFactory(testModels())
	member := session.TeamMember{ID: "m1", Name: "A", Role: "a", Model: "nova-lite"}

	agent := f.Build(member, "THE CORPUS", "THE HISTORY", "")
	if !strings.Contains(agent.SystemPrompt, "DOCUMENTS TO REVIEW:\nTHE CORPUS") {
		t.Error("corpus missing from system prompt")
	}
	if !strings.Contains(agent.SystemPrompt, "CONVERSATION CONTEXT:\nTHE HISTORY") {
		t.Error("transcript missing from system prompt")
	}
}

func TestFactoryModelResolutionIsTotal(t *testing.T) {
	f := NewFactory(testModels())
	member := session.TeamMember{ID: "m1", Name: "A", Role: "a", Model: "made-up"}
	agent := f.Build(member, "", "", "")
	if agent.ModelID != testModels().Resolve("made-up") {
		t.Errorf("expected default backend for unknown model, got %s", agent.ModelID)
	}
	if agent.ModelID == "" {
		t.Error("model resolution must never be empty")
	}
}
