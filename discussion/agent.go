package discussion

import (
	"fmt"

	"github.com/docpanel/docpanel/config"
	"github.com/docpanel/docpanel/session"
)

// Agent is a fully assembled reviewer: identity, the system prompt built for
// this round, and the backend model it runs on. Agents are cheap values built
// fresh each round because the system prompt embeds the document corpus and
// the transcript as they stand.
type Agent struct {
	Name         string
	Role         string
	SystemPrompt string
	ModelID      string
}

// Factory assembles agents for team members. Model resolution goes through
// the catalog and is total, so a member with an unknown model still gets a
// working agent on the default backend.
type Factory struct {
	models config.ModelsConfig
}

// NewFactory creates an agent factory over the given model catalog.
func NewFactory(models config.ModelsConfig) *Factory {
	return &Factory{models: models}
}

// ResolveModel maps a member's friendly model name to a backend model ID.
func (f *Factory) ResolveModel(name string) string {
	return f.models.Resolve(name)
}

// Build assembles the agent for one member. Template precedence: a moderator
// member always gets the synthesis prompt, a non-empty customPrompt wraps the
// caller's instructions with document and conversation context, and everything
// else gets the role-based default.
func (f *Factory) Build(member session.TeamMember, corpus, transcript, customPrompt string) Agent {
	var systemPrompt string
	switch {
	case member.IsModerator():
		systemPrompt = fmt.Sprintf(moderatorSystemPrompt, corpus, transcript)
	case customPrompt != "":
		systemPrompt = fmt.Sprintf(customReviewerSystemPrompt, customPrompt, corpus, transcript)
	default:
		systemPrompt = fmt.Sprintf(defaultReviewerSystemPrompt, member.Name, member.Role, corpus, transcript)
	}

	return Agent{
		Name:         member.Name,
		Role:         member.Role,
		SystemPrompt: systemPrompt,
		ModelID:      f.models.Resolve(member.Model),
	}
}
