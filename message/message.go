package message

import (
	"fmt"
	"time"
)

// Type tags the origin of a conversation turn
type Type string

const (
	TypeUser   Type = "user"
	TypeAgent  Type = "agent"
	TypeSystem Type = "system"
)

// Turn is one immutable entry in a conversation log. The JSON field names are
// the interchange contract with UI clients and must stay stable.
type Turn struct {
	Type      Type      `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Agent turns only
	AgentID             string  `json:"agent_id,omitempty"`
	AgentName           string  `json:"agent_name,omitempty"`
	Role                string  `json:"role,omitempty"`
	Model               string  `json:"model,omitempty"`
	ResponseTimeSeconds float64 `json:"response_time_seconds,omitempty"`
	ResponseLength      int     `json:"response_length,omitempty"`
	Error               bool    `json:"error,omitempty"`
}

// NewUserTurn creates a user turn with the given content
func NewUserTurn(content string) *Turn {
	return &Turn{
		Type:      TypeUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewSystemTurn creates a system turn, used when a whole round degrades into
// a single error entry
func NewSystemTurn(content string) *Turn {
	return &Turn{
		Type:      TypeSystem,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAgentTurn creates an agent turn carrying the member's identity
func NewAgentTurn(agentID, agentName, role, model, content string) *Turn {
	return &Turn{
		Type:      TypeAgent,
		AgentID:   agentID,
		AgentName: agentName,
		Role:      role,
		Model:     model,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAgentErrorTurn converts a permanent invocation failure into a
// user-visible agent turn so a failed member still fills its batch slot
func NewAgentErrorTurn(agentID, agentName, role, model string, err error) *Turn {
	t := NewAgentTurn(agentID, agentName, role, model,
		fmt.Sprintf("I apologize, but I'm having trouble responding right now. Error: %v", err))
	t.Error = true
	return t
}

// IsUser reports whether the turn came from the user
func (t *Turn) IsUser() bool { return t.Type == TypeUser }

// IsAgent reports whether the turn came from an agent
func (t *Turn) IsAgent() bool { return t.Type == TypeAgent }

// Clone creates a copy of the turn.
func Clone(t *Turn) *Turn {
	if t == nil {
		return nil
	}
	cloned := *t
	return &cloned
}

// CloneTurns copies a slice of turns.
func CloneTurns(turns []*Turn) []*Turn {
	if len(turns) == 0 {
		return nil
	}
	clones := make([]*Turn, 0, len(turns))
	for _, t := range turns {
		clones = append(clones, Clone(t))
	}
	return clones
}
