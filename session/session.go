package session

import (
	"time"

	"github.com/docpanel/docpanel/message"
)

// Moderator member names recognized for backward compatibility with teams
// configured before the explicit moderator flag existed.
const (
	ModeratorName     = "Moderator"
	TeamModeratorName = "Team Moderator"
)

// TeamMember configures one reviewer agent within a session.
type TeamMember struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Role is free text injected into prompt construction.
	Role string `json:"role"`
	// Model is the friendly model name (nova-micro|nova-lite|nova-pro|
	// nova-premier); resolution to a backend ID is total, so unknown values
	// degrade to the default rather than failing.
	Model string `json:"model"`
	// Moderator designates the synthesis agent explicitly. Name matching is
	// kept as a fallback for older team definitions.
	Moderator bool `json:"moderator,omitempty"`
}

// IsModerator reports whether this member runs the cross-team synthesis pass.
func (m TeamMember) IsModerator() bool {
	return m.Moderator || m.Name == ModeratorName || m.Name == TeamModeratorName
}

// Session ties documents, a reviewer team and a conversation log together.
// The log is mutated only through its append/truncate operations; the
// orchestrator receives the session by reference and never replaces the log.
type Session struct {
	ID          string           `json:"session_id"`
	DocumentIDs []string         `json:"document_ids"`
	Members     []TeamMember     `json:"team_members"`
	Log         *ConversationLog `json:"-"`
	CreatedAt   time.Time        `json:"created_at"`
}

// New creates a session over the given documents and team.
func New(id string, documentIDs []string, members []TeamMember) *Session {
	return &Session{
		ID:          id,
		DocumentIDs: documentIDs,
		Members:     members,
		Log:         NewConversationLog(),
		CreatedAt:   time.Now(),
	}
}

// Moderator returns the session's moderator member, if any. When several
// members qualify, the first in team order wins and the rest are treated as
// regular members.
func (s *Session) Moderator() (TeamMember, bool) {
	for _, m := range s.Members {
		if m.IsModerator() {
			return m, true
		}
	}
	return TeamMember{}, false
}

// Record is the serializable snapshot of a session used by store backends.
type Record struct {
	ID          string          `json:"session_id" bson:"_id"`
	DocumentIDs []string        `json:"document_ids" bson:"document_ids"`
	Members     []TeamMember    `json:"team_members" bson:"team_members"`
	Turns       []*message.Turn `json:"conversation" bson:"conversation"`
	CreatedAt   time.Time       `json:"created_at" bson:"created_at"`
}

// Snapshot captures the session state for persistence.
func (s *Session) Snapshot() *Record {
	return &Record{
		ID:          s.ID,
		DocumentIDs: append([]string(nil), s.DocumentIDs...),
		Members:     append([]TeamMember(nil), s.Members...),
		Turns:       s.Log.Turns(),
		CreatedAt:   s.CreatedAt,
	}
}

// FromRecord rebuilds a session from a stored snapshot.
func FromRecord(record *Record) *Session {
	s := &Session{
		ID:          record.ID,
		DocumentIDs: append([]string(nil), record.DocumentIDs...),
		Members:     append([]TeamMember(nil), record.Members...),
		Log:         NewConversationLog(),
		CreatedAt:   record.CreatedAt,
	}
	s.Log.Append(record.Turns...)
	return s
}
