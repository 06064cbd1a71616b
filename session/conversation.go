package session

import (
	"sync"

	"github.com/docpanel/docpanel/errors"
	"github.com/docpanel/docpanel/message"
)

// ConversationLog is the ordered, append-only record of user and agent turns
// for a session. Turns are immutable once appended; the only destructive
// operations are the whole-suffix truncations used by regenerate and revert.
//
// Both truncations scan from the tail. Logs stay small (tens to low hundreds
// of turns), so the O(n) scan is preferable to maintaining an index.
type ConversationLog struct {
	mu    sync.Mutex
	turns []*message.Turn
}

// NewConversationLog creates an empty log.
func NewConversationLog() *ConversationLog {
	return &ConversationLog{}
}

// Append extends the log with the given turns in order.
func (l *ConversationLog) Append(turns ...*message.Turn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, turns...)
}

// Turns returns a deep-copied snapshot of the log. Rounds render their
// transcript from this snapshot, so concurrent agents never observe a
// mutated log mid-round.
func (l *ConversationLog) Turns() []*message.Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return message.CloneTurns(l.turns)
}

// Len returns the number of turns in the log.
func (l *ConversationLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns)
}

// LastUserIndex finds the most recent user turn scanning from the end.
func (l *ConversationLog) LastUserIndex() (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastUserIndexLocked()
}

func (l *ConversationLog) lastUserIndexLocked() (int, bool) {
	for i := len(l.turns) - 1; i >= 0; i-- {
		if l.turns[i].IsUser() {
			return i, true
		}
	}
	return 0, false
}

// TruncateAfterLastUser drops every turn after the most recent user turn,
// keeping that user turn itself, and returns its content for replay. Used by
// regenerate.
func (l *ConversationLog) TruncateAfterLastUser() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.lastUserIndexLocked()
	if !ok {
		return "", errors.ErrNoUserTurn
	}
	prompt := l.turns[idx].Content
	l.turns = l.turns[:idx+1]
	return prompt, nil
}

// TruncateBeforeLastUser drops the most recent user turn and everything after
// it, restoring the log to its state before that prompt. Used by revert.
func (l *ConversationLog) TruncateBeforeLastUser() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.turns) <= 1 {
		return errors.ErrTooShortToRevert
	}
	idx, ok := l.lastUserIndexLocked()
	if !ok {
		return errors.ErrNoUserTurn
	}
	l.turns = l.turns[:idx]
	return nil
}
