package session

import (
	"errors"
	"testing"

	pkgerrors "github.com/docpanel/docpanel/errors"
	"github.com/docpanel/docpanel/message"
)

func agentTurn(name string) *message.Turn {
	return message.NewAgentTurn("id-"+name, name, "reviewer", "nova-lite", "feedback from "+name)
}

func TestConversationLogAppendKeepsOrder(t *testing.T) {
	log := NewConversationLog()
	log.Append(message.NewUserTurn("first"))
	log.Append(agentTurn("Analyst"), agentTurn("Engineer"))

	turns := log.Turns()
	if len(turns) != 3 {
		t.Fatalf("Expected 3 turns, got %d", len(turns))
	}
	if turns[0].Content != "first" || turns[1].AgentName != "Analyst" || turns[2].AgentName != "Engineer" {
		t.Error("Insertion order not preserved")
	}
}

func TestTurnsIsASnapshot(t *testing.T) {
	log := NewConversationLog()
	log.Append(message.NewUserTurn("prompt"))

	snapshot := log.Turns()
	snapshot[0].Content = "mutated"

	if log.Turns()[0].Content != "prompt" {
		t.Error("Snapshot mutation leaked into the log")
	}
}

func TestLastUserIndex(t *testing.T) {
	log := NewConversationLog()
	if _, ok := log.LastUserIndex(); ok {
		t.Error("Empty log should have no user index")
	}

	log.Append(message.NewUserTurn("u1"), agentTurn("A"), message.NewUserTurn("u2"), agentTurn("B"))
	idx, ok := log.LastUserIndex()
	if !ok || idx != 2 {
		t.Errorf("Expected index 2, got %d (ok=%v)", idx, ok)
	}
}

func TestTruncateAfterLastUser(t *testing.T) {
	log := NewConversationLog()
	log.Append(
		message.NewUserTurn("u1"),
		agentTurn("A"),
		message.NewUserTurn("regenerate me"),
		agentTurn("B"),
		agentTurn("C"),
	)

	prompt, err := log.TruncateAfterLastUser()
	if err != nil {
		t.Fatalf("TruncateAfterLastUser failed: %v", err)
	}
	if prompt != "regenerate me" {
		t.Errorf("Expected prompt text back, got %q", prompt)
	}

	turns := log.Turns()
	if len(turns) != 3 {
		t.Fatalf("Expected 3 turns after truncation, got %d", len(turns))
	}
	// The user turn itself must be kept.
	if !turns[2].IsUser() || turns[2].Content != "regenerate me" {
		t.Errorf("Last turn should be the kept user turn, got %+v", turns[2])
	}
}

func TestTruncateAfterLastUserNoUserTurn(t *testing.T) {
	log := NewConversationLog()
	log.Append(agentTurn("A"))

	if _, err := log.TruncateAfterLastUser(); !errors.Is(err, pkgerrors.ErrNoUserTurn) {
		t.Errorf("Expected ErrNoUserTurn, got %v", err)
	}
}

func TestTruncateBeforeLastUser(t *testing.T) {
	log := NewConversationLog()
	log.Append(
		message.NewUserTurn("u1"),
		agentTurn("A1"),
		agentTurn("A2"),
		message.NewUserTurn("u2"),
		agentTurn("A3"),
	)

	if err := log.TruncateBeforeLastUser(); err != nil {
		t.Fatalf("TruncateBeforeLastUser failed: %v", err)
	}

	turns := log.Turns()
	if len(turns) != 3 {
		t.Fatalf("Expected 3 turns after revert, got %d", len(turns))
	}
	if turns[0].Content != "u1" || turns[1].AgentName != "A1" || turns[2].AgentName != "A2" {
		t.Errorf("Revert removed the wrong suffix: %+v", turns)
	}
}

func TestTruncateBeforeLastUserTooShort(t *testing.T) {
	log := NewConversationLog()
	if err := log.TruncateBeforeLastUser(); !errors.Is(err, pkgerrors.ErrTooShortToRevert) {
		t.Errorf("Empty log: expected ErrTooShortToRevert, got %v", err)
	}

	log.Append(message.NewUserTurn("only"))
	if err := log.TruncateBeforeLastUser(); !errors.Is(err, pkgerrors.ErrTooShortToRevert) {
		t.Errorf("Single-entry log: expected ErrTooShortToRevert, got %v", err)
	}
}

func TestTruncateBeforeLastUserNoUserTurn(t *testing.T) {
	log := NewConversationLog()
	log.Append(agentTurn("A"), agentTurn("B"))

	if err := log.TruncateBeforeLastUser(); !errors.Is(err, pkgerrors.ErrNoUserTurn) {
		t.Errorf("Expected ErrNoUserTurn, got %v", err)
	}
}
