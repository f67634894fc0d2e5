package orchestrator

import (
	"math/rand/v2"

	"github.com/fleetmetry/fleetmetry/pkg/models"
)

const (
	// DefaultHistoryLimit is the message count that triggers pruning.
	DefaultHistoryLimit = 25
	// DefaultHistoryKeep is how many trailing messages survive a prune.
	DefaultHistoryKeep = 20
	// seedCount is the number of leading seed messages (system prompt and
	// the assistant acknowledgement) that always survive pruning.
	seedCount = 2
)

const callIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewCallID synthesizes a call identifier for models that return tool calls
// without one. The shape matches OpenAI-style ids: "call_" plus 13 random
// lowercase alphanumerics.
func NewCallID() string {
	buf := make([]byte, 13)
	for i := range buf {
		buf[i] = callIDAlphabet[rand.IntN(len(callIDAlphabet))]
	}
	return "call_" + string(buf)
}

// Conversation is the message history of one chat session. It is not safe
// for concurrent use; the session layer serializes access per session.
type Conversation struct {
	messages     []models.Message
	historyLimit int
	historyKeep  int
}

// NewConversation seeds a conversation with the system prompt and the
// assistant acknowledgement every session starts from.
func NewConversation(systemPrompt, acknowledgement string) *Conversation {
	c := &Conversation{
		historyLimit: DefaultHistoryLimit,
		historyKeep:  DefaultHistoryKeep,
	}
	c.messages = c.seeds(systemPrompt, acknowledgement)
	return c
}

// SetHistoryWindow overrides the pruning thresholds.
func (c *Conversation) SetHistoryWindow(limit, keep int) {
	if limit > 0 {
		c.historyLimit = limit
	}
	if keep > 0 {
		c.historyKeep = keep
	}
}

func (c *Conversation) seeds(systemPrompt, acknowledgement string) []models.Message {
	return []models.Message{
		{Role: models.RoleSystem, Content: systemPrompt},
		{Role: models.RoleAssistant, Content: acknowledgement},
	}
}

// BeginTurn prunes the history if it has outgrown the window, then appends
// the user message. Pruning happens only at turn boundaries so a running
// tool-call exchange is never cut mid-sequence.
func (c *Conversation) BeginTurn(userText string) {
	if len(c.messages) > c.historyLimit {
		pruned := make([]models.Message, 0, seedCount+c.historyKeep)
		pruned = append(pruned, c.messages[:seedCount]...)
		pruned = append(pruned, c.messages[len(c.messages)-c.historyKeep:]...)
		c.messages = pruned
	}
	c.messages = append(c.messages, models.Message{Role: models.RoleUser, Content: userText})
}

// Append adds one message to the history.
func (c *Conversation) Append(msg models.Message) {
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []models.Message {
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len reports the current history length.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Reset drops everything but the original seed messages.
func (c *Conversation) Reset() {
	c.messages = c.messages[:seedCount]
}
