// Package chat is the append-only message surface both the poller and the
// swap orchestrator report into.
package chat

import "time"

const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Sink receives user-visible messages. Appends are fire and forget; ordering
// follows call order.
type Sink interface {
	Add(text, sender string)
}

type Message struct {
	Text   string    `json:"text"`
	Sender string    `json:"sender"`
	At     time.Time `json:"at"`
}

// Transcript is an in-memory sink that retains every message in append order.
type Transcript struct {
	now      func() time.Time
	messages []Message
}

func NewTranscript() *Transcript {
	return &Transcript{now: time.Now}
}

func (t *Transcript) Add(text, sender string) {
	t.messages = append(t.messages, Message{Text: text, Sender: sender, At: t.now()})
}

func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}
