package session

import "time"

// Role identifies who produced a message.
type Role string

// Conversation roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation.
type Message struct {
	Role    Role
	Content string
	At      time.Time
}

// History returns a copy of the conversation so far, oldest first.
func (s *Session) History() []Message {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	return append([]Message(nil), s.history...)
}

// ClearHistory forgets the conversation.
func (s *Session) ClearHistory() {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	s.history = nil
}

func (s *Session) record(role Role, content string) {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	s.history = append(s.history, Message{Role: role, Content: content, At: time.Now()})
}
