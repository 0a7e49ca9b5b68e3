package session

import (
	"slices"

	"finqa/internal/domain"
)

// Session is the transcript and default ticker of one conversation.
type Session struct {
	messages      []domain.Message
	defaultTicker string
}

func NewSession(defaultTicker string) *Session {
	return &Session{defaultTicker: defaultTicker}
}

func (s *Session) DefaultTicker() string { return s.defaultTicker }

func (s *Session) SetDefaultTicker(t string) { s.defaultTicker = t }

// Messages returns a copy of the transcript in chronological order.
func (s *Session) Messages() []domain.Message { return slices.Clone(s.messages) }

// Reset clears the transcript and keeps the default ticker.
func (s *Session) Reset() { s.messages = nil }

func (s *Session) append(m domain.Message) { s.messages = append(s.messages, m) }
