// Package report buffers per-host progress messages and delivers them to the
// host's ticket as a single comment per flush.
package report

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hvmigrate/hvmigrate/internal/logger"
)

// DefaultHeader opens every ticket comment.
const DefaultHeader = "Message from automation library:"

// Ticket is the ticketing capability a Sink delivers to.
type Ticket interface {
	Comment(ctx context.Context, body string) error
	// Transition reports false when no available transition leads to state.
	Transition(ctx context.Context, state string) (bool, error)
}

// Sink is the append/flush buffer for one host. Every message is echoed to the
// console logger as it is appended. Without a Ticket, flushes and transitions
// only reach the console.
type Sink struct {
	mu      sync.Mutex
	ticket  Ticket
	log     *logger.Logger
	header  string
	pending []string
}

// Option configures a Sink.
type Option func(*Sink)

// WithHeader replaces DefaultHeader.
func WithHeader(header string) Option {
	return func(s *Sink) { s.header = header }
}

// NewSink creates a Sink. ticket may be nil.
func NewSink(ticket Ticket, log *logger.Logger, opts ...Option) *Sink {
	s := &Sink{ticket: ticket, log: log, header: DefaultHeader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendMessage adds a line of text.
func (s *Sink) AppendMessage(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, text)
	s.log.Info(text)
}

// AppendBlock adds preformatted text, wrapped as a code block.
func (s *Sink) AppendBlock(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, "{code}"+text+"{code}")
	s.log.Debug(text)
}

func (s *Sink) body() string {
	if len(s.pending) == 0 {
		return ""
	}
	return s.header + "\n\n" + strings.Join(s.pending, "\n")
}

// Flush sends the buffered messages as one comment and clears the buffer.
// An empty buffer sends nothing. On error the buffer is kept.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	body := s.body()
	if body == "" {
		return nil
	}
	if s.ticket != nil {
		if err := s.ticket.Comment(ctx, body); err != nil {
			return fmt.Errorf("failed to post ticket comment: %w", err)
		}
	}
	s.pending = nil
	return nil
}

// TransitionTo moves the ticket to state. A ticket with no transition to
// state is left where it is and a warning is logged.
func (s *Sink) TransitionTo(ctx context.Context, state string) error {
	if s.ticket == nil {
		s.log.Infof("Moving ticket to %q", state)
		return nil
	}
	moved, err := s.ticket.Transition(ctx, state)
	if err != nil {
		return fmt.Errorf("failed to transition ticket to %q: %w", state, err)
	}
	if !moved {
		s.log.Warningf("Ticket has no transition to %q, leaving it in its current state", state)
		return nil
	}
	s.log.Infof("Moved ticket to %q", state)
	return nil
}
