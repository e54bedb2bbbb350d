package report

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hvmigrate/hvmigrate/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTicket struct {
	comments    []string
	transitions []string
	commentErr  error
	states      map[string]bool
}

func (f *fakeTicket) Comment(_ context.Context, body string) error {
	if f.commentErr != nil {
		return f.commentErr
	}
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakeTicket) Transition(_ context.Context, state string) (bool, error) {
	if f.states != nil && !f.states[state] {
		return false, nil
	}
	f.transitions = append(f.transitions, state)
	return true, nil
}

func TestSinkFlushSendsOneComment(t *testing.T) {
	var out bytes.Buffer
	ticket := &fakeTicket{}
	sink := NewSink(ticket, logger.NewWithWriter(&out, false))

	sink.AppendMessage("OS version is 8.9")
	sink.AppendBlock("NAME SIZE\nsda 1T")
	require.NoError(t, sink.Flush(context.Background()))

	require.Len(t, ticket.comments, 1)
	assert.Equal(t, "Message from automation library:\n\nOS version is 8.9\n{code}NAME SIZE\nsda 1T{code}", ticket.comments[0])
	assert.Contains(t, out.String(), "OS version is 8.9")

	require.NoError(t, sink.Flush(context.Background()))
	assert.Len(t, ticket.comments, 1)
}

func TestSinkEmptyFlushIsNoop(t *testing.T) {
	ticket := &fakeTicket{}
	sink := NewSink(ticket, logger.NewWithWriter(&bytes.Buffer{}, false))

	require.NoError(t, sink.Flush(context.Background()))
	assert.Empty(t, ticket.comments)
}

func TestSinkFlushErrorKeepsBuffer(t *testing.T) {
	ticket := &fakeTicket{commentErr: errors.New("503")}
	sink := NewSink(ticket, logger.NewWithWriter(&bytes.Buffer{}, false), WithHeader("hdr"))

	sink.AppendMessage("hello")
	err := sink.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Empty(t, ticket.comments)

	ticket.commentErr = nil
	require.NoError(t, sink.Flush(context.Background()))
	assert.Equal(t, []string{"hdr\n\nhello"}, ticket.comments)
}

func TestSinkConsoleOnly(t *testing.T) {
	var out bytes.Buffer
	sink := NewSink(nil, logger.NewWithWriter(&out, false))

	sink.AppendMessage("console only")
	require.NoError(t, sink.Flush(context.Background()))
	require.NoError(t, sink.TransitionTo(context.Background(), "Pre Bios Failed"))

	assert.Contains(t, out.String(), "console only")
	assert.Contains(t, out.String(), "Pre Bios Failed")
}

func TestSinkTransition(t *testing.T) {
	ticket := &fakeTicket{}
	sink := NewSink(ticket, logger.NewWithWriter(&bytes.Buffer{}, false))

	require.NoError(t, sink.TransitionTo(context.Background(), "Drained"))
	assert.Equal(t, []string{"Drained"}, ticket.transitions)
}

func TestSinkTransitionUnavailable(t *testing.T) {
	var out bytes.Buffer
	ticket := &fakeTicket{states: map[string]bool{"Drained": true}}
	sink := NewSink(ticket, logger.NewWithWriter(&out, false))

	require.NoError(t, sink.TransitionTo(context.Background(), "Pre Bios Failed"))

	assert.Empty(t, ticket.transitions)
	assert.Contains(t, out.String(), "level=warning")
	assert.Contains(t, out.String(), `no transition to \"Pre Bios Failed\"`)
}
