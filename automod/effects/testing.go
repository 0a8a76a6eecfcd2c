package effects

import (
	"context"
	"sync"
	"time"
)

type RecordedAction struct {
	Method    string
	GroupID   string
	ChannelID string
	MessageID string
	UserID    string
	Text      string
	Duration  time.Duration
}

// In-memory ActionSink which records every call. Errors can be injected per method name ("DeleteMessage", "MuteUser", ...).
type RecordingSink struct {
	mu      sync.Mutex
	Actions []RecordedAction
	Errors  map[string]error
	// optional delay applied to every call, honoring context cancellation
	Delay time.Duration
}

var _ ActionSink = (*RecordingSink)(nil)

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{
		Errors: make(map[string]error),
	}
}

func (s *RecordingSink) FailWith(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors[method] = err
}

func (s *RecordingSink) record(ctx context.Context, a RecordedAction) error {
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Actions = append(s.Actions, a)
	return s.Errors[a.Method]
}

// Recorded calls of a single method.
func (s *RecordingSink) Calls(method string) []RecordedAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RecordedAction
	for _, a := range s.Actions {
		if a.Method == method {
			out = append(out, a)
		}
	}
	return out
}

// Method names in call order.
func (s *RecordingSink) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Actions))
	for i, a := range s.Actions {
		out[i] = a.Method
	}
	return out
}

func (s *RecordingSink) DeleteMessage(ctx context.Context, groupID, channelID, messageID string) error {
	return s.record(ctx, RecordedAction{Method: "DeleteMessage", GroupID: groupID, ChannelID: channelID, MessageID: messageID})
}

func (s *RecordingSink) SendChannelMessage(ctx context.Context, groupID, channelID, text string) error {
	return s.record(ctx, RecordedAction{Method: "SendChannelMessage", GroupID: groupID, ChannelID: channelID, Text: text})
}

func (s *RecordingSink) SendDirectMessage(ctx context.Context, userID, text string) error {
	return s.record(ctx, RecordedAction{Method: "SendDirectMessage", UserID: userID, Text: text})
}

func (s *RecordingSink) MuteUser(ctx context.Context, groupID, userID string, duration time.Duration, reason string) error {
	return s.record(ctx, RecordedAction{Method: "MuteUser", GroupID: groupID, UserID: userID, Duration: duration, Text: reason})
}

func (s *RecordingSink) BanUser(ctx context.Context, groupID, userID, reason string) error {
	return s.record(ctx, RecordedAction{Method: "BanUser", GroupID: groupID, UserID: userID, Text: reason})
}
