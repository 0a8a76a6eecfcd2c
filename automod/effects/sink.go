package effects

import (
	"context"
	"errors"
	"time"
)

var (
	// The message, channel or user no longer exists. Deleting a missing message counts as success.
	ErrNotFound = errors.New("moderation target not found")
	// The platform reports the user is already muted or banned.
	ErrAlreadySanctioned = errors.New("user already sanctioned")
	// Wraps the error of any failed action step.
	ErrActionFailed = errors.New("moderation action failed")
)

// Side-effecting operations on the chat platform.
type ActionSink interface {
	DeleteMessage(ctx context.Context, groupID, channelID, messageID string) error
	SendChannelMessage(ctx context.Context, groupID, channelID, text string) error
	SendDirectMessage(ctx context.Context, userID, text string) error
	MuteUser(ctx context.Context, groupID, userID string, duration time.Duration, reason string) error
	BanUser(ctx context.Context, groupID, userID, reason string) error
}

// Out-of-band mirror of moderation log messages, eg a Slack channel for the operators.
type Notifier interface {
	NotifyViolation(ctx context.Context, p *Plan, rep *Report) error
}
