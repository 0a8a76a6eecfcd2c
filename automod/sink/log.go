package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/aegis-bot/warden/automod/effects"
)

// Dry-run ActionSink: logs every action instead of performing it.
type LogSink struct {
	Logger *slog.Logger
}

var _ effects.ActionSink = (*LogSink)(nil)

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{Logger: logger.With("component", "log-sink", "readonly", true)}
}

func (s *LogSink) DeleteMessage(ctx context.Context, groupID, channelID, messageID string) error {
	s.Logger.Info("would delete message", "group", groupID, "channel", channelID, "message", messageID)
	return nil
}

func (s *LogSink) SendChannelMessage(ctx context.Context, groupID, channelID, text string) error {
	s.Logger.Info("would send channel message", "group", groupID, "channel", channelID, "text", text)
	return nil
}

func (s *LogSink) SendDirectMessage(ctx context.Context, userID, text string) error {
	s.Logger.Info("would send direct message", "user", userID, "text", text)
	return nil
}

func (s *LogSink) MuteUser(ctx context.Context, groupID, userID string, duration time.Duration, reason string) error {
	s.Logger.Info("would mute user", "group", groupID, "user", userID, "duration", duration, "reason", reason)
	return nil
}

func (s *LogSink) BanUser(ctx context.Context, groupID, userID, reason string) error {
	s.Logger.Info("would ban user", "group", groupID, "user", userID, "reason", reason)
	return nil
}
