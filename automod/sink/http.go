// Platform-side adapters implementing the executor's ActionSink and Notifier interfaces.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aegis-bot/warden/automod/effects"
	"github.com/aegis-bot/warden/pkg/robusthttp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("automod/sink")

// ActionSink which calls the HTTP API of a platform bridge: the process holding the actual chat platform connection.
//
// Outbound requests go through a shared rate limiter, to stay under the platform's own limits.
type HTTPSink struct {
	Host    string
	Token   string
	Client  *http.Client
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

var _ effects.ActionSink = (*HTTPSink)(nil)

type HTTPSinkConfig struct {
	Host string
	// sent as a bearer token, if set
	Token string
	// max requests per second to the bridge
	RateLimit float64
	Logger    *slog.Logger
}

func NewHTTPSink(config HTTPSinkConfig) (*HTTPSink, error) {
	if !strings.HasPrefix(config.Host, "http://") && !strings.HasPrefix(config.Host, "https://") {
		return nil, fmt.Errorf("bridge host must include 'http://' or 'https://': %q", config.Host)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Limit(config.RateLimit)
	if config.RateLimit <= 0 {
		limit = rate.Inf
	}
	return &HTTPSink{
		Host:    strings.TrimSuffix(config.Host, "/"),
		Token:   config.Token,
		Client:  robusthttp.NewClient(robusthttp.WithLogger(logger)),
		Limiter: rate.NewLimiter(limit, 5),
		Logger:  logger.With("component", "http-sink"),
	}, nil
}

type messageBody struct {
	Content string `json:"content"`
}

type muteBody struct {
	DurationSeconds int64  `json:"durationSeconds"`
	Reason          string `json:"reason,omitempty"`
}

type banBody struct {
	Reason string `json:"reason,omitempty"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *HTTPSink) do(ctx context.Context, op, method, path string, body any) error {
	ctx, span := tracer.Start(ctx, "sink."+op)
	defer span.End()
	span.SetAttributes(attribute.String("http.path", path))

	if err := s.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.Host+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	req.Header.Set("User-Agent", "warden-automod")

	start := time.Now()
	resp, err := s.Client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		bridgeRequests.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()
	bridgeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	bridgeRequests.WithLabelValues(op, fmt.Sprint(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr apiError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = apiErr.Error
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w: %s", op, effects.ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w: %s", op, effects.ErrAlreadySanctioned, msg)
	}
	span.SetStatus(codes.Error, resp.Status)
	return fmt.Errorf("%s: bridge returned status %d: %s", op, resp.StatusCode, msg)
}

func (s *HTTPSink) DeleteMessage(ctx context.Context, groupID, channelID, messageID string) error {
	path := fmt.Sprintf("/groups/%s/channels/%s/messages/%s", url.PathEscape(groupID), url.PathEscape(channelID), url.PathEscape(messageID))
	return s.do(ctx, "delete_message", http.MethodDelete, path, nil)
}

func (s *HTTPSink) SendChannelMessage(ctx context.Context, groupID, channelID, text string) error {
	path := fmt.Sprintf("/groups/%s/channels/%s/messages", url.PathEscape(groupID), url.PathEscape(channelID))
	return s.do(ctx, "send_channel_message", http.MethodPost, path, messageBody{Content: text})
}

func (s *HTTPSink) SendDirectMessage(ctx context.Context, userID, text string) error {
	path := fmt.Sprintf("/users/%s/messages", url.PathEscape(userID))
	return s.do(ctx, "send_direct_message", http.MethodPost, path, messageBody{Content: text})
}

func (s *HTTPSink) MuteUser(ctx context.Context, groupID, userID string, duration time.Duration, reason string) error {
	path := fmt.Sprintf("/groups/%s/members/%s/timeout", url.PathEscape(groupID), url.PathEscape(userID))
	return s.do(ctx, "mute_user", http.MethodPost, path, muteBody{DurationSeconds: int64(duration.Seconds()), Reason: reason})
}

func (s *HTTPSink) BanUser(ctx context.Context, groupID, userID, reason string) error {
	path := fmt.Sprintf("/groups/%s/bans/%s", url.PathEscape(groupID), url.PathEscape(userID))
	return s.do(ctx, "ban_user", http.MethodPut, path, banBody{Reason: reason})
}
