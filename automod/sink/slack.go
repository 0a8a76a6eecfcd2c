package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aegis-bot/warden/automod/effects"
	"github.com/aegis-bot/warden/automod/escalation"
	"github.com/aegis-bot/warden/pkg/robusthttp"
)

// Mirrors moderation log messages to a Slack channel for the operators.
type SlackNotifier struct {
	SlackWebhookURL string
	Client          *http.Client
}

var _ effects.Notifier = (*SlackNotifier)(nil)

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		SlackWebhookURL: webhookURL,
		Client:          robusthttp.NewClient(robusthttp.WithMaxRetries(1)),
	}
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

func (n *SlackNotifier) NotifyViolation(ctx context.Context, p *effects.Plan, rep *effects.Report) error {
	return n.sendSlackMsg(ctx, slackBody(p, rep))
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(p *effects.Plan, rep *effects.Report) string {
	msg := "⚠️ Automod Violation ⚠️\n"
	msg += fmt.Sprintf("group `%s` / channel `%s` / author `%s` / message `%s`\n", p.GroupID, p.ChannelID, p.AuthorID, p.MessageID)
	kinds := make([]string, len(p.Verdicts))
	for i, v := range p.Verdicts {
		kinds[i] = string(v.Kind)
	}
	msg += fmt.Sprintf("Violations: `%s`\n", strings.Join(kinds, ", "))
	if rep != nil && rep.Decision.Tier > escalation.TierWarn {
		msg += fmt.Sprintf("Sanction: `%s` (%s)\n", rep.Decision.Tier, rep.Decision.Reason)
	}
	if rep != nil && !rep.Recorded {
		msg += "Ledger write failed!\n"
	}
	return msg
}
