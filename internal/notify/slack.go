// Package notify delivers triggered alerts to external channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tlemoine/peatrack/internal/models"
)

// SlackNotifier posts alert messages to a Slack incoming webhook
type SlackNotifier struct {
	httpClient *http.Client
}

// NewSlackNotifier creates a new SlackNotifier
func NewSlackNotifier() *SlackNotifier {
	return &SlackNotifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send posts one triggered alert to the given webhook URL
func (n *SlackNotifier) Send(ctx context.Context, webhookURL string, alert models.TriggeredAlert) error {
	direction := "au-dessus de"
	if alert.Direction == models.AlertBelow {
		direction = "en dessous de"
	}

	headline := fmt.Sprintf("Alerte PEA Tracker : %s", alert.Symbol)
	detail := fmt.Sprintf("*%s* est passé %s votre seuil de %.2f € (cours actuel : %.2f €).",
		alert.Symbol, direction, alert.Threshold, alert.CurrentPrice)

	payload := slackPayload{
		Text: headline,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: headline}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: detail}},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}
