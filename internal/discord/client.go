// Package discord provides a webhook client that posts engine events to a Discord channel.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aimd54/levellist/internal/config"
	"github.com/aimd54/levellist/internal/notify"
	"github.com/aimd54/levellist/pkg/logger"
)

// Embed colors.
const (
	colorGreen  = 0x2ecc71
	colorRed    = 0xe74c3c
	colorBlue   = 0x3498db
	colorGold   = 0xf1c40f
	colorGrey   = 0x95a5a6
	colorPurple = 0x9b59b6
)

// Client handles Discord webhook notifications.
type Client struct {
	webhookURL string
	username   string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new Discord client.
func NewClient(cfg *config.DiscordConfig, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		webhookURL: cfg.WebhookURL,
		username:   cfg.Username,
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Message represents a Discord webhook payload.
type Message struct {
	Username string  `json:"username,omitempty"`
	Content  string  `json:"content,omitempty"`
	Embeds   []Embed `json:"embeds,omitempty"`
}

// Embed represents a rich message block.
type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	URL         string  `json:"url,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Footer      *Footer `json:"footer,omitempty"`
}

// Field represents an embed field.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Footer represents an embed footer.
type Footer struct {
	Text string `json:"text"`
}

// SendMessage posts a message to the webhook.
func (c *Client) SendMessage(ctx context.Context, msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Discord is disabled, skipping message")
		return nil
	}

	if msg.Username == "" {
		msg.Username = c.username
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to Discord: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord returned status %d", resp.StatusCode)
	}

	c.log.Debug().Int("embeds", len(msg.Embeds)).Msg("Sent message to Discord")
	return nil
}

// Notify implements notify.Sink.
func (c *Client) Notify(ctx context.Context, event notify.Event) error {
	return c.SendMessage(ctx, &Message{Embeds: []Embed{BuildEmbed(event)}})
}

// BuildEmbed renders an event as an embed.
func BuildEmbed(event notify.Event) Embed {
	embed := Embed{
		Timestamp: event.OccurredAt.Format(time.RFC3339),
		Footer:    &Footer{Text: event.ID},
	}

	level := event.Field("level")
	user := event.Field("user")

	switch event.Kind {
	case notify.RecordSubmitted:
		embed.Title = "New record submitted"
		embed.Description = fmt.Sprintf("**%s** submitted %s%% on **%s**", user, event.Field("progress"), level)
		embed.URL = event.Field("video_ref")
		embed.Color = colorBlue
	case notify.RecordApproved:
		embed.Title = "Record approved"
		embed.Description = fmt.Sprintf("**%s** cleared %s%% of **%s**", user, event.Field("progress"), level)
		embed.Color = colorGreen
		embed.Fields = []Field{
			{Name: "Approved by", Value: event.Field("approver"), Inline: true},
			{Name: "Total points", Value: event.Field("points"), Inline: true},
		}
	case notify.RecordRejected:
		embed.Title = "Record rejected"
		embed.Description = fmt.Sprintf("**%s** on **%s**", user, level)
		embed.Color = colorRed
		if reason := event.Field("reason"); reason != "" {
			embed.Fields = []Field{{Name: "Reason", Value: reason}}
		}
	case notify.VerifierAwarded:
		embed.Title = "Verifier award"
		embed.Description = fmt.Sprintf("**%s** was credited as the verifier of **%s**", user, level)
		embed.Color = colorGold
	case notify.LevelAdded:
		embed.Title = "Level added"
		embed.Description = fmt.Sprintf("**%s** placed at #%s on the %s list", level, event.Field("rank"), event.Field("list"))
		embed.Color = colorPurple
	case notify.LevelMoved:
		embed.Title = "Level moved"
		embed.Description = fmt.Sprintf("**%s** moved from #%s (%s) to #%s (%s)",
			level, event.Field("from_rank"), event.Field("from_list"), event.Field("to_rank"), event.Field("to_list"))
		embed.Color = colorPurple
	case notify.LevelRemoved:
		embed.Title = "Level removed"
		embed.Description = fmt.Sprintf("**%s** was removed from #%s of the %s list", level, event.Field("rank"), event.Field("list"))
		embed.Color = colorGrey
	default:
		embed.Title = string(event.Kind)
	}

	return embed
}
