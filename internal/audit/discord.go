package audit

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/balkashynov/worklog/internal/models"
)

// webhookExecutor is the slice of discordgo.Session the sink needs
type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSink posts a one-line summary of each event to a Discord webhook.
type DiscordSink struct {
	exec      webhookExecutor
	webhookID string
	token     string
}

// NewDiscordSink parses a webhook URL of the form
// https://discord.com/api/webhooks/{id}/{token}.
func NewDiscordSink(webhookURL string) (*DiscordSink, error) {
	id, token, err := parseDiscordWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	// Webhook execution needs no bot token
	dg, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &DiscordSink{exec: dg, webhookID: id, token: token}, nil
}

func parseDiscordWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid discord webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("invalid discord webhook url: expected /api/webhooks/{id}/{token}")
}

func (s *DiscordSink) Record(ctx context.Context, ev models.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.exec.WebhookExecute(s.webhookID, s.token, false, &discordgo.WebhookParams{
		Content: FormatSummary(ev),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}

// FormatSummary renders an event as a short human-readable line
func FormatSummary(ev models.AuditEvent) string {
	var b strings.Builder
	b.WriteString("`" + ev.Type + "`")
	if ev.UserID != "" {
		b.WriteString(" user=" + ev.UserID)
	}
	if ev.SessionID != "" {
		b.WriteString(" session=" + ev.SessionID)
	}
	if ev.Transition != "" {
		b.WriteString(" " + ev.Transition)
	}
	keys := make([]string, 0, len(ev.Details))
	for k := range ev.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" " + k + "=" + ev.Details[k])
	}
	return b.String()
}
