package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/balkashynov/worklog/internal/models"
)

const webhookTimeout = 10 * time.Second

// WebhookSink POSTs each event as JSON to a URL.
type WebhookSink struct {
	webhookURL string
	client     *http.Client
}

func NewWebhookSink(webhookURL string) *WebhookSink {
	return &WebhookSink{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: webhookTimeout},
	}
}

func (s *WebhookSink) Record(ctx context.Context, ev models.AuditEvent) error {
	if s.webhookURL == "" {
		return nil
	}

	b, err := json.Marshal(Normalize(ev))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return fmt.Errorf("audit webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
