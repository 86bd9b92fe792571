package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"pulseboard/internal/config"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	signatureHeader       = "X-Pulseboard-Signature"
)

// WebhookTransport POSTs each message as JSON to a fixed URL. Failed attempts
// are retried with exponential backoff; client errors are not retried.
type WebhookTransport struct {
	URL        string
	Secret     string
	MaxRetries uint64
	Client     *http.Client
	Limiter    *rate.Limiter
	// NewBackOff overrides the retry schedule.
	NewBackOff func() backoff.BackOff
}

// NewWebhook builds a webhook transport. perMinute caps outgoing requests; 0
// disables the cap.
func NewWebhook(cfg config.Webhook, perMinute float64) *WebhookTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	return &WebhookTransport{
		URL:        cfg.URL,
		Secret:     cfg.Secret,
		MaxRetries: cfg.MaxRetries,
		Client:     &http.Client{Timeout: timeout},
		Limiter:    rate.NewLimiter(limit, 1),
	}
}

func (t *WebhookTransport) Deliver(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var bo backoff.BackOff
	if t.NewBackOff != nil {
		bo = t.NewBackOff()
	} else {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 500 * time.Millisecond
		exp.MaxElapsedTime = 2 * time.Minute
		bo = exp
	}
	bo = backoff.WithContext(backoff.WithMaxRetries(bo, t.MaxRetries), ctx)
	return backoff.Retry(func() error {
		return t.post(ctx, msg, data)
	}, bo)
}

func (t *WebhookTransport) post(ctx context.Context, msg Message, data []byte) error {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(data))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pulseboard-Report", msg.ReportID)
	if strings.TrimSpace(t.Secret) != "" {
		req.Header.Set(signatureHeader, "sha256="+Sign(t.Secret, data))
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	err = fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
