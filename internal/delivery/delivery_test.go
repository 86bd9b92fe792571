package delivery_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulseboard/internal/config"
	"pulseboard/internal/delivery"
)

func testMessage() delivery.Message {
	return delivery.Message{
		ReportID:   "r1",
		Title:      "Weekly",
		Period:     "weekly",
		FileName:   "report-weekly-2024-03-10.csv",
		MIMEType:   "text/csv",
		Recipients: []string{"ops@example.com"},
		Content:    []byte("a,b\n"),
	}
}

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

func TestWebhookRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tr := delivery.NewWebhook(config.Webhook{URL: srv.URL, MaxRetries: 3}, 0)
	tr.NewBackOff = zeroBackOff
	require.NoError(t, tr.Deliver(context.Background(), testMessage()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := delivery.NewWebhook(config.Webhook{URL: srv.URL, MaxRetries: 5}, 0)
	tr.NewBackOff = zeroBackOff
	err := tr.Deliver(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr := delivery.NewWebhook(config.Webhook{URL: srv.URL, MaxRetries: 2}, 0)
	tr.NewBackOff = zeroBackOff
	require.Error(t, tr.Deliver(context.Background(), testMessage()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookSignsBody(t *testing.T) {
	var (
		gotSig  string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Pulseboard-Signature")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	tr := delivery.NewWebhook(config.Webhook{URL: srv.URL, Secret: "s3cret", Timeout: time.Second}, 60)
	require.NoError(t, tr.Deliver(context.Background(), testMessage()))
	assert.Equal(t, "sha256="+delivery.Sign("s3cret", gotBody), gotSig)

	var msg delivery.Message
	require.NoError(t, json.Unmarshal(gotBody, &msg))
	assert.Equal(t, "r1", msg.ReportID)
	assert.Equal(t, []byte("a,b\n"), msg.Content)
}

func TestNewSelectsTransport(t *testing.T) {
	cfg := config.Default()
	tr, err := delivery.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, tr.Deliver(context.Background(), testMessage()))
	assert.IsType(t, delivery.LogTransport{}, tr)

	cfg.Delivery.Type = config.DeliveryWebhook
	cfg.Delivery.Webhook.URL = "http://example.invalid/hook"
	tr, err = delivery.New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &delivery.WebhookTransport{}, tr)

	cfg.Delivery.Type = "pigeon"
	_, err = delivery.New(cfg, nil)
	assert.Error(t, err)
}
