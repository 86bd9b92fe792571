// Package delivery hands completed reports to recipients.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pulseboard/internal/config"
)

// Message is one completed report addressed to its recipients.
type Message struct {
	ReportID   string    `json:"report_id"`
	Title      string    `json:"title"`
	Period     string    `json:"period"`
	RangeStart time.Time `json:"date_range_start"`
	RangeEnd   time.Time `json:"date_range_end"`
	FileName   string    `json:"file_name"`
	MIMEType   string    `json:"mime_type"`
	Recipients []string  `json:"recipients"`
	Content    []byte    `json:"content"`
}

// Transport delivers a message. Implementations must be safe for concurrent use.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// LogTransport records deliveries in the log and never fails.
type LogTransport struct {
	Logger *slog.Logger
}

func (t LogTransport) Deliver(ctx context.Context, msg Message) error {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "report delivered",
		"report_id", msg.ReportID,
		"file", msg.FileName,
		"bytes", len(msg.Content),
		"recipients", msg.Recipients,
	)
	return nil
}

// New builds the transport selected by cfg.
func New(cfg *config.Config, logger *slog.Logger) (Transport, error) {
	switch cfg.Delivery.Type {
	case config.DeliveryLog, "":
		return LogTransport{Logger: logger}, nil
	case config.DeliveryWebhook:
		return NewWebhook(cfg.Delivery.Webhook, cfg.Delivery.RatePerMinute), nil
	default:
		return nil, fmt.Errorf("unknown delivery type %q", cfg.Delivery.Type)
	}
}
