// Package notification delivers pattern alerts to external channels
// (webhooks, Telegram) or the log.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"candleseq/internal/pattern"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	// BatchID ties the alert to a stored pattern search.
	BatchID string `json:"batch_id,omitempty"`
	Path    []int  `json:"path,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts. Used when no channel is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PatternAlerts builds one alert per complete result. Incomplete results are
// not alerted.
func PatternAlerts(batchID string, out pattern.Outcome) []Alert {
	var alerts []Alert
	for _, r := range out.Results {
		if !r.Complete {
			continue
		}
		alerts = append(alerts, Alert{
			Level:   AlertInfo,
			Title:   fmt.Sprintf("XYZ %s pattern %s", r.Direction, formatPath(r.Path)),
			Message: describe(r),
			BatchID: batchID,
			Path:    r.Path,
		})
	}
	if out.Capped && len(alerts) > 0 {
		alerts[0].Level = AlertWarning
		alerts[0].Message += " (search capped, results may be partial)"
	}
	return alerts
}

func formatPath(path []int) string {
	parts := make([]string, len(path))
	for i, o := range path {
		parts[i] = strconv.Itoa(o)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func describe(r pattern.Result) string {
	parts := make([]string, len(r.Path))
	for i, o := range r.Path {
		name := strconv.Itoa(r.Provenance[i])
		if i < len(r.Sources) && r.Sources[i] != "" {
			name = r.Sources[i]
		}
		parts[i] = fmt.Sprintf("%s=%+d", name, o)
	}
	return strings.Join(parts, " ")
}
