// Package notification provides alert delivery to external channels
// (Telegram, webhooks) for trading events: fills, execution failures and
// link loss.
package notification

import (
	"context"
	"fmt"
	"log"
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
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to several backends. Delivery failures are logged
// per backend; alerting must never block trading.
type Multi struct {
	backends []Notifier
}

// NewMulti builds a fan-out notifier. With no backends it is a no-op.
func NewMulti(backends ...Notifier) *Multi {
	return &Multi{backends: backends}
}

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	for _, b := range m.backends {
		if err := b.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend delivery failed: %v", err)
		}
	}
	return nil
}

// EntryFilled builds the alert for a completed entry with its stops armed.
func EntryFilled(symbol, side, qty, tp, sl string) Alert {
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s %s entry filled", symbol, side),
		Message: fmt.Sprintf("qty=%s TP=%s SL=%s", qty, tp, sl),
	}
}

// ExecutionFailed builds the alert for a rejected or failed execution.
func ExecutionFailed(symbol, category string, err error) Alert {
	return Alert{
		Level:   AlertWarning,
		Title:   fmt.Sprintf("%s execution failed (%s)", symbol, category),
		Message: err.Error(),
	}
}

// LinkLost builds the alert raised when the control link drops.
func LinkLost(role string) Alert {
	return Alert{
		Level:   AlertCritical,
		Title:   "executor link lost",
		Message: fmt.Sprintf("%s side disconnected, trading suspended until reconnect", role),
	}
}

// PeerRejected builds the alert raised when a second controller is refused.
func PeerRejected(addr string) Alert {
	return Alert{
		Level:   AlertWarning,
		Title:   "concurrent controller rejected",
		Message: fmt.Sprintf("refused second peer from %s", addr),
	}
}
