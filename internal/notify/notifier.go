// Package notify delivers pattern and cycle alerts to external
// channels. Delivery is best-effort: a failed send is logged by the
// caller and never fails the analysis run that produced it.
package notify

import (
	"context"
	"fmt"
	"log"

	"crypto-analyzer/internal/model"
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

// LogNotifier logs alerts instead of delivering them (useful for
// development and as the default when no webhook is configured).
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// bearishKinds marks detections that read as sell-side signals.
var bearishKinds = map[model.PatternKind]bool{
	model.PatternDoubleTop:        true,
	model.PatternDeathCross:       true,
	model.PatternRSIOverbought:    true,
	model.PatternBearishStreak:    true,
	model.PatternBandBreakoutDown: true,
	model.PatternSupportBreak:     true,
	model.PatternLowerLows:        true,
}

// FromPattern builds the alert for a fresh detection, folding in the
// historical outcome stats when the sample is big enough to mean
// anything.
func FromPattern(p model.Pattern) Alert {
	level := AlertInfo
	if bearishKinds[p.Kind] {
		level = AlertWarning
	}

	msg := fmt.Sprintf("%s detected on %s at %.2f", p.Kind, p.Instrument, p.Price)
	if p.SampleSize >= 3 {
		msg += fmt.Sprintf(" (historically %.0f%% win rate, %.1f%% avg return over %d occurrences)",
			p.HistoricalWinRate*100, p.HistoricalAvgReturn, p.SampleSize)
	}

	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("%s: %s", p.Instrument, p.Kind),
		Message: msg,
	}
}
