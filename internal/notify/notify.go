package notify

import (
	"context"
	"log/slog"
	"regexp"

	"dashsync/internal/domain"
)

// Stage identifies the step where one delivery attempt failed.
// Params: none.
// Returns: closed set of failure stages.
type Stage string

const (
	// StageConnect marks dial or session setup failures.
	StageConnect Stage = "connect"
	// StageAuth marks authentication rejections.
	StageAuth Stage = "authenticate"
	// StageSender marks sender address rejections.
	StageSender Stage = "sender_rejected"
	// StageRecipient marks recipient address rejections.
	StageRecipient Stage = "recipient_rejected"
	// StageProtocol marks greeting, TLS upgrade, or payload transfer failures.
	StageProtocol Stage = "protocol"
)

// DispatchResult reports the outcome of one fired-alert dispatch.
// Params: none.
// Returns: per-side-effect outcome flags and the email failure stage when any.
type DispatchResult struct {
	NotificationWritten bool
	EmailAttempted      bool
	EmailSucceeded      bool
	FailureStage        Stage
}

// RecordWriter persists one in-app notification for an owner.
// Params: fired alert to record.
// Returns: write error.
type RecordWriter interface {
	WriteNotification(fired domain.FiredAlert) error
}

// EmailSender delivers one outbound message for a fired alert.
// Params: recipient address and fired alert.
// Returns: failure stage (empty on success) and error.
type EmailSender interface {
	Enabled() bool
	Send(ctx context.Context, to string, fired domain.FiredAlert) (Stage, error)
}

// addressPattern validates outbound addresses before any delivery attempt.
var addressPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidAddress reports whether the address is syntactically deliverable.
// Params: candidate address.
// Returns: true for well-formed addresses.
func ValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// Dispatcher turns fired alerts into in-app notifications and outbound email.
// Params: record writer, optional email sender, and logger.
// Returns: dispatcher shared by all scheduler ticks.
//
// The two side effects are independent failure domains: a notification write
// failure never blocks the email attempt and an email failure never blocks
// the notification. Nothing raises out of Dispatch.
type Dispatcher struct {
	writer RecordWriter
	email  EmailSender
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher.
// Params: record writer, email sender (nil disables email), and logger.
// Returns: dispatcher instance.
func NewDispatcher(writer RecordWriter, email EmailSender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{writer: writer, email: email, logger: logger}
}

// Dispatch delivers one fired alert to both channels.
// Params: context, fired alert, and the rule that produced it.
// Returns: dispatch outcome; never an error.
func (d *Dispatcher) Dispatch(ctx context.Context, fired domain.FiredAlert, rule domain.AlertRule) DispatchResult {
	var result DispatchResult

	if d.writer != nil {
		if err := d.writer.WriteNotification(fired); err != nil {
			if d.logger != nil {
				d.logger.Error("notification write failed",
					"rule_id", rule.ID, "owner", fired.Owner, "error", err.Error())
			}
		} else {
			result.NotificationWritten = true
		}
	}

	address := rule.NotifyAddress
	if address == "" || d.email == nil || !d.email.Enabled() {
		return result
	}
	if !ValidAddress(address) {
		if d.logger != nil {
			d.logger.Warn("notify address invalid, skipping email", "rule_id", rule.ID)
		}
		return result
	}

	result.EmailAttempted = true
	stage, err := d.email.Send(ctx, address, fired)
	if err != nil {
		result.FailureStage = stage
		if d.logger != nil {
			d.logger.Error("email delivery failed",
				"rule_id", rule.ID, "stage", string(stage), "error", err.Error())
		}
		return result
	}
	result.EmailSucceeded = true
	if d.logger != nil {
		d.logger.Info("email delivered", "rule_id", rule.ID, "to", address)
	}
	return result
}
