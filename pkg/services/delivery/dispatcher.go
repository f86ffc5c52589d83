package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/rs/zerolog"
)

const (
	DefaultSubject = "AWS Cost Optimization Recommendations Summary"
	DefaultTimeout = 60 * time.Second
)

var ErrDeliveryFailed = errors.New("report delivery failed")

// Transport hands a fully encoded message to the mail system. Retries, if
// any, are the transport's own business.
type Transport interface {
	Name() string
	Send(ctx context.Context, sender, recipient string, raw []byte) (messageID string, err error)
}

// Content is what a run delivers.
type Content struct {
	Narrative      string
	HTML           string
	Export         []byte
	AttachmentName string
	Date           time.Time
}

type Dispatcher struct {
	transport Transport
	subject   string
	timeout   time.Duration
}

func NewDispatcher(transport Transport, subject string, timeout time.Duration) *Dispatcher {
	if subject == "" {
		subject = DefaultSubject
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{transport: transport, subject: subject, timeout: timeout}
}

// Dispatch sends exactly once. Any failure is reported in the result.
func (d *Dispatcher) Dispatch(ctx context.Context, content Content, sender, recipient string) domain.DeliveryResult {
	logger := zerolog.Ctx(ctx)

	if sender == "" || recipient == "" {
		return failed(fmt.Errorf("sender and recipient are required"))
	}

	raw, err := Message{
		Sender:         sender,
		Recipient:      recipient,
		Subject:        d.subject,
		TextBody:       content.Narrative,
		HTMLBody:       content.HTML,
		Attachment:     content.Export,
		AttachmentName: content.AttachmentName,
		Date:           content.Date,
	}.Bytes()
	if err != nil {
		return failed(fmt.Errorf("failed to build message: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	messageID, err := d.transport.Send(ctx, sender, recipient, raw)
	if err != nil {
		logger.Error().
			Err(err).
			Str("transport", d.transport.Name()).
			Msg("failed to send report")
		return failed(err)
	}

	logger.Info().
		Str("transport", d.transport.Name()).
		Str("message_id", messageID).
		Int("bytes", len(raw)).
		Msg("report sent")
	return domain.DeliveryResult{Status: domain.DeliverySent, MessageID: messageID}
}

func failed(err error) domain.DeliveryResult {
	return domain.DeliveryResult{Status: domain.DeliveryFailed, Reason: err.Error()}
}

// AsError converts a failed result into an error wrapping ErrDeliveryFailed.
func AsError(result domain.DeliveryResult) error {
	if result.Status != domain.DeliveryFailed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDeliveryFailed, result.Reason)
}
