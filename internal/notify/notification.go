package notify

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bradykim7/dentscraper/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Notifier delivers a run summary to an operator
type Notifier interface {
	Send(ctx context.Context, message string) error
	Channel() models.NotificationChannel
}

// Options carries what the notifier variants need to be built
type Options struct {
	// Out receives terminal notifications; stdout when nil
	Out io.Writer

	Log *zap.Logger

	// DiscordSend posts to a Discord channel. When nil, a discord preference
	// falls back to the terminal.
	DiscordSend SendFunc

	// DiscordLimiter spaces Discord messages; nil sends without waiting
	DiscordLimiter *rate.Limiter
}

// FromPreference builds the notifier selected by pref
func FromPreference(pref models.NotificationPreference, opts Options) (Notifier, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	switch pref.Channel {
	case models.ChannelTerminal:
		return NewTerminal(opts.Out), nil
	case models.ChannelEmail:
		return NewEmail(pref.Recipients, log), nil
	case models.ChannelDiscord:
		if opts.DiscordSend == nil {
			log.Warn("Discord is not configured, falling back to terminal notifications")
			return NewTerminal(opts.Out), nil
		}
		return NewDiscord(pref.Recipients, opts.DiscordSend, opts.DiscordLimiter, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownChannel, pref.Channel)
	}
}

// Terminal prints notifications to a writer
type Terminal struct {
	out io.Writer
}

// NewTerminal creates a terminal notifier writing to out, or stdout when out is nil
func NewTerminal(out io.Writer) *Terminal {
	if out == nil {
		out = os.Stdout
	}
	return &Terminal{out: out}
}

// Send writes the message on its own line
func (t *Terminal) Send(ctx context.Context, message string) error {
	if _, err := fmt.Fprintf(t.out, "Notification: %s\n", message); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

// Channel returns ChannelTerminal
func (t *Terminal) Channel() models.NotificationChannel {
	return models.ChannelTerminal
}

// Email delivers notifications to a list of addresses. Delivery is recorded
// in the log; there is no mail transport.
type Email struct {
	recipients []string
	log        *zap.Logger
}

// NewEmail creates an email notifier for recipients, in order
func NewEmail(recipients []string, log *zap.Logger) *Email {
	return &Email{
		recipients: append([]string(nil), recipients...),
		log:        log.Named("email"),
	}
}

// Send delivers message to every recipient
func (e *Email) Send(ctx context.Context, message string) error {
	if len(e.recipients) == 0 {
		e.log.Warn("No email recipients configured")
		return nil
	}

	for _, recipient := range e.recipients {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.log.Info("Email sent",
			zap.String("recipient", recipient),
			zap.String("message", message))
	}
	return nil
}

// Channel returns ChannelEmail
func (e *Email) Channel() models.NotificationChannel {
	return models.ChannelEmail
}

// Recipients returns the addresses in delivery order
func (e *Email) Recipients() []string {
	return append([]string(nil), e.recipients...)
}
