package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownChannel is returned for a notification type that has no notifier
	ErrUnknownChannel = errors.New("unknown notification type")

	// ErrInvalidRecipient is returned for a recipient the comma-joined storage form cannot hold
	ErrInvalidRecipient = errors.New("recipient must be non-empty and contain no commas")
)

// NotificationChannel selects how run summaries are delivered
type NotificationChannel string

const (
	// ChannelTerminal prints the summary to standard output
	ChannelTerminal NotificationChannel = "terminal"

	// ChannelEmail delivers the summary to every recipient address
	ChannelEmail NotificationChannel = "email"

	// ChannelDiscord posts the summary to every recipient Discord channel ID
	ChannelDiscord NotificationChannel = "discord"
)

// ParseNotificationChannel converts a stored tag into a channel
func ParseNotificationChannel(s string) (NotificationChannel, error) {
	switch c := NotificationChannel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelTerminal, ChannelEmail, ChannelDiscord:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
}

// NotificationPreference is the process-wide notification setting.
// The store holds at most one of these.
type NotificationPreference struct {
	Channel    NotificationChannel `json:"notification_type"`
	Recipients []string            `json:"recipients"`
}

// DefaultNotificationPreference is used when nothing has been configured
func DefaultNotificationPreference() NotificationPreference {
	return NotificationPreference{
		Channel:    ChannelTerminal,
		Recipients: []string{},
	}
}

// ValidateRecipients rejects recipients that would not survive JoinRecipients
// followed by SplitRecipients
func (p NotificationPreference) ValidateRecipients() error {
	for i, r := range p.Recipients {
		if strings.TrimSpace(r) == "" || strings.Contains(r, ",") {
			return fmt.Errorf("%w: recipients[%d] = %q", ErrInvalidRecipient, i, r)
		}
	}
	return nil
}

// JoinRecipients returns the comma-joined storage form of the recipient list
func (p NotificationPreference) JoinRecipients() string {
	return strings.Join(p.Recipients, ",")
}

// SplitRecipients parses the comma-joined storage form, keeping order
func SplitRecipients(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
