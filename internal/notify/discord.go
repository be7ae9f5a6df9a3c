package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/bradykim7/dentscraper/internal/models"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SendFunc posts content to a Discord channel
type SendFunc func(channelID, content string) error

// DiscordSender owns the bot session used for notifications
type DiscordSender struct {
	session *discordgo.Session
}

// NewDiscordSender creates a REST-only session for token. The gateway is never
// opened; messages go through the channel endpoints.
func NewDiscordSender(token string) (*DiscordSender, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	return &DiscordSender{session: session}, nil
}

// Send posts content to channelID
func (s *DiscordSender) Send(channelID, content string) error {
	_, err := s.session.ChannelMessageSend(channelID, content)
	return err
}

// Close releases the session
func (s *DiscordSender) Close() error {
	return s.session.Close()
}

// Discord posts notifications to every configured channel
type Discord struct {
	channelIDs []string
	send       SendFunc
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewDiscord creates a Discord notifier for channelIDs
func NewDiscord(channelIDs []string, send SendFunc, limiter *rate.Limiter, log *zap.Logger) *Discord {
	return &Discord{
		channelIDs: append([]string(nil), channelIDs...),
		send:       send,
		limiter:    limiter,
		log:        log.Named("discord"),
	}
}

// Send posts message to each channel. A failed channel does not stop the rest.
func (d *Discord) Send(ctx context.Context, message string) error {
	if len(d.channelIDs) == 0 {
		d.log.Warn("No Discord channels configured")
		return nil
	}

	var errs []error
	for _, channelID := range d.channelIDs {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				errs = append(errs, err)
				break
			}
		}

		if err := d.send(channelID, message); err != nil {
			d.log.Error("Failed to send Discord message",
				zap.Error(err),
				zap.String("channel_id", channelID))
			errs = append(errs, fmt.Errorf("channel %s: %w", channelID, err))
			continue
		}

		d.log.Info("Sent notification", zap.String("channel_id", channelID))
	}

	return errors.Join(errs...)
}

// Channel returns ChannelDiscord
func (d *Discord) Channel() models.NotificationChannel {
	return models.ChannelDiscord
}
