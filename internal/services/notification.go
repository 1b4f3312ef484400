package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/healthcast-go/internal/models"
)

// DefaultHighRiskThreshold is the probability at which a target triggers an alert
const DefaultHighRiskThreshold = 0.7

// MessageSender is the part of *bot.Bot used for alerts
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// UserLookup resolves a user's notification settings
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// BreakerSender rejects sends with ErrCircuitOpen while the breaker is open
type BreakerSender struct {
	next    MessageSender
	breaker *CircuitBreaker
}

// NewBreakerSender wraps next with breaker
func NewBreakerSender(next MessageSender, breaker *CircuitBreaker) *BreakerSender {
	return &BreakerSender{next: next, breaker: breaker}
}

func (s *BreakerSender) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	var msg *tgmodels.Message
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		msg, err = s.next.SendMessage(ctx, params)
		return err
	})
	return msg, err
}

// NotificationService sends Telegram alerts for high-risk predictions
type NotificationService struct {
	users     UserLookup
	sender    MessageSender
	threshold float64
	logger    *logrus.Logger
}

// NewNotificationService creates a Telegram-backed notifier. An empty token
// yields a service that never sends.
func NewNotificationService(users UserLookup, telegramBotToken string, threshold float64, logger *logrus.Logger) (*NotificationService, error) {
	var sender MessageSender
	if telegramBotToken != "" {
		b, err := bot.New(telegramBotToken, bot.WithSkipGetMe())
		if err != nil {
			return nil, fmt.Errorf("failed to create telegram bot: %w", err)
		}
		sender = b
	}
	ns := NewNotificationServiceWithSender(users, sender, threshold, logger)
	if sender != nil {
		ns.sender = NewBreakerSender(sender, NewCircuitBreaker("telegram", CircuitBreakerConfig{
			FailureThreshold: 3,
			Timeout:          2 * time.Minute,
		}, ns.logger))
	}
	return ns, nil
}

// NewNotificationServiceWithSender creates a notifier around an explicit sender
func NewNotificationServiceWithSender(users UserLookup, sender MessageSender, threshold float64, logger *logrus.Logger) *NotificationService {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultHighRiskThreshold
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &NotificationService{users: users, sender: sender, threshold: threshold, logger: logger}
}

// Enabled reports whether alerts can be sent at all
func (ns *NotificationService) Enabled() bool {
	return ns.sender != nil
}

// HighRiskTargets returns the targets at or above the alert threshold, in AllTargets order
func (ns *NotificationService) HighRiskTargets(set *models.PredictionSet) []models.Target {
	if set.Empty() {
		return nil
	}
	var out []models.Target
	for _, target := range models.AllTargets {
		if risk, ok := set.Predictions[target]; ok && risk >= ns.threshold {
			out = append(out, target)
		}
	}
	return out
}

// NotifyHighRisk alerts the user when any prediction crosses the threshold.
// Users without a Telegram chat id are skipped silently.
func (ns *NotificationService) NotifyHighRisk(ctx context.Context, set *models.PredictionSet) error {
	if !ns.Enabled() {
		return nil
	}
	targets := ns.HighRiskTargets(set)
	if len(targets) == 0 {
		return nil
	}

	user, err := ns.users.GetUser(ctx, set.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user.TelegramChatID == nil {
		return nil
	}

	_, err = ns.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    *user.TelegramChatID,
		Text:      ns.formatHighRiskMessage(set, targets),
		ParseMode: tgmodels.ParseModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	ns.logger.WithFields(logrus.Fields{
		"user_id": set.UserID,
		"date":    set.Date,
		"targets": targets,
	}).Info("Sent high-risk alert")
	return nil
}

func (ns *NotificationService) formatHighRiskMessage(set *models.PredictionSet, targets []models.Target) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "⚠️ *Health forecast for %s*\n\n", set.Date)
	for _, target := range targets {
		fmt.Fprintf(&sb, "• *%s* risk: %.0f%%\n", TargetLabel(target), set.Predictions[target]*100)
	}
	if len(set.Recommendations) > 0 {
		sb.WriteString("\n")
		for _, advice := range set.Recommendations {
			fmt.Fprintf(&sb, "💡 %s\n", advice)
		}
	}
	return sb.String()
}
