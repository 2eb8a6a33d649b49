package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"

	"spectrum-club/internal/models"
	"spectrum-club/internal/models/config"
	"spectrum-club/internal/repository"
	"spectrum-club/internal/service"
)

// sender - часть *tgbotapi.BotAPI, которая нужна уведомлениям.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api      sender
	users    repository.UserRepository
	programs repository.ProgramRepository
	logger   *zap.Logger
}

// NewBot возвращает уведомления через Telegram. Без BOT_TOKEN уведомления
// только пишутся в лог.
func NewBot(cfg config.BotConfig, users repository.UserRepository, programs repository.ProgramRepository, logger *zap.Logger) (service.Notifier, error) {
	logger = logger.Named("bot")
	if cfg.Token == "" {
		logger.Warn("BOT_TOKEN не установлен, уведомления отключены")
		return nopNotifier{logger: logger}, nil
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	api.Debug = cfg.Debug

	logger.Info("🤖 Бот инициализирован", zap.String("username", api.Self.UserName), zap.Bool("debug", cfg.Debug))
	return newBot(api, users, programs, logger), nil
}

func newBot(api sender, users repository.UserRepository, programs repository.ProgramRepository, logger *zap.Logger) *Bot {
	return &Bot{api: api, users: users, programs: programs, logger: logger}
}

func (b *Bot) EnrollmentExhausted(ctx context.Context, enrollment models.Enrollment) error {
	user, err := b.users.GetByID(ctx, enrollment.UserID)
	if err != nil {
		return err
	}
	if user.TelegramID == 0 {
		b.logger.Debug("У пользователя нет Telegram", zap.Int64("user_id", user.ID))
		return nil
	}

	program, err := b.programs.GetByID(ctx, enrollment.ProgramID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("🎫 *%s*, абонемент на «%s» закончился: использовано %d из %d занятий.\n\nЧтобы продолжить тренировки, продлите абонемент.",
		user.FirstName, program.Name, enrollment.SessionsPurchased-enrollment.SessionsRemaining, enrollment.SessionsPurchased)

	msg := tgbotapi.NewMessage(user.TelegramID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send to %d: %w", user.TelegramID, err)
	}

	b.logger.Info("Уведомление об окончании абонемента отправлено",
		zap.Int64("user_id", user.ID),
		zap.Int64("enrollment_id", enrollment.ID),
	)
	return nil
}

type nopNotifier struct {
	logger *zap.Logger
}

func (n nopNotifier) EnrollmentExhausted(_ context.Context, enrollment models.Enrollment) error {
	n.logger.Info("Абонемент закончился",
		zap.Int64("user_id", enrollment.UserID),
		zap.Int64("enrollment_id", enrollment.ID),
	)
	return nil
}
