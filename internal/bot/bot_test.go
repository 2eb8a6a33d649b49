package bot

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"spectrum-club/internal/models"
	"spectrum-club/internal/models/config"
	"spectrum-club/internal/repository/memory"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}
	s.sent = append(s.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestEnrollmentExhausted_SendsMessage(t *testing.T) {
	store := memory.NewStore()
	user := store.AddUser(models.User{TelegramID: 424242, FirstName: "Анна"}, true)
	program := store.AddProgram(models.Program{Name: "Бадминтон", IsActive: true})

	api := &fakeSender{}
	b := newBot(api, store.Users(), store.Programs(), zaptest.NewLogger(t))

	err := b.EnrollmentExhausted(context.Background(), models.Enrollment{
		ID: 1, UserID: user, ProgramID: program, SessionsPurchased: 8,
	})
	require.NoError(t, err)
	require.Len(t, api.sent, 1)
	assert.Equal(t, int64(424242), api.sent[0].ChatID)
	assert.Contains(t, api.sent[0].Text, "Бадминтон")
	assert.Contains(t, api.sent[0].Text, "8 из 8")
}

func TestEnrollmentExhausted_SkipsUsersWithoutTelegram(t *testing.T) {
	store := memory.NewStore()
	user := store.AddUser(models.User{FirstName: "Анна"}, true)

	api := &fakeSender{}
	b := newBot(api, store.Users(), store.Programs(), zaptest.NewLogger(t))

	require.NoError(t, b.EnrollmentExhausted(context.Background(), models.Enrollment{UserID: user, ProgramID: 1}))
	assert.Empty(t, api.sent)
}

func TestEnrollmentExhausted_PropagatesSendError(t *testing.T) {
	store := memory.NewStore()
	user := store.AddUser(models.User{TelegramID: 1, FirstName: "Анна"}, true)
	program := store.AddProgram(models.Program{Name: "Бадминтон"})

	b := newBot(&fakeSender{err: errors.New("blocked by user")}, store.Users(), store.Programs(), zaptest.NewLogger(t))
	assert.Error(t, b.EnrollmentExhausted(context.Background(), models.Enrollment{UserID: user, ProgramID: program}))
}

func TestNewBot_WithoutTokenIsNop(t *testing.T) {
	store := memory.NewStore()
	n, err := NewBot(config.BotConfig{}, store.Users(), store.Programs(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NoError(t, n.EnrollmentExhausted(context.Background(), models.Enrollment{ID: 1}))
}
