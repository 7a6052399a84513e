package observer

import (
	"errors"
	"fmt"
	"image"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the part of tgbotapi.BotAPI the notifier uses
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts every persisted row to a chat. Messages are sent from a
// background goroutine so a slow API does not stall the frame loop.
type Telegram struct {
	sender Sender
	chatID int64
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan string
	done   chan struct{}
}

// NewTelegram connects to the bot API with token
func NewTelegram(token string, chatID int64, logger zerolog.Logger) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegramWithSender(bot, chatID, logger), nil
}

// NewTelegramWithSender creates a notifier on an existing sender
func NewTelegramWithSender(sender Sender, chatID int64, logger zerolog.Logger) *Telegram {
	t := &Telegram{
		sender: sender,
		chatID: chatID,
		logger: logger,
		queue:  make(chan string, 64),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Telegram) run() {
	defer close(t.done)
	for text := range t.queue {
		if _, err := t.sender.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
			t.logger.Warn().Err(err).Msg("telegram send failed")
		}
	}
}

// OnFrameRendered is a no-op
func (t *Telegram) OnFrameRendered(image.Image) {}

// OnLog is a no-op
func (t *Telegram) OnLog(string) {}

// OnRowPersisted queues a notification. When the queue is full or the
// notifier is closed the message is dropped.
func (t *Telegram) OnRowPersisted(startTime, endTime, plate string) {
	text := fmt.Sprintf("%s seen %s - %s", plate, startTime, endTime)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- text:
	default:
		t.logger.Warn().Str("plate", plate).Msg("telegram queue full, notification dropped")
	}
}

// Close sends the queued messages and stops the worker
func (t *Telegram) Close() error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()
	<-t.done
	return nil
}
