package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// LogSink writes notifications to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(_ context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("reminder",
		"task_id", n.TaskID,
		"title", n.Title,
		"kind", string(n.Kind),
		"occurrence_at", n.OccurrenceAt.Format(time.RFC3339),
	)
	return nil
}

// MultiSink delivers to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ChanSink hands notifications to an in-process consumer such as the
// terminal UI. Deliveries are dropped while the buffer is full.
type ChanSink struct {
	ch chan Notification
}

func NewChanSink(buffer int) *ChanSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChanSink{ch: make(chan Notification, buffer)}
}

func (s *ChanSink) C() <-chan Notification { return s.ch }

func (s *ChanSink) Deliver(_ context.Context, n Notification) error {
	select {
	case s.ch <- n:
	default:
	}
	return nil
}

// TelegramSink sends notifications to one chat through the Bot API.
type TelegramSink struct {
	api    *tgbotapi.BotAPI
	chatID int64
	loc    *time.Location
	mu     sync.Mutex
}

func NewTelegramSink(token string, chatID int64, loc *time.Location) (*TelegramSink, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return NewTelegramSinkWithAPI(api, chatID, loc), nil
}

func NewTelegramSinkWithAPI(api *tgbotapi.BotAPI, chatID int64, loc *time.Location) *TelegramSink {
	if loc == nil {
		loc = time.Local
	}
	return &TelegramSink{api: api, chatID: chatID, loc: loc}
}

func (s *TelegramSink) Deliver(_ context.Context, n Notification) error {
	msg := tgbotapi.NewMessage(s.chatID, FormatHTML(n, s.loc))
	msg.ParseMode = tgbotapi.ModeHTML
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// FormatHTML renders n for Telegram's HTML parse mode.
func FormatHTML(n Notification, loc *time.Location) string {
	var b strings.Builder
	icon := "⏰"
	if n.Kind == KindOverdue {
		icon = "⚠️"
	}
	b.WriteString(fmt.Sprintf("%s <b>%s</b>\n", icon, html.EscapeString(n.Title)))
	when := n.OccurrenceAt.In(loc).Format("Mon 02 Jan 15:04")
	if n.Kind == KindOverdue {
		b.WriteString(fmt.Sprintf("Overdue since %s", when))
	} else {
		b.WriteString(fmt.Sprintf("Due %s", when))
	}
	if body := strings.TrimSpace(n.Body); body != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(body))
	}
	return b.String()
}
