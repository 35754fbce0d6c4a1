package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sandeepkv93/remindd/internal/apperr"
	"github.com/sandeepkv93/remindd/internal/scheduler"
)

type chanSink struct {
	ch chan Notification
}

func (s chanSink) Deliver(_ context.Context, n Notification) error {
	s.ch <- n
	return nil
}

func TestEngineDispatcherDeliversFiredAlarm(t *testing.T) {
	engine := scheduler.NewEngine(4)
	engine.Start()
	defer engine.Stop()

	sink := chanSink{ch: make(chan Notification, 4)}
	d := NewEngineDispatcher(engine, sink, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	fire := time.Now().UTC().Add(30 * time.Millisecond)
	n := Notification{
		TaskID:       "t1",
		Title:        "Call mom",
		Kind:         KindReminder,
		FireAt:       fire,
		OccurrenceAt: fire.Add(10 * time.Minute),
		Lead:         10 * time.Minute,
	}
	if err := d.Schedule(ctx, n); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	select {
	case got := <-sink.ch:
		if got.TaskID != "t1" || got.Title != "Call mom" {
			t.Fatalf("unexpected notification %+v", got)
		}
		if !got.OccurrenceAt.Equal(n.OccurrenceAt) {
			t.Fatalf("occurrence = %s, want %s", got.OccurrenceAt, n.OccurrenceAt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestEngineDispatcherCancel(t *testing.T) {
	engine := scheduler.NewEngine(4)
	d := NewEngineDispatcher(engine, chanSink{ch: make(chan Notification, 1)}, nil)
	ctx := context.Background()
	_ = d.Schedule(ctx, Notification{TaskID: "t1", Kind: KindReminder, FireAt: time.Now().Add(time.Hour), OccurrenceAt: time.Now().Add(time.Hour)})
	if _, ok := engine.Pending("t1"); !ok {
		t.Fatal("alarm not queued")
	}
	if err := d.Cancel(ctx, "t1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, ok := engine.Pending("t1"); ok {
		t.Fatal("alarm still queued after cancel")
	}
}

func TestDecodePayloadValidates(t *testing.T) {
	good := `{"v":1,"taskId":"t1","kind":"reminder","occurrenceAt":"2026-03-02T09:00:00Z"}`
	if p, err := DecodePayload([]byte(good)); err != nil || p.TaskID != "t1" {
		t.Fatalf("decode good payload: %+v %v", p, err)
	}

	cases := map[string]struct {
		in   string
		kind apperr.Kind
	}{
		"garbage":        {in: `{`, kind: apperr.KindParse},
		"future version": {in: `{"v":2,"taskId":"t1","kind":"reminder","occurrenceAt":"2026-03-02T09:00:00Z"}`, kind: apperr.KindValidation},
		"no task":        {in: `{"v":1,"kind":"reminder","occurrenceAt":"2026-03-02T09:00:00Z"}`, kind: apperr.KindValidation},
		"unknown kind":   {in: `{"v":1,"taskId":"t1","kind":"nag","occurrenceAt":"2026-03-02T09:00:00Z"}`, kind: apperr.KindValidation},
		"no occurrence":  {in: `{"v":1,"taskId":"t1","kind":"reminder"}`, kind: apperr.KindValidation},
	}
	for name, tc := range cases {
		_, err := DecodePayload([]byte(tc.in))
		if apperr.KindOf(err) != tc.kind {
			t.Fatalf("%s: kind = %q, want %q (err %v)", name, apperr.KindOf(err), tc.kind, err)
		}
	}
}

func TestFormatHTMLEscapes(t *testing.T) {
	n := Notification{
		Title:        "Buy <milk> & eggs",
		Body:         "aisle <3>",
		Kind:         KindOverdue,
		OccurrenceAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	got := FormatHTML(n, time.UTC)
	if !strings.Contains(got, "<b>Buy &lt;milk&gt; &amp; eggs</b>") {
		t.Fatalf("title not escaped: %q", got)
	}
	if !strings.Contains(got, "Overdue since Mon 02 Mar 09:00") {
		t.Fatalf("missing overdue line: %q", got)
	}
	if !strings.Contains(got, "aisle &lt;3&gt;") {
		t.Fatalf("body not escaped: %q", got)
	}
}

func TestTelegramSinkSendsHTMLMessage(t *testing.T) {
	var (
		mu        sync.Mutex
		text      string
		parseMode string
		chatID    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"remindd","username":"remindd_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			_ = r.ParseForm()
			mu.Lock()
			text = r.FormValue("text")
			parseMode = r.FormValue("parse_mode")
			chatID = r.FormValue("chat_id")
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	api, err := tgbotapi.NewBotAPIWithClient("token", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("bot api: %v", err)
	}
	sink := NewTelegramSinkWithAPI(api, 42, time.UTC)
	err = sink.Deliver(context.Background(), Notification{
		TaskID:       "t1",
		Title:        "Stand-up",
		Kind:         KindReminder,
		OccurrenceAt: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if chatID != "42" || parseMode != tgbotapi.ModeHTML {
		t.Fatalf("chat=%q parse_mode=%q", chatID, parseMode)
	}
	if !strings.Contains(text, "<b>Stand-up</b>") || !strings.Contains(text, "Due Mon 02 Mar 09:30") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestTelegramSinkSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"remindd"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	api, err := tgbotapi.NewBotAPIWithClient("token", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("bot api: %v", err)
	}
	sink := NewTelegramSinkWithAPI(api, 1, nil)
	err = sink.Deliver(context.Background(), Notification{TaskID: "t1", Title: "x", Kind: KindReminder, OccurrenceAt: time.Now()})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected send error, got %v", err)
	}
}
