package observer

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/menta2k/plate-logger/pkg/pipeline"
)

var (
	_ pipeline.Observer = (*Log)(nil)
	_ pipeline.Observer = (*FrameDump)(nil)
	_ pipeline.Observer = (*Telegram)(nil)
)

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLog(zerolog.New(&buf))

	obs.OnLog("Starting processing...")
	obs.OnRowPersisted("2024-01-01T00:00:00.000000Z", "2024-01-01T00:00:20.000000Z", "AB123")
	obs.OnFrameRendered(image.NewRGBA(image.Rect(0, 0, 2, 2)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 log lines, got %d", len(lines))
	}

	var row map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &row); err != nil {
		t.Fatal(err)
	}
	if row["plate"] != "AB123" || row["start_time"] != "2024-01-01T00:00:00.000000Z" {
		t.Errorf("Unexpected row entry %v", row)
	}
}

func TestFrameDump(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	dump, err := NewFrameDump(dir, 2, "png", 90, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFrameDump failed: %v", err)
	}

	frame := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < 5; i++ {
		dump.OnFrameRendered(frame)
	}

	if dump.Saved() != 3 {
		t.Errorf("Expected 3 saved frames, got %d", dump.Saved())
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 files, got %d", len(entries))
	}
	if entries[0].Name() != "frame_00000001.png" {
		t.Errorf("Unexpected file name %s", entries[0].Name())
	}
}

func TestFrameDumpInvalidInterval(t *testing.T) {
	if _, err := NewFrameDump(t.TempDir(), 0, "jpg", 90, zerolog.Nop()); err == nil {
		t.Error("Expected error for zero interval")
	}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func TestTelegramObserver(t *testing.T) {
	sender := &fakeSender{}
	tg := NewTelegramWithSender(sender, 42, zerolog.Nop())

	tg.OnRowPersisted("s1", "e1", "AB123")
	tg.OnRowPersisted("s1", "e1", "XY789")
	if err := tg.Close(); err != nil {
		t.Fatal(err)
	}
	tg.OnRowPersisted("s2", "e2", "LATE")

	if len(sender.sent) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(sender.sent))
	}
	if sender.sent[0].ChatID != 42 || sender.sent[0].Text != "AB123 seen s1 - e1" {
		t.Errorf("Unexpected message %+v", sender.sent[0])
	}
}

func TestTelegramSendErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	sender := &fakeSender{err: errors.New("unauthorized")}
	tg := NewTelegramWithSender(sender, 1, zerolog.New(&buf))

	tg.OnRowPersisted("s", "e", "AB123")
	_ = tg.Close()

	if !strings.Contains(buf.String(), "unauthorized") {
		t.Errorf("Expected send error in log, got %q", buf.String())
	}
}

func TestNewTelegramRequiresToken(t *testing.T) {
	if _, err := NewTelegram("", 1, zerolog.Nop()); err == nil {
		t.Error("Expected error for empty token")
	}
}
