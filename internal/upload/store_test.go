package upload

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lexiqai/insight-gateway/internal/conversation"
)

// minimalWAV returns a RIFF/WAVE header followed by silence
func minimalWAV() []byte {
	var b bytes.Buffer
	b.WriteString("RIFF")
	b.Write([]byte{0x24, 0x08, 0x00, 0x00})
	b.WriteString("WAVEfmt ")
	b.Write([]byte{0x10, 0, 0, 0, 1, 0, 1, 0, 0x40, 0x1f, 0, 0, 0x80, 0x3e, 0, 0, 2, 0, 16, 0})
	b.WriteString("data")
	b.Write([]byte{0x00, 0x08, 0x00, 0x00})
	b.Write(make([]byte, 2048))
	return b.Bytes()
}

func newTestStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "uploads"), maxBytes)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty upload dir, found %d entries", len(entries))
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		head      []byte
		filename  string
		wantMedia conversation.MediaType
		wantErr   error
	}{
		{"plain text", []byte("Alice: hi\nBob: hello\n"), "chat.txt", conversation.MediaText, nil},
		{"markdown", []byte("# Call notes\nAlice: hi\n"), "notes.md", conversation.MediaText, nil},
		{"text without extension", []byte("Alice: hi\n"), "chat", conversation.MediaText, nil},
		{"wav", minimalWAV(), "call.wav", conversation.MediaAudio, nil},
		{"wav with wrong extension", minimalWAV(), "call.bin", conversation.MediaAudio, nil},
		{"opaque bytes with audio extension", []byte{0x00, 0xff, 0x01, 0xfe, 0x02}, "call.opus", conversation.MediaAudio, nil},
		{"opaque bytes", []byte{0x00, 0xff, 0x01, 0xfe, 0x02}, "blob.bin", "", ErrUnsupportedType},
		{"pdf", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n"), "report.pdf", "", ErrUnsupportedType},
		{"empty", nil, "empty.txt", "", ErrEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			media, _, err := Detect(tt.head, tt.filename)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				if !errors.Is(err, conversation.ErrInvalidUpload) {
					t.Errorf("Expected InvalidUpload kind, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if media != tt.wantMedia {
				t.Errorf("Expected %s, got %s", tt.wantMedia, media)
			}
		})
	}
}

func TestStore_SaveAndRelease(t *testing.T) {
	store := newTestStore(t, 1024)
	text := "Alice: I think this went well.\nBob: I am not so sure.\n"

	tf, err := store.Save("meeting.txt", strings.NewReader(text))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if tf.Conversation.MediaType != conversation.MediaText {
		t.Errorf("Expected text media type, got %s", tf.Conversation.MediaType)
	}
	if tf.Conversation.Filename != "meeting.txt" {
		t.Errorf("Expected filename meeting.txt, got %s", tf.Conversation.Filename)
	}
	if tf.Conversation.Size != int64(len(text)) {
		t.Errorf("Expected size %d, got %d", len(text), tf.Conversation.Size)
	}

	got, err := tf.ReadText()
	if err != nil {
		t.Fatalf("ReadText failed: %v", err)
	}
	if got != text {
		t.Errorf("Expected verbatim text, got %q", got)
	}

	if err := tf.Release(); err != nil {
		t.Errorf("Release failed: %v", err)
	}
	if err := tf.Release(); err != nil {
		t.Errorf("Second Release failed: %v", err)
	}
	assertEmptyDir(t, store.Dir())
}

func TestStore_SaveTooLarge(t *testing.T) {
	store := newTestStore(t, 16)
	if store.MaxBytes() != 16 {
		t.Fatalf("Expected limit 16, got %d", store.MaxBytes())
	}

	_, err := store.Save("big.txt", strings.NewReader(strings.Repeat("a", 17)))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Expected ErrTooLarge, got %v", err)
	}
	if conversation.KindOf(err) != conversation.KindInvalidUpload {
		t.Errorf("Expected InvalidUpload, got %s", conversation.KindOf(err))
	}
	assertEmptyDir(t, store.Dir())
}

func TestStore_SaveRejectsUnsupported(t *testing.T) {
	store := newTestStore(t, 1024)

	_, err := store.Save("report.pdf", strings.NewReader("%PDF-1.7\n"))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("Expected ErrUnsupportedType, got %v", err)
	}
	assertEmptyDir(t, store.Dir())
}

func TestStore_SaveRequiresFilename(t *testing.T) {
	store := newTestStore(t, 1024)

	_, err := store.Save("", strings.NewReader("hello"))
	if !errors.Is(err, conversation.ErrInvalidUpload) {
		t.Fatalf("Expected InvalidUpload, got %v", err)
	}
}

func TestTempFile_ReadTextRejectsInvalidUTF8(t *testing.T) {
	store := newTestStore(t, 1024)

	tf, err := store.Save("chat.txt", bytes.NewReader([]byte("Alice: caf\xe9 time\n")))
	if err != nil {
		// Latin-1 bytes may be sniffed as non-text; either way it is rejected
		if !errors.Is(err, conversation.ErrInvalidUpload) {
			t.Fatalf("Expected InvalidUpload, got %v", err)
		}
		return
	}
	defer tf.Release()

	if _, err := tf.ReadText(); !errors.Is(err, conversation.ErrInvalidUpload) {
		t.Errorf("Expected InvalidUpload, got %v", err)
	}
}

func TestStore_Sweep(t *testing.T) {
	store := newTestStore(t, 1024)

	stale := filepath.Join(store.Dir(), "stale.txt")
	fresh := filepath.Join(store.Dir(), "fresh.txt")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	removed, err := store.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 file removed, got %d", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("Expected stale file to be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("Expected fresh file to be kept")
	}
}

func TestJanitor_RunStopsWithContext(t *testing.T) {
	store := newTestStore(t, 1024)
	stale := filepath.Join(store.Dir(), "stale.txt")
	if err := os.WriteFile(stale, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewJanitor(store, time.Hour, time.Hour).Run(ctx) }()

	// The initial sweep runs before the first tick
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(stale); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected initial sweep to remove stale file")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Janitor did not stop")
	}
}
