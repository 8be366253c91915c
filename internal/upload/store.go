package upload

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lexiqai/insight-gateway/internal/conversation"
	"github.com/lexiqai/insight-gateway/internal/observability"
)

// sniffLen matches the number of bytes mimetype inspects by default
const sniffLen = 3072

// Store keeps uploaded files in a private directory for the duration of a request
type Store struct {
	dir      string
	maxBytes int64
}

// NewStore creates the upload directory if needed
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// Dir returns the directory uploads are written to
func (s *Store) Dir() string {
	return s.dir
}

// MaxBytes returns the per-upload size limit
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Save streams r to a new temp file and classifies it. On error nothing is
// left on disk. The caller must Release the returned file.
func (s *Store) Save(filename string, r io.Reader) (*TempFile, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, conversation.InvalidUpload("no file selected", "choose a file to upload")
	}

	path := filepath.Join(s.dir, uuid.New().String()+strings.ToLower(filepath.Ext(name)))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	tf := &TempFile{path: path}
	fail := func(err error) (*TempFile, error) {
		f.Close()
		tf.Release()
		return nil, err
	}

	// One byte past the limit is enough to know the upload is too large
	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fail(TooLarge(s.maxBytes))
		}
		return fail(fmt.Errorf("failed to store upload: %w", err))
	}
	if n > s.maxBytes {
		return fail(TooLarge(s.maxBytes))
	}

	head := make([]byte, sniffLen)
	read, err := f.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return fail(fmt.Errorf("failed to read upload: %w", err))
	}
	if err := f.Close(); err != nil {
		tf.Release()
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	mediaType, contentType, err := Detect(head[:read], name)
	if err != nil {
		tf.Release()
		return nil, err
	}

	tf.Conversation = conversation.UploadedConversation{
		Filename:    name,
		MediaType:   mediaType,
		ContentType: contentType,
		Size:        n,
		Path:        path,
	}
	return tf, nil
}

// TooLarge is the InvalidUpload returned when a file exceeds limit bytes
func TooLarge(limit int64) *conversation.Error {
	size := fmt.Sprintf("%d MB", limit/(1024*1024))
	if limit < 1024*1024 {
		size = fmt.Sprintf("%d byte", limit)
	}
	e := conversation.InvalidUpload(
		"file exceeds the "+size+" upload limit",
		"upload a shorter recording or split the transcript",
	)
	e.Err = ErrTooLarge
	return e
}

// Sweep removes files older than maxAge, such as leftovers from a crash.
// It returns the number of files removed.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list upload dir: %w", err)
	}

	logger := observability.GetLogger()
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // Removed concurrently
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to delete stale upload")
			continue
		}
		removed++
		logger.Debug().
			Str("file", entry.Name()).
			Dur("age", time.Since(info.ModTime()).Round(time.Second)).
			Int64("size_bytes", info.Size()).
			Msg("Deleted stale upload")
	}

	return removed, nil
}

// TempFile is an upload stored on disk. Release is safe to call more than once.
type TempFile struct {
	Conversation conversation.UploadedConversation

	path       string
	once       sync.Once
	releaseErr error
}

// Path returns the location of the stored bytes
func (t *TempFile) Path() string {
	return t.path
}

// Open opens the stored upload for reading
func (t *TempFile) Open() (*os.File, error) {
	return os.Open(t.path)
}

// ReadText returns the upload as UTF-8 text
func (t *TempFile) ReadText() (string, error) {
	b, err := os.ReadFile(t.path)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if !utf8.Valid(b) {
		return "", conversation.InvalidUpload("text file is not valid UTF-8", "save the transcript as UTF-8 text")
	}
	text := string(b)
	if strings.TrimSpace(text) == "" {
		return "", conversation.InvalidUpload("text file is empty", "upload a non-empty transcript")
	}
	return text, nil
}

// Release deletes the stored file
func (t *TempFile) Release() error {
	t.once.Do(func() {
		if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.releaseErr = fmt.Errorf("failed to remove temp file: %w", err)
		}
	})
	return t.releaseErr
}
