package upload

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/lexiqai/insight-gateway/internal/conversation"
)

var (
	// ErrTooLarge marks uploads over the configured size limit
	ErrTooLarge = errors.New("upload exceeds size limit")
	// ErrUnsupportedType marks uploads that are neither text nor supported audio
	ErrUnsupportedType = errors.New("unsupported media type")
	// ErrEmpty marks zero-byte uploads
	ErrEmpty = errors.New("empty upload")
)

// AcceptedTypes is shown to clients when an upload is rejected
const AcceptedTypes = "text (.txt, .md, .csv) or audio (.mp3, .wav, .m4a, .ogg, .flac, .webm, .aac, .opus)"

var textExtensions = map[string]string{
	".txt":  "text/plain",
	".text": "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
}

var audioExtensions = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".flac": "audio/flac",
	".webm": "audio/webm",
	".aac":  "audio/aac",
	".opus": "audio/opus",
}

// Containers that may or may not carry only audio; the extension decides.
var ambiguous = map[string]bool{
	"application/octet-stream": true,
	"application/ogg":          true,
	"video/webm":               true,
	"video/mp4":                true,
	"video/ogg":                true,
}

// Detect classifies an upload from its leading bytes and file name.
// Content sniffing wins; the extension only settles ambiguous containers.
func Detect(head []byte, filename string) (conversation.MediaType, string, error) {
	if len(head) == 0 {
		return "", "", unsupported(ErrEmpty, "the uploaded file is empty")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	detected := mimetype.Detect(head)

	for m := detected; m != nil; m = m.Parent() {
		base := baseType(m.String())
		switch {
		case strings.HasPrefix(base, "audio/"):
			return conversation.MediaAudio, base, nil
		case strings.HasPrefix(base, "text/"):
			if ct, ok := textExtensions[ext]; ok && base == "text/plain" {
				return conversation.MediaText, ct, nil
			}
			return conversation.MediaText, base, nil
		}
	}

	if ambiguous[baseType(detected.String())] {
		if ct, ok := audioExtensions[ext]; ok {
			return conversation.MediaAudio, ct, nil
		}
	}

	return "", "", unsupported(ErrUnsupportedType, "unsupported file type "+baseType(detected.String()))
}

func baseType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(contentType)
}

func unsupported(cause error, message string) *conversation.Error {
	e := conversation.InvalidUpload(message, "upload "+AcceptedTypes)
	e.Err = cause
	return e
}
