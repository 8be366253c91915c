package conversation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SingleSpeaker labels the only voice of a recording that could not be diarized
const SingleSpeaker = "Speaker"

// MediaType is the declared kind of an uploaded conversation
type MediaType string

const (
	MediaText  MediaType = "text"
	MediaAudio MediaType = "audio"
)

// Sentiment is the coarse emotional tone attributed to a speaker
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentMixed    Sentiment = "mixed"
)

// ParseSentiment maps a free-form label to a known Sentiment
func ParseSentiment(s string) (Sentiment, bool) {
	switch strings.ToLower(strings.TrimSpace(strings.Trim(s, "()[]*.:"))) {
	case "positive", "pos":
		return SentimentPositive, true
	case "neutral":
		return SentimentNeutral, true
	case "negative", "neg":
		return SentimentNegative, true
	case "mixed":
		return SentimentMixed, true
	}
	return "", false
}

// TranscriptSource records where a transcript came from
type TranscriptSource string

const (
	SourceUpload        TranscriptSource = "upload"
	SourceTranscription TranscriptSource = "transcription"
)

// UploadedConversation represents a file received from a client.
// It lives only for the duration of one request.
type UploadedConversation struct {
	Filename    string    `json:"filename"`
	MediaType   MediaType `json:"media_type"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Path        string    `json:"-"`
}

// TranscriptSegment is a single speaker turn
type TranscriptSegment struct {
	// Speaker is empty when the provider could not diarize
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`

	// Start and End are seconds from the beginning of the audio; nil for text uploads
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
}

// Transcript is the text handed to the insight adapter
type Transcript struct {
	Text     string              `json:"text"`
	Segments []TranscriptSegment `json:"segments,omitempty"`
	Source   TranscriptSource    `json:"source"`
}

// Speakers returns the distinct speaker labels in order of first appearance
func (t *Transcript) Speakers() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]bool)
	var speakers []string
	for _, seg := range t.Segments {
		if seg.Speaker == "" || seen[seg.Speaker] {
			continue
		}
		seen[seg.Speaker] = true
		speakers = append(speakers, seg.Speaker)
	}
	return speakers
}

// HasSpeaker reports whether label is a speaker of the transcript.
// Transcripts without labeled segments fall back to names mentioned in the
// raw text (see mentions).
func (t *Transcript) HasSpeaker(label string) bool {
	if t == nil || label == "" {
		return false
	}
	speakers := t.Speakers()
	if len(speakers) == 0 {
		return t.mentions(label)
	}
	for _, s := range speakers {
		if s == label {
			return true
		}
	}
	return false
}

// functionWords are capitalised at the start of sentences but never name a speaker
var functionWords = map[string]bool{
	"a": true, "an": true, "and": true, "but": true, "or": true, "so": true, "the": true,
	"this": true, "that": true, "these": true, "those": true, "it": true, "its": true,
	"i": true, "me": true, "my": true, "we": true, "us": true, "our": true, "you": true, "your": true,
	"he": true, "him": true, "his": true, "she": true, "her": true, "they": true, "them": true, "their": true,
	"everyone": true, "everybody": true, "someone": true, "somebody": true, "nobody": true,
	"speaker": true, "speakers": true, "person": true, "user": true,
}

// mentions reports whether label is written in the text as a name: a whole
// word sequence of at least two letters, capitalised at least once, and not
// a common function word.
func (t *Transcript) mentions(label string) bool {
	want := words(label)
	if len(want) == 0 {
		return false
	}
	if len(want) == 1 && (utf8.RuneCountInString(want[0]) < 2 || functionWords[strings.ToLower(want[0])]) {
		return false
	}

	text := words(t.Text)
	for i := 0; i+len(want) <= len(text); i++ {
		first, _ := utf8.DecodeRuneInString(text[i])
		if !unicode.IsUpper(first) {
			continue
		}
		match := true
		for j, w := range want {
			if !strings.EqualFold(text[i+j], w) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '_'
	})
}

// Utterances returns every segment spoken by label
func (t *Transcript) Utterances(label string) []TranscriptSegment {
	if t == nil {
		return nil
	}
	var out []TranscriptSegment
	for _, seg := range t.Segments {
		if seg.Speaker == label {
			out = append(out, seg)
		}
	}
	return out
}

// SpeakerInsight is the terminal artifact of the pipeline for one speaker
type SpeakerInsight struct {
	Speaker   string    `json:"speaker"`
	Sentiment Sentiment `json:"sentiment"`
	Insight   string    `json:"insight"`
}

var (
	bracketLine = regexp.MustCompile(`^\[([^\]\n]{1,40})\]\s*:?\s*(.+)$`)
	colonLine   = regexp.MustCompile(`^([\p{L}][\p{L}\p{N} _.'-]{0,39}?)\s*:\s+(.+)$`)
)

// headerLabels look like "Label:" prefixes but introduce notes, not speakers
var headerLabels = map[string]bool{
	"note": true, "notes": true, "nb": true, "ps": true, "p.s.": true, "reminder": true, "warning": true,
	"subject": true, "re": true, "fwd": true, "to": true, "from": true, "cc": true, "bcc": true,
	"date": true, "time": true, "location": true, "where": true, "when": true,
	"agenda": true, "topic": true, "title": true, "summary": true, "transcript": true,
	"attendees": true, "participants": true, "action items": true, "todo": true, "update": true, "edit": true,
}

// TextTranscript builds a transcript from an uploaded text conversation.
// Text is kept verbatim; lines prefixed by "Label:" or "[Label]" become
// labeled segments and unprefixed lines continue the previous turn.
// A "Label:" prefix that is a header word such as "Note:" or "Subject:" is
// not a speaker; its line continues the previous turn. Any other short
// prefix, even one used only once, is taken as a speaker.
func TextTranscript(text string) *Transcript {
	t := &Transcript{Text: text, Source: SourceUpload}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := bracketLine.FindStringSubmatch(line); m != nil {
			t.Segments = append(t.Segments, TranscriptSegment{Speaker: strings.TrimSpace(m[1]), Text: strings.TrimSpace(m[2])})
			continue
		}
		if m := colonLine.FindStringSubmatch(line); m != nil && !headerLabels[strings.ToLower(strings.TrimSpace(m[1]))] {
			t.Segments = append(t.Segments, TranscriptSegment{Speaker: strings.TrimSpace(m[1]), Text: strings.TrimSpace(m[2])})
			continue
		}

		if n := len(t.Segments); n > 0 {
			t.Segments[n-1].Text += " " + line
		} else {
			t.Segments = append(t.Segments, TranscriptSegment{Text: line})
		}
	}

	return t
}
