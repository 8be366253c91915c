package insight

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/lexiqai/insight-gateway/internal/conversation"
)

// Minimum Jaro-Winkler similarity for a fuzzy speaker label match
const labelSimilarity = 0.92

type rawInsight struct {
	Speaker   string `json:"speaker"`
	Sentiment string `json:"sentiment"`
	Insight   string `json:"insight"`
}

type rawResponse struct {
	Speakers []rawInsight `json:"speakers"`
}

// [Speaker_1] (positive) narrative
var bracketInsight = regexp.MustCompile(`^(?:[-*]\s*)?\[([^\]\n]{1,40})\]\s*:?\s*(?:\(([^)\n]{1,20})\)\s*:?\s*)?(.*)$`)

// Parse maps a model reply onto the transcript's speakers. It accepts the
// requested JSON shape, JSON wrapped in fences or prose, and the bracketed
// line format. Every returned speaker is a speaker of t.
func Parse(reply string, t *conversation.Transcript) ([]conversation.SpeakerInsight, error) {
	cleaned := stripFences(reply)
	if cleaned == "" {
		return nil, conversation.AnalysisParseError("analysis response is empty")
	}

	raw, ok := parseJSON(cleaned)
	if !ok {
		raw = parseBracketLines(cleaned)
	}
	if len(raw) == 0 {
		return nil, conversation.AnalysisParseError("analysis response contains no speaker insights")
	}

	return validate(raw, t)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseJSON(s string) ([]rawInsight, bool) {
	var resp rawResponse
	if err := json.Unmarshal([]byte(s), &resp); err == nil && len(resp.Speakers) > 0 {
		return resp.Speakers, true
	}

	var list []rawInsight
	if err := json.Unmarshal([]byte(s), &list); err == nil && len(list) > 0 {
		return list, true
	}

	// JSON object embedded in prose; the decoder stops at the end of the
	// first complete value so trailing text may contain braces
	for off := 0; off < len(s); {
		i := strings.IndexByte(s[off:], '{')
		if i < 0 {
			break
		}
		start := off + i
		var embedded rawResponse
		if err := json.NewDecoder(strings.NewReader(s[start:])).Decode(&embedded); err == nil && len(embedded.Speakers) > 0 {
			return embedded.Speakers, true
		}
		off = start + 1
	}

	return nil, false
}

func parseBracketLines(s string) []rawInsight {
	var out []rawInsight
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := bracketInsight.FindStringSubmatch(line); m != nil {
			out = append(out, rawInsight{
				Speaker:   m[1],
				Sentiment: m[2],
				Insight:   strings.TrimSpace(m[3]),
			})
			continue
		}

		// Wrapped narrative continues the previous speaker
		if n := len(out); n > 0 {
			out[n-1].Insight = strings.TrimSpace(out[n-1].Insight + " " + line)
		}
	}
	return out
}

func validate(raw []rawInsight, t *conversation.Transcript) ([]conversation.SpeakerInsight, error) {
	speakers := t.Speakers()
	seen := make(map[string]bool)
	byLabel := make(map[string]conversation.SpeakerInsight)
	var order []string

	for _, r := range raw {
		label, ok := resolveLabel(r.Speaker, speakers, t)
		if !ok {
			return nil, conversation.AnalysisParseError("analysis names unknown speaker %q", r.Speaker)
		}
		if seen[label] {
			return nil, conversation.AnalysisParseError("analysis lists speaker %q more than once", label)
		}
		seen[label] = true

		narrative := strings.TrimSpace(r.Insight)
		if narrative == "" {
			return nil, conversation.AnalysisParseError("analysis for speaker %q is empty", label)
		}

		sentiment, ok := conversation.ParseSentiment(r.Sentiment)
		if !ok {
			return nil, conversation.AnalysisParseError("analysis for speaker %q has unknown sentiment %q", label, r.Sentiment)
		}

		byLabel[label] = conversation.SpeakerInsight{Speaker: label, Sentiment: sentiment, Insight: narrative}
		order = append(order, label)
	}

	// Labeled transcripts must be fully covered and come back in transcript order
	if len(speakers) > 0 {
		insights := make([]conversation.SpeakerInsight, 0, len(speakers))
		for _, s := range speakers {
			in, ok := byLabel[s]
			if !ok {
				return nil, conversation.AnalysisParseError("analysis is missing speaker %q", s)
			}
			insights = append(insights, in)
		}
		return insights, nil
	}

	insights := make([]conversation.SpeakerInsight, 0, len(order))
	for _, label := range order {
		insights = append(insights, byLabel[label])
	}
	return insights, nil
}

// resolveLabel maps a label written by the model onto a transcript speaker.
// Exact and normalized matches win; otherwise the single closest label by
// Jaro-Winkler similarity is taken if it clears labelSimilarity.
func resolveLabel(label string, speakers []string, t *conversation.Transcript) (string, bool) {
	label = strings.TrimSpace(strings.Trim(strings.TrimSpace(label), "[]*:"))
	if label == "" {
		return "", false
	}

	if len(speakers) == 0 {
		// Unlabeled transcript: the name must occur in the text
		if t.HasSpeaker(label) {
			return label, true
		}
		return "", false
	}

	norm := normalizeLabel(label)
	for _, s := range speakers {
		if s == label || normalizeLabel(s) == norm {
			return s, true
		}
	}

	best, bestScore, tie := "", 0.0, false
	for _, s := range speakers {
		candidate := normalizeLabel(s)
		// Numbered labels differ only by digits, so digits must agree exactly
		if digits(candidate) != digits(norm) {
			continue
		}
		score := matchr.JaroWinkler(norm, candidate, false)
		switch {
		case score > bestScore:
			best, bestScore, tie = s, score, false
		case score == bestScore:
			tie = true
		}
	}
	if bestScore >= labelSimilarity && !tie {
		return best, true
	}
	return "", false
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "[]()*:")
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '\t':
			return '_'
		}
		return r
	}, s)
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
