package insight

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lexiqai/insight-gateway/internal/conversation"
)

// SentimentLogic tunes what the model looks for and how it phrases results
type SentimentLogic struct {
	Reasoning    string `yaml:"reasoning"`
	OutputFormat string `yaml:"output_format"`
}

// DefaultSentimentLogic returns the built-in analysis instructions
func DefaultSentimentLogic() SentimentLogic {
	return SentimentLogic{
		Reasoning:    "Extract key points relevant to sentiment analysis.",
		OutputFormat: "Speaker name followed by the results.",
	}
}

// LoadSentimentLogic reads a YAML override. Fields left empty keep their defaults.
func LoadSentimentLogic(path string) (SentimentLogic, error) {
	logic := DefaultSentimentLogic()
	if path == "" {
		return logic, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return logic, fmt.Errorf("failed to read prompt template %s: %w", path, err)
	}

	var override SentimentLogic
	if err := yaml.Unmarshal(data, &override); err != nil {
		return logic, fmt.Errorf("failed to parse prompt template %s: %w", path, err)
	}

	if s := strings.TrimSpace(override.Reasoning); s != "" {
		logic.Reasoning = s
	}
	if s := strings.TrimSpace(override.OutputFormat); s != "" {
		logic.OutputFormat = s
	}
	return logic, nil
}

const responseContract = `Respond with JSON only, no prose and no code fences, in exactly this shape:
{"speakers":[{"speaker":"<label>","sentiment":"positive|neutral|negative|mixed","insight":"<one or two sentences>"}]}
Include every speaker exactly once.`

const exampleConversation = "Speaker_1: I skimmed a book on quantum physics, so I basically understand it now.\n" +
	"Speaker_2: I went for a run this morning and I have tennis later. I feel great."

const oneShotExample = `{"speakers":[` +
	`{"speaker":"Speaker_2","sentiment":"positive","insight":"Likes a sport. It seems they care about their health."},` +
	`{"speaker":"Speaker_1","sentiment":"neutral","insight":"Pretends to be smart."}]}`

// PromptBuilder renders the chat sent to the LLM for a transcript
type PromptBuilder struct {
	logic SentimentLogic
}

// NewPromptBuilder creates a builder using logic
func NewPromptBuilder(logic SentimentLogic) *PromptBuilder {
	return &PromptBuilder{logic: logic}
}

// Build returns the system prompt, a one-shot example exchange and the user
// request. The transcript text is embedded verbatim and the output is
// identical for identical input.
func (b *PromptBuilder) Build(t *conversation.Transcript) []Message {
	var system strings.Builder
	system.WriteString("You are an advanced AI language model designed to extract expert psychological ")
	system.WriteString("insights and sentiments of all the speakers in the given conversation flows. ")
	system.WriteString("Your goal is to distill complex information, identify key sentiment insights about ")
	fmt.Fprintf(&system, "each speaker according to the following reasoning: %s ", b.logic.Reasoning)
	fmt.Fprintf(&system, "Generate a concise and informative description of the insights gathered, in the form of: %s\n\n", b.logic.OutputFormat)
	system.WriteString(responseContract)

	var user strings.Builder
	user.WriteString("Write expert sentimental or psychological insights of each speaker involved in the following conversational flow:\n\n")
	user.WriteString(t.Text)
	user.WriteString("\n\n")
	fmt.Fprintf(&user, "Consider relevant %s and nuances in the content.\n", strings.TrimSuffix(b.logic.Reasoning, "."))

	if speakers := t.Speakers(); len(speakers) > 0 {
		fmt.Fprintf(&user, "The speakers are labelled %s. Use these labels exactly.", strings.Join(speakers, ", "))
	} else {
		user.WriteString("Refer to each speaker by the name used in the conversation.")
	}

	return []Message{
		{Role: RoleSystem, Content: system.String()},
		{Role: RoleUser, Content: "Example conversation:\n\n" + exampleConversation},
		{Role: RoleAssistant, Content: oneShotExample},
		{Role: RoleUser, Content: user.String()},
	}
}
