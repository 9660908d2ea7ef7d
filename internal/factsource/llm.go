package factsource

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ashvattha/ashvattha/internal/model"
)

// confLLMCap caps LLM-asserted confidence. Model output is tertiary
// evidence: useful for sparse figures, never enough on its own to push
// a link past the auto-merge threshold.
const confLLMCap = 85

const llmSystemPrompt = "You are a genealogy research assistant. " +
	"Given a historical or notable person, report their documented parents and children. " +
	"Answer with JSON only, no prose. Schema: " +
	`{"facts":[{"relation":"father|mother|child","name":"...","gender":"male|female|","birth_year":1900,"death_year":1980,"confidence":0.0,"note":"..."}]}` +
	". Confidence is 0-100 and must reflect how well documented the relationship is. " +
	"Omit birth_year/death_year when unknown. Only include people you have real knowledge of; an empty facts array is a valid answer."

// LLM asks a chat model for documented parentage. It is the fallback
// source for figures too obscure or too legendary for the structured
// databases.
type LLM struct {
	client *openai.Client
	model  string
	maxTok int
}

// NewLLM creates an LLM source from the configured credentials
func NewLLM(cfg model.LLMConfig) (*LLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm source requires an API key")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	chatModel := cfg.Model
	if chatModel == "" {
		chatModel = openai.GPT4oMini
	}
	maxTok := cfg.MaxTokens
	if maxTok == 0 {
		maxTok = 1000
	}

	return &LLM{
		client: openai.NewClientWithConfig(clientConfig),
		model:  chatModel,
		maxTok: maxTok,
	}, nil
}

func (l *LLM) Name() string { return "llm" }

func (l *LLM) Lookup(ctx context.Context, id Identity, dir model.Direction) ([]CandidateFact, error) {
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: llmSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: llmPrompt(id, dir)},
		},
		MaxTokens:   l.maxTok,
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		// API errors are rate limits or upstream trouble more often than
		// bad requests; let the queue retry.
		return nil, fmt.Errorf("llm lookup %q: %v: %w", id.Name, err, ErrTransient)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm lookup %q: empty response", id.Name)
	}

	facts, err := ParseLLMFacts(resp.Choices[0].Message.Content, dir)
	if err != nil {
		return nil, fmt.Errorf("llm lookup %q: %w", id.Name, err)
	}
	return facts, nil
}

// llmPrompt renders the user message for one lookup
func llmPrompt(id Identity, dir model.Direction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Person: %s", id.Name)
	if id.BirthYear != nil {
		y := *id.BirthYear
		if y < 0 {
			fmt.Fprintf(&b, " (born %d BCE)", -y)
		} else {
			fmt.Fprintf(&b, " (born %d)", y)
		}
	}
	b.WriteString(". ")
	switch {
	case dir.Ancestors() && dir.Descendants():
		b.WriteString("List their documented parents and children.")
	case dir.Ancestors():
		b.WriteString("List their documented parents.")
	default:
		b.WriteString("List their documented children.")
	}
	return b.String()
}

// ParseLLMFacts decodes the model's JSON answer into candidate facts,
// clamping confidence and dropping relations outside the requested
// direction. Split out for fixture tests.
func ParseLLMFacts(content string, dir model.Direction) ([]CandidateFact, error) {
	content = strings.TrimSpace(content)
	// Some models wrap JSON in a code fence despite instructions
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var payload struct {
		Facts []struct {
			Relation   string  `json:"relation"`
			Name       string  `json:"name"`
			Gender     string  `json:"gender"`
			BirthYear  *int    `json:"birth_year"`
			DeathYear  *int    `json:"death_year"`
			Confidence float64 `json:"confidence"`
			Note       string  `json:"note"`
		} `json:"facts"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("decode facts: %w", err)
	}

	var facts []CandidateFact
	for _, f := range payload.Facts {
		rel := Relation(f.Relation)
		switch rel {
		case RelFather, RelMother:
			if !dir.Ancestors() {
				continue
			}
		case RelChild:
			if !dir.Descendants() {
				continue
			}
		default:
			continue
		}
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		conf := f.Confidence
		if conf <= 1 {
			conf *= 100 // model answered on a 0-1 scale
		}
		if conf > confLLMCap {
			conf = confLLMCap
		}
		if conf < 0 {
			conf = 0
		}
		facts = append(facts, CandidateFact{
			Relation:    rel,
			Name:        name,
			Gender:      strings.ToLower(strings.TrimSpace(f.Gender)),
			BirthYear:   f.BirthYear,
			DeathYear:   f.DeathYear,
			Confidence:  conf,
			SourceTitle: f.Note,
			SourceKind:  model.SourceLLM,
			Authority:   model.TierTertiary,
		})
	}
	return facts, nil
}
