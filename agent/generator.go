package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ericgreene/go-serp"
	openai "github.com/sashabaranov/go-openai"

	"github.com/soullab/oracle-choreography/core"
)

// LLMConfig holds configuration for LLM interactions.
type LLMConfig struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// DefaultLLMConfig returns standard LLM configuration.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:       "gpt-4o-mini",
		MaxTokens:   1024,
		Temperature: 0.8,
	}
}

// SearchConfig holds configuration for web search enrichment.
type SearchConfig struct {
	MaxResults int
	SafeSearch bool
}

// DefaultSearchConfig returns standard search configuration.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		MaxResults: 3,
		SafeSearch: true,
	}
}

// SearchResult represents a web search result used to enrich a prompt.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// OpenAIGenerator produces personality-voiced responses through the OpenAI
// chat API, optionally enriched with web search context when SERP_API_KEY
// is configured.
type OpenAIGenerator struct {
	client *openai.Client
	config LLMConfig
}

// NewOpenAIGenerator builds a generator from the OPENAI_API_KEY environment
// variable.
func NewOpenAIGenerator(config LLMConfig) (*OpenAIGenerator, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		config: config,
	}, nil
}

// generatedReply is the JSON shape the model is asked to return.
type generatedReply struct {
	Text                 string   `json:"text"`
	ResistancesTriggered []string `json:"resistances_triggered"`
	ContradictionsActive []string `json:"contradictions_active"`
	PredictabilityIndex  float64  `json:"predictability_index"`
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, profile core.PersonalityProfile, input string, tctx core.TurnContext) (core.ResponsePayload, error) {
	prompt := buildPrompt(profile, input, tctx)

	if os.Getenv("SERP_API_KEY") != "" {
		if research := researchContext(input, DefaultSearchConfig()); research != "" {
			prompt = research + "\n" + prompt
		}
	}

	system := profile.SystemPrompt
	if system == "" {
		system = fmt.Sprintf("You are %s, the %s oracle. Speak in that element's voice.", profile.Name, profile.Element)
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	})
	if err != nil {
		return core.ResponsePayload{}, err
	}
	if len(resp.Choices) == 0 {
		return core.ResponsePayload{}, fmt.Errorf("empty completion response")
	}

	content := resp.Choices[0].Message.Content

	var reply generatedReply
	if err := json.Unmarshal([]byte(content), &reply); err != nil || reply.Text == "" {
		// Model did not honor the JSON shape; treat the whole reply as text.
		return core.ResponsePayload{Text: content}, nil
	}
	return core.ResponsePayload{
		Text:                 reply.Text,
		ResistancesTriggered: reply.ResistancesTriggered,
		ContradictionsActive: reply.ContradictionsActive,
		PredictabilityIndex:  reply.PredictabilityIndex,
	}, nil
}

func buildPrompt(profile core.PersonalityProfile, input string, tctx core.TurnContext) string {
	var b strings.Builder

	archetypes := make([]string, 0, len(profile.ArchetypeResonance))
	for name := range profile.ArchetypeResonance {
		archetypes = append(archetypes, name)
	}
	sort.Strings(archetypes)

	fmt.Fprintf(&b, "You resonate with these archetypes: %s.\n", strings.Join(archetypes, ", "))
	fmt.Fprintf(&b, "Your directness is %.1f and intensity %.1f on a 0-1 scale.\n",
		profile.Temperament.Directness, profile.Temperament.Intensity)

	if tctx.UserProfile != nil && tctx.UserProfile.EmotionalState != "" {
		fmt.Fprintf(&b, "The seeker's emotional state: %s.\n", tctx.UserProfile.EmotionalState)
	}
	if n := len(tctx.PreviousMessages); n > 0 {
		recent := tctx.PreviousMessages
		if n > 3 {
			recent = recent[n-3:]
		}
		fmt.Fprintf(&b, "Recent conversation:\n%s\n", strings.Join(recent, "\n"))
	}

	fmt.Fprintf(&b, "\nThe seeker says: %q\n\n", input)
	b.WriteString(`Respond as valid JSON only:
{
  "text": "your response in your element's voice",
  "resistances_triggered": ["named resistance, if you pushed back on the seeker"],
  "contradictions_active": ["named contradiction, if you contradicted an earlier reading"],
  "predictability_index": 0.0
}`)

	return b.String()
}

// researchContext runs the input through web search and formats findings as
// prompt context. Failures degrade to no enrichment.
func researchContext(query string, config SearchConfig) string {
	results, err := performWebSearch(query, config)
	if err != nil || len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant context from the wider world:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- %s\n  %s\n", r.Title, r.Snippet)
	}
	return b.String()
}

func performWebSearch(query string, config SearchConfig) ([]SearchResult, error) {
	apiKey := os.Getenv("SERP_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("SERP_API_KEY not set")
	}

	parameter := map[string]string{
		"q":   query,
		"key": apiKey,
		"num": strconv.Itoa(config.MaxResults),
	}
	if config.SafeSearch {
		parameter["safe"] = "active"
	}

	queryResponse := serp.NewGoogleSearch(parameter)
	results, err := queryResponse.GetJSON()
	if err != nil {
		return nil, err
	}

	var searchResults []SearchResult
	for _, result := range results.OrganicResults {
		searchResults = append(searchResults, SearchResult{
			Title:   result.Title,
			Snippet: result.Snippet,
			Link:    result.Link,
		})
	}

	return searchResults, nil
}
