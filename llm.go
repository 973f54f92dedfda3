package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ModelEvaluation is the external evaluator's answer for one story:
// all six criteria plus optional suggestions.
type ModelEvaluation struct {
	Verdicts    map[Criterion]bool
	Suggestions []string
}

// ModelClient is the external model collaborator. Both operations return
// an error on any malformed or out-of-range response; callers treat
// every error as capability failure and fall back.
type ModelClient interface {
	// Connect verifies the collaborator is reachable and the required
	// model is loaded. Called once at orchestrator construction.
	Connect() error
	// Available reports whether Connect succeeded.
	Available() bool
	EvaluateStory(ctx context.Context, story string) (*ModelEvaluation, error)
	EstimateHours(ctx context.Context, story string, verdicts map[Criterion]bool) (float64, error)
}

const (
	defaultLMStudioURL    = "http://127.0.0.1:1234"
	defaultLMStudioModel  = "openai/gpt-oss-20b"
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
)

// NewModelClient builds the configured provider. The examples, when
// present, seed a TF-IDF index used to pick calibration stories for the
// estimation prompt.
func NewModelClient(cfg Config, examples []HistoricalStory) ModelClient {
	var idx *tfidfIndex
	if len(examples) > 0 {
		idx = buildTFIDFIndex(examples)
	}
	switch cfg.ModelProvider {
	case "anthropic":
		model := cfg.ModelName
		if model == "" {
			model = defaultAnthropicModel
		}
		return &AnthropicClient{apiKey: cfg.AnthropicAPIKey, model: model, examples: idx, exampleCount: cfg.ExampleCount}
	default:
		baseURL := cfg.ModelBaseURL
		if baseURL == "" {
			baseURL = defaultLMStudioURL
		}
		model := cfg.ModelName
		if model == "" {
			model = defaultLMStudioModel
		}
		return &LMStudioClient{baseURL: strings.TrimRight(baseURL, "/"), model: model, examples: idx, exampleCount: cfg.ExampleCount}
	}
}

// --- LM Studio / OpenAI-compatible provider ---

// LMStudioClient talks to a local OpenAI-compatible chat-completions
// server (LM Studio and friends).
type LMStudioClient struct {
	baseURL         string
	model           string
	connected       bool
	availableModels []string
	examples        *tfidfIndex
	exampleCount    int
}

type lmModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *LMStudioClient) Connect() error {
	resp, err := connectHTTPClient.Get(c.baseURL + "/v1/models")
	if err != nil {
		return fmt.Errorf("model server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server returned status %d", resp.StatusCode)
	}

	var models lmModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return fmt.Errorf("parsing models response: %w", err)
	}

	c.availableModels = c.availableModels[:0]
	for _, m := range models.Data {
		c.availableModels = append(c.availableModels, m.ID)
	}

	for _, id := range c.availableModels {
		if strings.Contains(id, c.model) {
			c.connected = true
			log.Printf("llm connected url=%s model=%s available=%d", c.baseURL, c.model, len(c.availableModels))
			return nil
		}
	}
	return fmt.Errorf("model %q not loaded (available: %s)", c.model, strings.Join(c.availableModels, ", "))
}

func (c *LMStudioClient) Available() bool {
	return c.connected
}

func (c *LMStudioClient) generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	if !c.connected {
		return "", fmt.Errorf("client not connected")
	}

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := generateHTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("model server error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model server returned status %d: %s", resp.StatusCode, respBody)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return "", fmt.Errorf("parsing chat response: %w", err)
	}
	if chat.Error != nil {
		return "", fmt.Errorf("model server error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("no choices in chat response")
	}
	return chat.Choices[0].Message.Content, nil
}

func (c *LMStudioClient) EvaluateStory(ctx context.Context, story string) (*ModelEvaluation, error) {
	text, err := c.generate(ctx, buildEvaluationPrompt(story), 500, 0.3)
	if err != nil {
		return nil, err
	}
	return parseEvaluationResponse(text)
}

func (c *LMStudioClient) EstimateHours(ctx context.Context, story string, verdicts map[Criterion]bool) (float64, error) {
	prompt := buildEstimationPrompt(story, verdicts, similarExamples(c.examples, story, c.exampleCount))
	text, err := c.generate(ctx, prompt, 50, 0.3)
	if err != nil {
		return 0, err
	}
	return parseHoursResponse(text)
}

// --- Anthropic provider ---

// AnthropicClient satisfies ModelClient through the official SDK.
type AnthropicClient struct {
	apiKey       string
	model        string
	connected    bool
	examples     *tfidfIndex
	exampleCount int
}

func (c *AnthropicClient) Connect() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return fmt.Errorf("anthropic api key is not set")
	}
	c.connected = true
	log.Printf("llm provider=anthropic model=%s", c.model)
	return nil
}

func (c *AnthropicClient) Available() bool {
	return c.connected
}

func (c *AnthropicClient) generate(ctx context.Context, prompt string, maxTokens int64) (string, error) {
	client := anthropic.NewClient(option.WithAPIKey(c.apiKey))

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in anthropic response")
}

func (c *AnthropicClient) EvaluateStory(ctx context.Context, story string) (*ModelEvaluation, error) {
	text, err := c.generate(ctx, buildEvaluationPrompt(story), 500)
	if err != nil {
		return nil, err
	}
	return parseEvaluationResponse(text)
}

func (c *AnthropicClient) EstimateHours(ctx context.Context, story string, verdicts map[Criterion]bool) (float64, error) {
	prompt := buildEstimationPrompt(story, verdicts, similarExamples(c.examples, story, c.exampleCount))
	text, err := c.generate(ctx, prompt, 50)
	if err != nil {
		return 0, err
	}
	return parseHoursResponse(text)
}

// --- prompts and response parsing (provider-independent) ---

func similarExamples(idx *tfidfIndex, story string, k int) []HistoricalStory {
	if idx == nil {
		return nil
	}
	if k < 1 {
		k = 3
	}
	return idx.topK(story, k)
}

func buildEvaluationPrompt(story string) string {
	return fmt.Sprintf(`Eres un Product Owner pragmático evaluando esta historia de usuario con criterios INVEST:

Historia: "%s"

Evalúa cada criterio con mentalidad práctica de equipo ágil:
- Independiente: ¿se puede trabajar sin depender críticamente de otras historias?
- Negociable: ¿el equipo puede conversar sobre el alcance durante el desarrollo?
- Valiosa: ¿resuelve un problema real del usuario o aporta valor al negocio?
- Estimable: ¿el equipo puede entender qué construir y estimar el esfuerzo?
- Small: ¿se puede completar en 1-2 semanas?
- Testeable: ¿se puede verificar que funciona correctamente?

Solo marca false si hay problemas evidentes que bloquearían el desarrollo.

Responde SOLO con JSON válido:
{
"Independiente": true/false,
"Negociable": true/false,
"Valiosa": true/false,
"Estimable": true/false,
"Small": true/false,
"Testeable": true/false,
"sugerencias": ["sugerencia 1", "sugerencia 2"]
}

Sugerencias solo para criterios false, específicas y ejecutables.`, story)
}

func buildEstimationPrompt(story string, verdicts map[Criterion]bool, examples []HistoricalStory) string {
	var investContext strings.Builder
	if len(verdicts) > 0 {
		passed := 0
		for _, ok := range verdicts {
			if ok {
				passed++
			}
		}
		investContext.WriteString(fmt.Sprintf("\nContexto INVEST (criterios cumplidos: %d/6):\n", passed))
		for _, c := range CriteriaOrder {
			mark := "✗"
			if verdicts[c] {
				mark = "✓"
			}
			investContext.WriteString(fmt.Sprintf("- %s: %s\n", c, mark))
		}
	}

	var exampleBlock strings.Builder
	if len(examples) > 0 {
		exampleBlock.WriteString("\nHistorias similares ya completadas (horas reales):\n")
		for _, ex := range examples {
			text := strings.TrimSpace(ex.Text)
			if len(text) > 140 {
				text = text[:140] + "..."
			}
			exampleBlock.WriteString(fmt.Sprintf("- %q → %.1f horas\n", text, ex.Hours))
		}
	}

	return fmt.Sprintf(`Como experto en estimación de desarrollo de software, estima el tiempo de desarrollo para esta historia de usuario.

Historia de usuario: "%s"
%s%s
Factores de tiempo típicos:
- Historia simple (CRUD básico): 4-8 horas
- Historia media (lógica de negocio, validaciones): 8-16 horas
- Historia compleja (algoritmos, múltiples integraciones): 16-32 horas
- Historia muy compleja (nueva arquitectura, investigación): 32+ horas

IMPORTANTE: responde SOLO con un número decimal de horas. Sin texto adicional ni rangos.

Ejemplo de respuesta correcta: 12.5

Tiempo estimado en horas:`, story, investContext.String(), exampleBlock.String())
}

// parseEvaluationResponse extracts the JSON object from the model output
// and requires all six criteria as booleans. Anything else is a
// capability failure.
func parseEvaluationResponse(text string) (*ModelEvaluation, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var raw struct {
		Independiente *bool    `json:"Independiente"`
		Negociable    *bool    `json:"Negociable"`
		Valiosa       *bool    `json:"Valiosa"`
		Estimable     *bool    `json:"Estimable"`
		Small         *bool    `json:"Small"`
		Testeable     *bool    `json:"Testeable"`
		Sugerencias   []string `json:"sugerencias"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("parsing model evaluation: %w", err)
	}

	fields := map[Criterion]*bool{
		Independent: raw.Independiente,
		Negotiable:  raw.Negociable,
		Valuable:    raw.Valiosa,
		Estimable:   raw.Estimable,
		Small:       raw.Small,
		Testable:    raw.Testeable,
	}
	verdicts := make(map[Criterion]bool, len(CriteriaOrder))
	for _, c := range CriteriaOrder {
		v := fields[c]
		if v == nil {
			return nil, fmt.Errorf("model response missing criterion %q", c)
		}
		verdicts[c] = *v
	}

	return &ModelEvaluation{Verdicts: verdicts, Suggestions: raw.Sugerencias}, nil
}

var decimalPattern = regexp.MustCompile(`\d+\.?\d*`)

// parseHoursResponse extracts the first decimal number and rejects
// values outside the accepted hours range.
func parseHoursResponse(text string) (float64, error) {
	match := decimalPattern.FindString(strings.TrimSpace(text))
	if match == "" {
		return 0, fmt.Errorf("no number in model response")
	}
	hours, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing estimated hours: %w", err)
	}
	if hours < minEstimateHours || hours > maxEstimateHours {
		return 0, fmt.Errorf("estimated hours %.1f outside range [%.1f, %.1f]", hours, minEstimateHours, maxEstimateHours)
	}
	return hours, nil
}
