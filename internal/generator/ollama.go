package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/valpere/qgen/internal/postprocess"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3.2"
)

// OllamaRewriter asks a local Ollama model for zero-shot rewrites.
type OllamaRewriter struct {
	model   string
	baseURL string
	n       int
	client  *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// NewOllamaRewriter creates a rewriter asking for n rewrites per sentence.
func NewOllamaRewriter(model, baseURL string, n int) *OllamaRewriter {
	if model == "" {
		model = DefaultOllamaModel
	}
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if n < 1 {
		n = 5
	}
	return &OllamaRewriter{
		model:   model,
		baseURL: baseURL,
		n:       n,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (r *OllamaRewriter) Name() string { return "ollama" }

func (r *OllamaRewriter) BatchGenerate(ctx context.Context, sentences []string) (map[string][]string, error) {
	out := make(map[string][]string, len(sentences))
	for _, s := range sentences {
		rewrites, err := r.Rewrite(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("rewrite %q: %w", s, err)
		}
		out[s] = rewrites
	}
	return out, nil
}

// Rewrite returns at most n rewrites of one question.
func (r *OllamaRewriter) Rewrite(ctx context.Context, sentence string) ([]string, error) {
	reqBody := ollamaRequest{
		Model:  r.model,
		Prompt: buildRewritePrompt(sentence, r.n),
		Stream: false,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rewrite request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/api/generate", r.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create rewrite request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rewrite request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode rewrite response: %w", err)
	}

	var out []string
	seen := make(map[string]bool)
	for _, line := range postprocess.SplitRewrites(ollamaResp.Response) {
		out = appendUnique(out, seen, line, sentence)
		if len(out) == r.n {
			break
		}
	}
	return out, nil
}

func buildRewritePrompt(sentence string, n int) string {
	return fmt.Sprintf(`You rewrite questions for a question answering system.

Write %d different ways to ask the question below.
Every rewrite must keep the original meaning and be a single question.

QUESTION:
%s

Output ONLY the rewrites, one per line, without numbering or explanation.`, n, sentence)
}
