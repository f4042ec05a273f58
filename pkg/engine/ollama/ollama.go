// Package ollama implements engine.Engine on top of an Ollama server's raw
// generate endpoint.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/solo/pkg/engine"
	"github.com/papercomputeco/solo/pkg/llm"
)

// Config configures the Ollama engine.
type Config struct {
	// BaseURL of the Ollama server (e.g., "http://localhost:11434")
	BaseURL string

	// Model to generate with (e.g., "llama3.2")
	Model string

	// Timeout bounds a whole generation. Zero means no limit.
	Timeout time.Duration
}

// Engine drives one Ollama model. Prompts are sent with raw=true so the
// model continues exactly the text solo built.
type Engine struct {
	config     Config
	logger     *zap.Logger
	httpClient *http.Client

	mu      sync.Mutex
	options llm.Options
}

var _ engine.Engine = (*Engine)(nil)

// New creates an Engine. Call Load before serving requests with it.
func New(config Config, logger *zap.Logger) *Engine {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Engine{
		config: config,
		logger: logger.Named("ollama"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name implements engine.Engine.
func (e *Engine) Name() string {
	return "ollama/" + e.config.Model
}

// Load checks that the configured model is present on the server.
func (e *Engine) Load(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"model": e.config.Model})
	if err != nil {
		return fmt.Errorf("marshal show request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/api/show", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create show request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("show model %q: %w", e.config.Model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("show model %q: ollama returned %d: %s", e.config.Model, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	e.logger.Info("model available", zap.String("model", e.config.Model))
	return nil
}

// Configure implements engine.Engine.
func (e *Engine) Configure(layers ...llm.Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.options = llm.Layer(layers...)
}

// Generate implements engine.Engine. The HTTP request is issued on the
// first pull and its body is closed when iteration stops.
func (e *Engine) Generate(ctx context.Context, prompt, stop string) iter.Seq2[engine.Step, error] {
	e.mu.Lock()
	opts := e.options
	e.mu.Unlock()

	return func(yield func(engine.Step, error) bool) {
		body, err := json.Marshal(e.newRequest(prompt, stop, opts))
		if err != nil {
			yield(engine.Step{}, fmt.Errorf("marshal generate request: %w", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/api/generate", bytes.NewReader(body))
		if err != nil {
			yield(engine.Step{}, fmt.Errorf("create generate request: %w", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		e.logger.Debug("starting generation",
			zap.Int("prompt_chars", len(prompt)),
			zap.String("stop", stop),
		)

		resp, err := e.httpClient.Do(httpReq)
		if err != nil {
			yield(engine.Step{}, fmt.Errorf("generate: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(resp.Body)
			yield(engine.Step{}, fmt.Errorf("generate: ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
			return
		}

		var full strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var chunk generateChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				e.logger.Warn("failed to parse chunk", zap.Error(err), zap.String("line", string(line)))
				continue
			}
			if chunk.Error != "" {
				yield(engine.Step{}, fmt.Errorf("generate: %s", chunk.Error))
				return
			}

			if chunk.Response != "" {
				full.WriteString(chunk.Response)
				if !yield(engine.Step{Text: full.String(), Delta: chunk.Response}, nil) {
					return
				}
			}

			if chunk.Done {
				e.logger.Debug("generation done",
					zap.String("done_reason", chunk.DoneReason),
					zap.Int("eval_count", chunk.EvalCount),
				)
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			yield(engine.Step{}, fmt.Errorf("read generate stream: %w", err))
		}
	}
}

// Close implements engine.Engine.
func (e *Engine) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

func (e *Engine) newRequest(prompt, stop string, opts llm.Options) generateRequest {
	req := generateRequest{
		Model:  e.config.Model,
		Prompt: prompt,
		Raw:    true,
		Stream: true,
		Options: &generateOptions{
			NumPredict:       opts.MaxTokens,
			Temperature:      opts.Temperature,
			TopP:             opts.TopP,
			PresencePenalty:  opts.PresencePenalty,
			FrequencyPenalty: opts.FrequencyPenalty,
		},
	}
	if stop != "" {
		req.Options.Stop = []string{stop}
	}
	return req
}

// generateRequest maps to POST /api/generate.
type generateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	Raw     bool             `json:"raw"`
	Stream  bool             `json:"stream"`
	Options *generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	NumPredict       *int     `json:"num_predict,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`
}

// generateChunk is one NDJSON line from POST /api/generate (stream=true).
type generateChunk struct {
	Model      string `json:"model"`
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
	EvalCount  int    `json:"eval_count,omitempty"`
	Error      string `json:"error,omitempty"`
}
