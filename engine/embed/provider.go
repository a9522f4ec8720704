// Package embed wraps an Ollama-compatible embedding runtime behind a
// lazily-loaded, process-wide provider. The runtime owns the model weights;
// this package only speaks its HTTP API.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anarkh-ai/faq-retrieval/engine/domain"
	"github.com/anarkh-ai/faq-retrieval/pkg/fn"
	"github.com/anarkh-ai/faq-retrieval/pkg/resilience"
)

// DefaultBatchSize bounds how many texts are embedded per logged batch.
const DefaultBatchSize = 32

// warmupPrompt is sent once at load time to verify the runtime is reachable
// and to learn the model's output dimension.
const warmupPrompt = "ping"

// Provider is an HTTP client for the embedding runtime. Loading is
// exactly-once per process: concurrent first callers block on a single
// in-flight probe. Once loaded, the provider is read-only and safe for
// concurrent use.
type Provider struct {
	baseURL string
	model   string
	client  *http.Client
	breaker *resilience.Breaker
	logger  *slog.Logger

	mu     sync.Mutex
	loaded atomic.Bool
	dim    int
}

// Info describes the provider's model and load state. Pure read.
type Info struct {
	ModelName string `json:"model_name"`
	BaseURL   string `json:"base_url"`
	Dimension int    `json:"dimension"`
	Loaded    bool   `json:"is_loaded"`
}

// New creates a Provider for the runtime at baseURL serving the named model.
func New(baseURL, model string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		logger:  logger,
	}
}

// Loaded reports whether the runtime has been probed successfully.
func (p *Provider) Loaded() bool { return p.loaded.Load() }

// Load probes the embedding runtime and records the model dimension.
// Double-checked: the unlocked fast path avoids the mutex once loaded, and
// a failed probe leaves the provider unloaded so the next call retries.
func (p *Provider) Load(ctx context.Context) error {
	if p.loaded.Load() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded.Load() {
		return nil
	}

	p.logger.Info("loading embedding model", "model", p.model, "base_url", p.baseURL)
	vec, err := p.embedOne(ctx, warmupPrompt)
	if err != nil {
		return fmt.Errorf("embed: load model %s: %w", p.model, err)
	}
	if len(vec) == 0 {
		return fmt.Errorf("embed: load model %s: runtime returned empty vector", p.model)
	}

	p.dim = len(vec)
	p.loaded.Store(true)
	p.logger.Info("embedding model loaded", "model", p.model, "dimension", p.dim)
	return nil
}

// Dimension returns the model's output dimension, or 0 before load.
func (p *Provider) Dimension() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dim
}

// Info returns model metadata without side effects.
func (p *Provider) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Info{
		ModelName: p.model,
		BaseURL:   p.baseURL,
		Dimension: p.dim,
		Loaded:    p.loaded.Load(),
	}
}

// Embed generates one vector per text. Empty input is an error so callers
// can treat it as a no-op trigger. If the provider is not yet loaded, Embed
// attempts exactly one lazy load before failing.
func (p *Provider) Embed(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, domain.ErrNoTexts
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	if !p.Loaded() {
		if err := p.Load(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrModelUnavailable, err)
		}
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range fn.Chunk(texts, batchSize) {
		for _, text := range batch {
			vec, err := p.embedOne(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("embed: text %d: %w", len(out), err)
			}
			if len(vec) != p.dim {
				return nil, fmt.Errorf("embed: text %d: dimension %d, model produces %d", len(out), len(vec), p.dim)
			}
			out = append(out, vec)
		}
		p.logger.Debug("embedded batch", "done", len(out), "total", len(texts))
	}
	return out, nil
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// embedOne routes a single embedding call through the circuit breaker so a
// dead runtime trips fast instead of eating the full client timeout per text.
func (p *Provider) embedOne(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := p.breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		vec, callErr = p.doEmbed(ctx, text)
		return callErr
	})
	return vec, err
}

func (p *Provider) doEmbed(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(embedRequest{Model: p.model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed request: status %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("embed decode: %w", err)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}
