// Package tokenestimate estimates token usage for tool inputs/outputs
// using tiktoken-go, so the server can attach Usage/Efficiency
// figures to query results without making a round trip to a model API.
//
// Grounded on the teacher's cmd/mysql-mcp-server/token_estimator.go,
// lifted out of package main into an injectable Estimator so callers
// (and tests) can construct their own instance instead of reaching for
// a package-level global, per the specification's design notes on
// avoiding module-level singletons.
package tokenestimate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens for text and arbitrary JSON-serializable
// values.
type Estimator interface {
	Model() string
	Count(text string) (int, error)
	EstimateValue(v any) (int, error)
}

type tiktokenEstimator struct {
	model string
	mu    sync.Mutex
	enc   *tiktoken.Tiktoken
}

func (e *tiktokenEstimator) Model() string { return e.model }

func (e *tiktokenEstimator) Count(text string) (int, error) {
	// tiktoken-go encoders are not documented as goroutine-safe.
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.enc.Encode(text, nil, nil)), nil
}

// maxEstimationBytes bounds the JSON buffer used for estimation; this is
// only for *estimation*, not a hard limit on tool result size.
const maxEstimationBytes = 1 << 20 // 1 MiB

var errLimitExceeded = errors.New("tokenestimate: size limit exceeded")

type limitedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.buf.Len()+len(p) > w.limit {
		if remaining := w.limit - w.buf.Len(); remaining > 0 {
			w.buf.Write(p[:remaining])
		}
		return len(p), errLimitExceeded
	}
	return w.buf.Write(p)
}

func (e *tiktokenEstimator) EstimateValue(v any) (int, error) {
	buf := &bytes.Buffer{}
	lw := &limitedWriter{buf: buf, limit: maxEstimationBytes}
	err := json.NewEncoder(lw).Encode(v)
	if errors.Is(err, errLimitExceeded) {
		// Payload exceeded the cap; fall back to a byte/4 heuristic
		// rather than estimating against a truncated buffer.
		return maxEstimationBytes / 4, nil
	}
	if err != nil {
		return 0, err
	}
	return e.Count(buf.String())
}

// New constructs an Estimator for model (defaulting to "cl100k_base").
func New(model string) (Estimator, error) {
	if model == "" {
		model = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(model)
	if err != nil {
		return nil, fmt.Errorf("tokenestimate: get encoding %q: %w", model, err)
	}
	return &tiktokenEstimator{model: model, enc: enc}, nil
}

// Usage is attached to query results when token tracking is enabled.
type Usage struct {
	InputEstimated  int    `json:"input_estimated"`
	OutputEstimated int    `json:"output_estimated"`
	TotalEstimated  int    `json:"total_estimated"`
	Model           string `json:"model,omitempty"`
}

// Efficiency holds derived token-usage metrics.
type Efficiency struct {
	TokensPerRow    float64 `json:"tokens_per_row,omitempty"`
	IOEfficiency    float64 `json:"io_efficiency,omitempty"`
	CostEstimateUSD float64 `json:"cost_estimate_usd,omitempty"`
}

// Pricing per 1M tokens (GPT-4o as reference), used only to give the
// caller a rough cost figure alongside the token counts.
const (
	costPerMillionInputTokens  = 2.50
	costPerMillionOutputTokens = 10.00
)

// CalculateEfficiency computes TokensPerRow, IOEfficiency, and a cost
// estimate from estimated input/output token counts and a row count.
func CalculateEfficiency(inputTokens, outputTokens, rowCount int) Efficiency {
	var eff Efficiency

	if rowCount > 0 {
		eff.TokensPerRow = round2(float64(outputTokens) / float64(rowCount))
	}
	if inputTokens > 0 {
		eff.IOEfficiency = round2(float64(outputTokens) / float64(inputTokens))
	}

	inputCost := float64(inputTokens) / 1_000_000 * costPerMillionInputTokens
	outputCost := float64(outputTokens) / 1_000_000 * costPerMillionOutputTokens
	eff.CostEstimateUSD = math.Round((inputCost+outputCost)*1_000_000) / 1_000_000

	return eff
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
