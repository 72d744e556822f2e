// Package tracegen implements the HTTP client for the external Cairo trace generation
// service the pipelines call out to at "generate PIE" (spec §4.4/§4.5 step 2): the
// daemon serializes the circuit input to JSON and posts it, the service runs the Cairo
// program and returns the resulting PIE artifact synchronously.
//
// Grounded on internal/prover's http_client shape (itself grounded on
// x/superblock/proofs/prover/http_client.go): same buildURL/path.Join convention, same
// "decode a typed response, check Success, surface Error" handling. Unlike the prover,
// trace generation is a single synchronous call rather than submit-then-poll — the Go
// shape (internal/pipeline/synccommittee, internal/pipeline/epochbatch) models it as a
// TraceGenerator interface with one blocking call per job kind rather than an
// asynchronous query id, matching original_source's generate_*_pie functions, which
// return the PIE directly rather than a handle.
package tracegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/lightclient/bankai/internal/pipeline/epochbatch"
	"github.com/lightclient/bankai/internal/pipeline/synccommittee"
)

// Client is the external trace-generation service's HTTP client. It implements both
// synccommittee.TraceGenerator and epochbatch.TraceGenerator.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	log        zerolog.Logger
}

// New constructs a trace-generation client for the given base URL.
func New(rawURL string, httpClient *http.Client, log zerolog.Logger) (*Client, error) {
	if rawURL == "" {
		return nil, errors.New("tracegen: base URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("tracegen: invalid base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}

	return &Client{
		baseURL:    parsed,
		httpClient: httpClient,
		log:        log.With().Str("component", "tracegen-client").Logger(),
	}, nil
}

// GenerateSyncCommitteePIE runs the sync-committee circuit's trace generation program
// against input and returns the resulting PIE artifact.
func (c *Client) GenerateSyncCommitteePIE(ctx context.Context, input synccommittee.CircuitInput) ([]byte, error) {
	return c.generate(ctx, "sync-committee", input)
}

// GenerateEpochBatchPIE runs the epoch-batch circuit's trace generation program
// against input and returns the resulting PIE artifact.
func (c *Client) GenerateEpochBatchPIE(ctx context.Context, input epochbatch.CircuitInput) ([]byte, error) {
	return c.generate(ctx, "epoch-batch", input)
}

func (c *Client) generate(ctx context.Context, circuit string, input any) ([]byte, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("tracegen: encode circuit input: %w", err)
	}

	endpoint := c.buildURL("generate", circuit)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tracegen: prepare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("circuit", circuit).Msg("trace generation request failed")
		return nil, fmt.Errorf("tracegen: generate %s: %w", circuit, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("tracegen: %s returned %s: %s", circuit, res.Status, string(msg))
	}

	var gr generateResponse
	if err := json.NewDecoder(res.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("tracegen: decode response: %w", err)
	}
	if !gr.Success {
		return nil, fmt.Errorf("tracegen: %s generation failed: %s", circuit, gr.errorMessage())
	}
	if len(gr.PIE) == 0 {
		return nil, errors.New("tracegen: response missing pie")
	}

	c.log.Info().Str("circuit", circuit).Int("pie_bytes", len(gr.PIE)).Msg("trace generated")
	return gr.PIE, nil
}

func (c *Client) buildURL(elem ...string) string {
	clone := *c.baseURL
	clone.Path = path.Join(append([]string{c.baseURL.Path}, elem...)...)
	return clone.String()
}

type generateResponse struct {
	Success bool    `json:"success"`
	PIE     []byte  `json:"pie"`
	Message string  `json:"message"`
	Error   *string `json:"error"`
}

func (r generateResponse) errorMessage() string {
	if r.Error != nil {
		return *r.Error
	}
	return r.Message
}
