// Package prover implements the HTTP client for the external off-chain prover service
// (spec §6.3): two asynchronous operations — proof generation and proof wrapping —
// each returning an opaque query id and polled for DONE/FAILED/in-progress status.
//
// Grounded on x/superblock/proofs/prover/http_client.go, which is close to a 1:1 fit:
// the same submit-then-poll shape, the same buildURL/path.Join convention, and the
// same "decode a typed response, check Success, surface Error" error handling.
package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog"
)

// Status is the polled state of an asynchronous prover job.
type Status string

const (
	StatusDone       Status = "DONE"
	StatusFailed     Status = "FAILED"
	StatusInProgress Status = "IN_PROGRESS"
)

// Client is the external prover HTTP client.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	log        zerolog.Logger
}

// New constructs a prover client for the given base URL.
func New(rawURL string, httpClient *http.Client, log zerolog.Logger) (*Client, error) {
	if rawURL == "" {
		return nil, errors.New("prover: base URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("prover: invalid base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:    parsed,
		httpClient: httpClient,
		log:        log.With().Str("component", "prover-client").Logger(),
	}, nil
}

// SubmitProof uploads the PIE artifact bytes pieData, along with the layout/prover
// selection, and returns the prover's query id (spec §6.3: "persists the query_id
// before polling begins so that a restart can resume polling without re-submitting" —
// callers must persist the returned id before calling PollProof).
func (c *Client) SubmitProof(ctx context.Context, pieData []byte, layout string) (queryID string, err error) {
	return c.multipartSubmit(ctx, "proof", pieData, "pie.zip", map[string]string{"layout": layout})
}

// PollProof checks the status of a previously submitted proof-generation job. On
// StatusDone, proof holds the retrieved proof bytes.
func (c *Client) PollProof(ctx context.Context, queryID string) (status Status, proof []byte, err error) {
	return c.poll(ctx, "proof", queryID)
}

// SubmitWrap submits a generated proof, together with the attached verifier program,
// for final wrapping, and returns the prover's wrap query id.
func (c *Client) SubmitWrap(ctx context.Context, proof []byte, verifierProgram string) (queryID string, err error) {
	return c.multipartSubmit(ctx, "wrap", proof, "proof.bin", map[string]string{"verifier_program": verifierProgram})
}

// PollWrap checks the status of a previously submitted wrap job.
func (c *Client) PollWrap(ctx context.Context, queryID string) (status Status, wrapped []byte, err error) {
	return c.poll(ctx, "wrap", queryID)
}

func (c *Client) multipartSubmit(ctx context.Context, op string, payload []byte, filename string, fields map[string]string) (string, error) {
	endpoint := c.buildURL(op)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return "", fmt.Errorf("prover: write field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile("artifact", filename)
	if err != nil {
		return "", fmt.Errorf("prover: create form file: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return "", fmt.Errorf("prover: write artifact: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("prover: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("prover: prepare request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("endpoint", endpoint).Msg("prover submit failed")
		return "", fmt.Errorf("prover: submit %s: %w", op, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("prover: %s returned %s: %s", op, res.Status, string(msg))
	}

	var sub submissionResponse
	if err := json.NewDecoder(res.Body).Decode(&sub); err != nil {
		return "", fmt.Errorf("prover: decode submit response: %w", err)
	}
	if !sub.Success {
		return "", fmt.Errorf("prover: %s job rejected: %s", op, sub.errorMessage())
	}
	if sub.QueryID == "" {
		return "", errors.New("prover: response missing query_id")
	}

	c.log.Info().Str("op", op).Str("query_id", sub.QueryID).Msg("prover job submitted")
	return sub.QueryID, nil
}

func (c *Client) poll(ctx context.Context, op, queryID string) (Status, []byte, error) {
	if queryID == "" {
		return "", nil, errors.New("prover: queryID is required")
	}
	endpoint := c.buildURL(path.Join(op, queryID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", nil, fmt.Errorf("prover: prepare status request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("prover: get %s status: %w", op, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", nil, fmt.Errorf("prover: %s status returned %s: %s", op, res.Status, string(msg))
	}

	var sr statusResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return "", nil, fmt.Errorf("prover: decode status response: %w", err)
	}
	if !sr.Success {
		return "", nil, fmt.Errorf("prover: unsuccessful status: %s", sr.errorMessage())
	}

	c.log.Debug().Str("op", op).Str("query_id", queryID).Str("status", sr.Status).Msg("polled prover status")

	return Status(sr.Status), sr.Result, nil
}

func (c *Client) buildURL(elem ...string) string {
	clone := *c.baseURL
	clone.Path = path.Join(append([]string{c.baseURL.Path}, elem...)...)
	return clone.String()
}

type submissionResponse struct {
	Success bool    `json:"success"`
	QueryID string  `json:"query_id"`
	Message string  `json:"message"`
	Error   *string `json:"error"`
}

func (r submissionResponse) errorMessage() string {
	if r.Error != nil {
		return *r.Error
	}
	return r.Message
}

type statusResponse struct {
	Success bool    `json:"success"`
	Status  string  `json:"status"`
	Result  []byte  `json:"result,omitempty"`
	Error   *string `json:"error"`
}

func (r statusResponse) errorMessage() string {
	if r.Error != nil {
		return *r.Error
	}
	return ""
}
