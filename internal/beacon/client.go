// Package beacon implements the beacon-chain RPC client (spec §6.2) and the
// long-lived head-event ingress (C2, §4.7).
//
// The RPC client is grounded on x/superblock/batch/beacon_api.go: the same
// "{data: json.RawMessage}" envelope, the same decimal-string-field decoding
// convention, and the same request/log shape. The head-event ingress replaces that
// file's polling loop (listener.go) with a genuine server-sent-events subscription,
// since the spec requires a push-based stream; github.com/r3labs/sse (pulled in from
// prysmaticlabs-prysm's dependency set) supplies it.
package beacon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/lightclient/bankai/internal/job"
)

// ErrEmptySlot is returned by GetHeader when the beacon node has no block for the
// requested slot (spec §6.2: "404 means empty slot").
var ErrEmptySlot = errors.New("beacon: empty slot")

// envelope wraps every beacon API JSON response.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// Header is the decoded result of GET /eth/v1/beacon/headers/{slot}.
type Header struct {
	Slot      uint64
	Root      string
	StateRoot string
}

// Block is the decoded result of GET /eth/v2/beacon/blocks/{slot}.
type Block struct {
	Slot                  uint64
	SyncAggregate         SyncAggregate
	ExecutionHeaderHash   string
	ExecutionHeaderHeight uint64
}

// SyncAggregate carries the bit-vector of participating validators and the
// aggregate BLS signature, consumed by the trace generator.
type SyncAggregate struct {
	SyncCommitteeBits      string `json:"sync_committee_bits"`
	SyncCommitteeSignature string `json:"sync_committee_signature"`
}

// Client is the beacon-chain RPC client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

func New(baseURL string, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		log:        log.With().Str("component", "beacon-client").Logger(),
	}
}

// GetHeaderWithRetry fetches the header for slot, advancing to slot+1 and retrying when
// the beacon node reports an empty slot (spec §6.2/§7; the §8 boundary property "after
// MAX_SKIPPED_SLOTS_RETRY_ATTEMPTS increments, the stage fails the job"; scenario 6: a
// 404 at 6710273 succeeds at 6710274). Grounded on
// original_source/crates/core/src/clients/beacon_chain.rs:94-118's get_sync_aggregate
// retry loop. Returns the header and the slot it was actually found at — callers must
// address any subsequent beacon call (GetBlock, GetSyncCommittee) to that resolved
// slot, not the one originally requested.
func (c *Client) GetHeaderWithRetry(ctx context.Context, slot uint64) (*Header, uint64, error) {
	var lastErr error
	for attempt := uint64(0); attempt < job.MaxSkippedSlotsRetryAttempts; attempt++ {
		header, err := c.GetHeader(ctx, slot)
		if err == nil {
			return header, slot, nil
		}
		if !errors.Is(err, ErrEmptySlot) {
			return nil, 0, err
		}
		lastErr = err
		c.log.Warn().Uint64("slot", slot).Uint64("attempt", attempt+1).
			Uint64("max_attempts", job.MaxSkippedSlotsRetryAttempts).
			Msg("empty slot detected, retrying at next slot")
		slot++
	}
	return nil, 0, lastErr
}

// GetHeader fetches the header for slot. Returns ErrEmptySlot on a 404, per §6.2 —
// callers needing the retry-and-advance behavior of spec §7/§8 should use
// GetHeaderWithRetry instead.
func (c *Client) GetHeader(ctx context.Context, slot uint64) (*Header, error) {
	url := fmt.Sprintf("%s/eth/v1/beacon/headers/%d", c.baseURL, slot)

	var raw struct {
		Header struct {
			Message struct {
				Slot      string `json:"slot"`
				StateRoot string `json:"state_root"`
			} `json:"message"`
		} `json:"header"`
		Root string `json:"root"`
	}

	if err := c.getJSON(ctx, url, &raw); err != nil {
		if errors.Is(err, ErrEmptySlot) {
			return nil, ErrEmptySlot
		}
		return nil, err
	}

	return &Header{
		Slot:      parseUint64(raw.Header.Message.Slot),
		Root:      raw.Root,
		StateRoot: raw.Header.Message.StateRoot,
	}, nil
}

// GetBlock fetches the block body for slot, including the sync aggregate and the
// execution-layer header needed by the epoch-batch pipeline.
func (c *Client) GetBlock(ctx context.Context, slot uint64) (*Block, error) {
	url := fmt.Sprintf("%s/eth/v2/beacon/blocks/%d", c.baseURL, slot)

	var raw struct {
		Message struct {
			Slot uint64 `json:"slot,string"`
			Body struct {
				SyncAggregate    SyncAggregate `json:"sync_aggregate"`
				ExecutionPayload struct {
					BlockHash   string `json:"block_hash"`
					BlockNumber string `json:"block_number"`
				} `json:"execution_payload"`
			} `json:"body"`
		} `json:"message"`
	}

	if err := c.getJSON(ctx, url, &raw); err != nil {
		return nil, err
	}

	return &Block{
		Slot:                  raw.Message.Slot,
		SyncAggregate:         raw.Message.Body.SyncAggregate,
		ExecutionHeaderHash:   raw.Message.Body.ExecutionPayload.BlockHash,
		ExecutionHeaderHeight: parseUint64(raw.Message.Body.ExecutionPayload.BlockNumber),
	}, nil
}

// SyncCommittee is the decoded result of GET /eth/v1/beacon/states/{slot}/sync_committees.
type SyncCommittee struct {
	Validators []string `json:"validators"`
}

// GetSyncCommittee fetches the validator index set for the sync committee active at slot.
func (c *Client) GetSyncCommittee(ctx context.Context, slot uint64) (*SyncCommittee, error) {
	url := fmt.Sprintf("%s/eth/v1/beacon/states/%d/sync_committees", c.baseURL, slot)
	var sc SyncCommittee
	if err := c.getJSON(ctx, url, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validator is a single entry of GET /eth/v1/beacon/states/head/validators.
type Validator struct {
	Index  string `json:"index"`
	Pubkey string `json:"pubkey"`
}

// GetValidators fetches validator records for the given indices, used to resolve
// non-signers for the epoch-batch pipeline's per-epoch proof inputs.
func (c *Client) GetValidators(ctx context.Context, ids []string) ([]Validator, error) {
	url := fmt.Sprintf("%s/eth/v1/beacon/states/head/validators", c.baseURL)
	if len(ids) > 0 {
		url += "?id=" + joinComma(ids)
	}
	var validators []Validator
	if err := c.getJSON(ctx, url, &validators); err != nil {
		return nil, err
	}
	return validators, nil
}

// HealthCheck verifies beacon node connectivity.
func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/eth/v1/node/health", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("beacon: create health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("beacon: health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("beacon: health check returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("beacon: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("beacon: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrEmptySlot
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("beacon: returned %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("beacon: decode envelope: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("beacon: decode data: %w", err)
	}
	return nil
}

func parseUint64(s string) uint64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
