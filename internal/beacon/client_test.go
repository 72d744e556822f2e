package beacon

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestClient_GetHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/eth/v1/beacon/headers/8224", r.URL.Path)
		w.Write([]byte(`{"data":{"root":"0xabc","header":{"message":{"slot":"8224","state_root":"0xdef"}}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), zerolog.Nop())
	h, err := c.GetHeader(t.Context(), 8224)
	require.NoError(t, err)
	require.Equal(t, uint64(8224), h.Slot)
	require.Equal(t, "0xabc", h.Root)
	require.Equal(t, "0xdef", h.StateRoot)
}

func TestClient_GetHeader_EmptySlot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), zerolog.Nop())
	_, err := c.GetHeader(t.Context(), 6710273)
	require.True(t, errors.Is(err, ErrEmptySlot))
}

func TestClient_GetHeaderWithRetry_RecoversFromEmptySlot(t *testing.T) {
	// Mirrors spec scenario 6: slot 6710273 is empty, 6710274 has the header.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/eth/v1/beacon/headers/6710273":
			w.WriteHeader(http.StatusNotFound)
		case "/eth/v1/beacon/headers/6710274":
			w.Write([]byte(`{"data":{"root":"0xabc","header":{"message":{"slot":"6710274","state_root":"0xdef"}}}}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), zerolog.Nop())
	h, resolvedSlot, err := c.GetHeaderWithRetry(t.Context(), 6710273)
	require.NoError(t, err)
	require.Equal(t, uint64(6710274), resolvedSlot)
	require.Equal(t, uint64(6710274), h.Slot)
}

func TestClient_GetHeaderWithRetry_ExhaustsAttempts(t *testing.T) {
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), zerolog.Nop())
	_, _, err := c.GetHeaderWithRetry(t.Context(), 100)
	require.True(t, errors.Is(err, ErrEmptySlot))
	require.Len(t, requests, 3) // job.MaxSkippedSlotsRetryAttempts
}

func TestClient_GetBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/eth/v2/beacon/blocks/8224", r.URL.Path)
		w.Write([]byte(`{"data":{"message":{"slot":"8224","body":{"sync_aggregate":{"sync_committee_bits":"0x01","sync_committee_signature":"0x02"},"execution_payload":{"block_hash":"0xbeef","block_number":"100"}}}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), zerolog.Nop())
	b, err := c.GetBlock(t.Context(), 8224)
	require.NoError(t, err)
	require.Equal(t, uint64(8224), b.Slot)
	require.Equal(t, "0xbeef", b.ExecutionHeaderHash)
	require.Equal(t, uint64(100), b.ExecutionHeaderHeight)
	require.Equal(t, "0x01", b.SyncAggregate.SyncCommitteeBits)
}

func TestClient_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), zerolog.Nop())
	require.NoError(t, c.HealthCheck(t.Context()))
}
