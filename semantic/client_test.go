package semantic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-store/apperrors"
)

func TestClient_Query(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"answer":     "Export controls cut China revenue.",
			"sources":    []string{"doc7"},
			"confidence": 0.7,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", time.Second, time.Second, nil)
	ans, err := c.Query(context.Background(), Request{Text: "why?", Mode: ModeLocal, Context: []string{"NVDA"}})
	require.NoError(t, err)

	assert.Equal(t, "why?", got.Text)
	assert.Equal(t, ModeLocal, got.Mode)
	assert.Equal(t, []string{"NVDA"}, got.Context)
	assert.Equal(t, "Export controls cut China revenue.", ans.Text)
	assert.Equal(t, []string{"doc7"}, ans.Sources)
	assert.Equal(t, ModeLocal, ans.Mode)
	assert.InDelta(t, 0.7, ans.Confidence, 1e-9)
}

func TestClient_Ingest(t *testing.T) {
	var got Document
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ingest", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, time.Second, nil)
	err := c.Ingest(context.Background(), Document{ID: "doc1", Text: "text", Metadata: map[string]string{"ticker": "NVDA"}})
	require.NoError(t, err)
	assert.Equal(t, "doc1", got.ID)
	assert.Equal(t, "NVDA", got.Metadata["ticker"])
}

func TestClient_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, time.Second, nil)
	_, err := c.Query(context.Background(), Request{Text: "q", Mode: ModeHybrid})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSemanticUnavailable)
	assert.True(t, apperrors.IsSemanticFailure(err))
}

func TestClient_SlowServerIsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, "", 50*time.Millisecond, time.Second, nil)
	start := time.Now()
	_, err := c.Query(context.Background(), Request{Text: "q", Mode: ModeHybrid})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSemanticTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_ConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, "", time.Second, time.Second, nil)
	err := c.Ingest(context.Background(), Document{ID: "doc1", Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSemanticUnavailable)
}

func TestClient_CallerCancelIsNotASemanticFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	c := NewClient(srv.URL, "", 5*time.Second, time.Second, nil)
	_, err := c.Query(ctx, Request{Text: "q", Mode: ModeHybrid})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, apperrors.IsSemanticFailure(err))
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{}.Query(context.Background(), Request{})
	assert.ErrorIs(t, err, apperrors.ErrSemanticUnavailable)
	assert.ErrorIs(t, Unavailable{}.Ingest(context.Background(), Document{}), apperrors.ErrSemanticUnavailable)
}

func TestParseModes(t *testing.T) {
	assert.Equal(t, []Mode{ModeLocal, ModeNaive}, ParseModes([]string{"local", "bogus", "naive", "local"}))
	assert.Equal(t, DefaultModes, ParseModes(nil))
}
