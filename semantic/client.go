package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"signal-store/apperrors"
)

// Client talks to the semantic engine over HTTP.
//
//	POST {base}/ingest  {"id","text","metadata"}          -> 2xx
//	POST {base}/query   {"query","mode","context"}        -> {"answer","sources","confidence"}
type Client struct {
	baseURL       string
	apiKey        string
	httpClient    *http.Client
	queryTimeout  time.Duration
	ingestTimeout time.Duration
	log           *zap.Logger
}

// NewClient returns a client for baseURL. Per-call timeouts apply on top of
// any deadline already on the context.
func NewClient(baseURL, apiKey string, queryTimeout, ingestTimeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	if ingestTimeout <= 0 {
		ingestTimeout = 15 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		httpClient:    &http.Client{},
		queryTimeout:  queryTimeout,
		ingestTimeout: ingestTimeout,
		log:           log.Named("semantic"),
	}
}

func (c *Client) Ingest(ctx context.Context, doc Document) error {
	ctx, cancel := context.WithTimeout(ctx, c.ingestTimeout)
	defer cancel()

	if err := c.post(ctx, "/ingest", doc, nil); err != nil {
		return errors.Wrapf(err, "ingest %s", doc.ID)
	}
	return nil
}

func (c *Client) Query(ctx context.Context, req Request) (*Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	start := time.Now()
	var ans Answer
	if err := c.post(ctx, "/query", req, &ans); err != nil {
		return nil, errors.Wrapf(err, "query mode %s", req.Mode)
	}
	if ans.Mode == "" {
		ans.Mode = req.Mode
	}
	if ans.Sources == nil {
		ans.Sources = []string{}
	}
	c.log.Debug("semantic query",
		zap.String("mode", string(req.Mode)),
		zap.Duration("elapsed", time.Since(start)))
	return &ans, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Wrapf(apperrors.ErrSemanticUnavailable, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return classify(ctx, err)
		}
		return errors.Wrapf(apperrors.ErrSemanticUnavailable, "malformed response: %v", err)
	}
	return nil
}

// classify maps transport errors onto the semantic failure sentinels. Caller
// cancellation is passed through unchanged.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return errors.Wrapf(apperrors.ErrSemanticTimeout, "%v", err)
	}
	return errors.Wrapf(apperrors.ErrSemanticUnavailable, "%v", err)
}
