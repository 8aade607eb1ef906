package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client reads the feed registry over JSON-RPC. The registry contract is
// opaque to this client; it only understands the paginated read methods
// and multicall.
type Client struct {
	rpcURL          string
	registryAddress string
	httpClient      *http.Client
}

var _ Registry = (*Client)(nil)

// ClientConfig holds registry client configuration.
type ClientConfig struct {
	RPCURL          string
	RegistryAddress string
	Timeout         time.Duration
}

// NewClient creates a registry client for one RPC provider.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}
	if u, err := url.Parse(cfg.RPCURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid RPC URL %q", cfg.RPCURL)
	}
	if cfg.RegistryAddress == "" {
		return nil, fmt.Errorf("registry address required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		rpcURL:          cfg.RPCURL,
		registryAddress: cfg.RegistryAddress,
		httpClient:      &http.Client{Timeout: timeout},
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call makes a JSON-RPC call against the configured provider.
func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("RPC status %d: %s", resp.StatusCode, respBody)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// Count returns the number of active feeds in the registry.
func (c *Client) Count(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "registry_count", []interface{}{c.registryAddress})
	if err != nil {
		return 0, err
	}

	var count uint64
	if err := json.Unmarshal(result, &count); err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	return count, nil
}

// ReadPage reads one registry page.
func (c *Client) ReadPage(ctx context.Context, offset, limit uint64) ([]FeedBatchEntry, error) {
	result, err := c.call(ctx, "registry_readPage", []interface{}{c.registryAddress, offset, limit})
	if err != nil {
		return nil, err
	}
	return DecodeBatch(result)
}

// ReadPageWithCount reads the first page and the active-feed count in a
// single round trip.
func (c *Client) ReadPageWithCount(ctx context.Context, offset, limit uint64) ([]FeedBatchEntry, uint64, error) {
	result, err := c.call(ctx, "registry_readPageWithCount", []interface{}{c.registryAddress, offset, limit})
	if err != nil {
		return nil, 0, err
	}

	var payload struct {
		Count   uint64          `json:"count"`
		Entries json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, 0, fmt.Errorf("decode page with count: %w", err)
	}

	entries, err := DecodeBatch(payload.Entries)
	if err != nil {
		return nil, 0, err
	}
	return entries, payload.Count, nil
}

// TryMulticall executes the calls in one round trip. Per-call failure is
// reported in the result, never as a Go error; only transport-level
// failures surface as errors.
func (c *Client) TryMulticall(ctx context.Context, calls []Call) (MulticallResult, error) {
	encoded := make([]json.RawMessage, 0, len(calls))
	for _, call := range calls {
		encoded = append(encoded, json.RawMessage(call.Data))
	}

	result, err := c.call(ctx, "registry_tryMulticall", []interface{}{c.registryAddress, encoded})
	if err != nil {
		return MulticallResult{}, err
	}

	var payload struct {
		Successes  []bool            `json:"successes"`
		ReturnData []json.RawMessage `json:"returndata"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return MulticallResult{}, fmt.Errorf("decode multicall result: %w", err)
	}
	if len(payload.Successes) != len(calls) || len(payload.ReturnData) != len(calls) {
		return MulticallResult{}, fmt.Errorf("multicall result size mismatch: %d successes for %d calls", len(payload.Successes), len(calls))
	}

	out := MulticallResult{
		Successes:  payload.Successes,
		ReturnData: make([][]byte, len(payload.ReturnData)),
	}
	for i, data := range payload.ReturnData {
		out.ReturnData[i] = []byte(data)
	}
	return out, nil
}
