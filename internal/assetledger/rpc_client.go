package assetledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Ledger node error codes mapped onto package errors.
const (
	codeInsufficientBalance   = -32010
	codeInsufficientAllowance = -32011
)

// RPCClient implements Ledger against a ledger node speaking JSON-RPC 2.0.
// Reads are retried with exponential backoff; transfers are sent exactly once.
type RPCClient struct {
	endpoint    string
	token       string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

var _ Ledger = (*RPCClient)(nil)

// ClientOption configures RPCClient.
type ClientOption func(*RPCClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for reads.
func WithMaxRetries(n int) ClientOption {
	return func(c *RPCClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *RPCClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *RPCClient) {
		c.client = client
	}
}

// NewRPCClient creates a client for the token ledger identified by token
// (contract address or mint) served at endpoint.
func NewRPCClient(endpoint, token string, opts ...ClientOption) *RPCClient {
	c := &RPCClient{
		endpoint:    endpoint,
		token:       token,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error reported by the ledger node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Unwrap maps well-known node codes onto package errors.
func (e *RPCError) Unwrap() error {
	switch e.Code {
	case codeInsufficientBalance:
		return ErrInsufficientBalance
	case codeInsufficientAllowance:
		return ErrInsufficientAllowance
	}
	return nil
}

// call performs a JSON-RPC call. Transport failures are retried with
// exponential backoff only when retry is set; node errors are final.
//
// Calls without retry are writes. A write failing after the request may have
// reached the node is reported as ErrOutcomeUnknown.
func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}, retry bool) error {
	defer func(started time.Time) {
		observability.RecordLedgerCall(method, time.Since(started).Seconds())
	}(time.Now())

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	attempts := 1
	if retry {
		attempts += c.maxRetries
	}

	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = min(time.Duration(float64(delay)*c.backoffMult), c.maxDelay)
		}

		raw, err := c.post(ctx, body)
		if err != nil {
			if ctx.Err() != nil && retry {
				return ctx.Err()
			}
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				lastErr = fmt.Errorf("unmarshal result: %w", err)
				break
			}
		}
		return nil
	}

	if !retry {
		if errors.Is(lastErr, errNotSent) {
			return fmt.Errorf("%s: %w", method, lastErr)
		}
		return fmt.Errorf("%s: %w: %w", method, ErrOutcomeUnknown, lastErr)
	}
	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}

// errNotSent marks failures where the node cannot have processed the request.
var errNotSent = errors.New("request not processed")

// post sends one request and returns the body of a 200 response.
func (c *RPCClient) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", errNotSent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return nil, fmt.Errorf("%w: http request: %w", errNotSent, err)
		}
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: rate limited (429)", errNotSent)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: unexpected status %d: %s", errNotSent, resp.StatusCode, raw)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, raw)
	}
	return raw, nil
}

// transferResult is the raw RPC response for ledger_transfer / ledger_transferFrom.
type transferResult struct {
	TxID string `json:"txId"`
}

// Transfer moves amount from `from` to `to`.
func (c *RPCClient) Transfer(ctx context.Context, from, to domain.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	params := []interface{}{c.token, from.String(), to.String(), amount.String()}
	var result transferResult
	return c.call(ctx, "ledger_transfer", params, &result, false)
}

// TransferFrom moves amount from `from` to `to` on behalf of spender.
func (c *RPCClient) TransferFrom(ctx context.Context, spender, from, to domain.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	params := []interface{}{c.token, spender.String(), from.String(), to.String(), amount.String()}
	var result transferResult
	return c.call(ctx, "ledger_transferFrom", params, &result, false)
}

// BalanceOf returns the balance of owner.
func (c *RPCClient) BalanceOf(ctx context.Context, owner domain.Address) (*big.Int, error) {
	return c.amount(ctx, "ledger_balanceOf", []interface{}{c.token, owner.String()})
}

// Allowance returns spender's remaining allowance over owner's balance.
func (c *RPCClient) Allowance(ctx context.Context, owner, spender domain.Address) (*big.Int, error) {
	return c.amount(ctx, "ledger_allowance", []interface{}{c.token, owner.String(), spender.String()})
}

// amount calls a read method whose result is a decimal string of base units.
func (c *RPCClient) amount(ctx context.Context, method string, params []interface{}) (*big.Int, error) {
	var result string
	if err := c.call(ctx, method, params, &result, true); err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(result, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid amount %q", method, result)
	}
	return v, nil
}
