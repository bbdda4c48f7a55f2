// Package rpcclient provides a JSON-RPC 2.0 client for klingvault nodes.
package rpcclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Klingon-tech/klingvault/internal/rpc"
	"github.com/Klingon-tech/klingvault/internal/vault"
	"github.com/Klingon-tech/klingvault/pkg/call"
	"github.com/Klingon-tech/klingvault/pkg/crypto"
	"github.com/Klingon-tech/klingvault/pkg/types"
	"github.com/holiman/uint256"
)

// ErrWrongChain is returned by Send when the node serves a different chain
// than the one pinned with SetChainID.
var ErrWrongChain = errors.New("node serves another chain")

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	endpoint string
	http     *http.Client
	chainID  string // empty = trust the node
}

// New creates a new RPC client targeting the given endpoint URL.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, 10*time.Second)
}

// NewWithTimeout creates a new RPC client with a custom HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCError is returned when the server responds with an error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call invokes a JSON-RPC method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (c *Client) Call(method string, params, result interface{}) error {
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.http.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}

	return nil
}

// SetChainID pins the chain calls are signed for. Send refuses to sign
// for a node that reports another chain.
func (c *Client) SetChainID(id string) {
	c.chainID = id
}

// Send signs args for method with key, using the next nonce and the chain
// the node reports for the key's address, and returns the call
// acknowledgement.
func (c *Client) Send(key crypto.Signer, method string, args interface{}) (*rpc.CallResult, error) {
	from := crypto.AddressFromPubKey(key.PublicKey())
	n, err := c.Nonce(from)
	if err != nil {
		return nil, err
	}
	if c.chainID != "" && n.ChainID != c.chainID {
		return nil, fmt.Errorf("%w: %q, expected %q", ErrWrongChain, n.ChainID, c.chainID)
	}
	env, err := call.New(n.ChainID, method, args, n.Next)
	if err != nil {
		return nil, err
	}
	if err := env.Sign(key); err != nil {
		return nil, err
	}
	var res rpc.CallResult
	if err := c.Call(method, env, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Nonce returns the account's last accepted and next call nonce.
func (c *Client) Nonce(addr types.Address) (*rpc.NonceResult, error) {
	var res rpc.NonceResult
	if err := c.Call("account_getNonce", rpc.AddressParam{Address: addr.String()}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Stats returns vault_getStats.
func (c *Client) Stats() (*vault.Stats, error) {
	var res vault.Stats
	if err := c.Call("vault_getStats", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Position returns vault_getPosition for addr.
func (c *Client) Position(addr types.Address) (*vault.PositionView, error) {
	var res vault.PositionView
	if err := c.Call("vault_getPosition", rpc.AddressParam{Address: addr.String()}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PendingReward returns vault_pendingReward for addr.
func (c *Client) PendingReward(addr types.Address) (*uint256.Int, error) {
	var res rpc.PendingResult
	if err := c.Call("vault_pendingReward", rpc.AddressParam{Address: addr.String()}, &res); err != nil {
		return nil, err
	}
	return res.Pending, nil
}

// Events returns up to limit vault events starting at from.
func (c *Client) Events(from uint64, limit int) ([]vault.Event, error) {
	var res []vault.Event
	if err := c.Call("vault_events", rpc.EventsParam{From: from, Limit: limit}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Audit returns vault_audit.
func (c *Client) Audit() (*vault.AuditReport, error) {
	var res vault.AuditReport
	if err := c.Call("vault_audit", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TokenBalance returns an account's balance on the ledger named by symbol.
func (c *Client) TokenBalance(symbol string, addr types.Address) (*uint256.Int, error) {
	var res rpc.TokenAmountResult
	if err := c.Call("token_balanceOf", rpc.TokenParam{Token: symbol, Address: addr.String()}, &res); err != nil {
		return nil, err
	}
	return res.Amount, nil
}

// TokenInfo returns token_info for symbol.
func (c *Client) TokenInfo(symbol string) (*rpc.TokenInfoResult, error) {
	var res rpc.TokenInfoResult
	if err := c.Call("token_info", rpc.TokenParam{Token: symbol}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
