package rpc

import (
	"encoding/json"

	"github.com/Klingon-tech/klingvault/internal/token"
	"github.com/Klingon-tech/klingvault/pkg/types"
	"github.com/holiman/uint256"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000

	// Vault error kinds.
	CodeValidation   = -32010
	CodeState        = -32011
	CodeUnauthorized = -32012
	CodeCustody      = -32013

	// Envelope rejections.
	CodeInvalidSignature = -32020
	CodeBadNonce         = -32021
	CodeTokenRule        = -32030
)

// Request is a JSON-RPC 2.0 request. Params are kept raw so signed call
// arguments reach the verifier byte for byte.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// ── Read params ─────────────────────────────────────────────────────────

// AddressParam is used by endpoints that take a single account.
type AddressParam struct {
	Address string `json:"address"`
}

// RoleParam is used by vault_hasRole and vault_roleMembers.
type RoleParam struct {
	Role    string `json:"role"`
	Address string `json:"address,omitempty"`
}

// EventsParam is used by vault_events.
type EventsParam struct {
	From  uint64 `json:"from"`
	Limit int    `json:"limit"`
}

// TokenParam selects a ledger by symbol.
type TokenParam struct {
	Token   string `json:"token"`
	Address string `json:"address,omitempty"`
	Owner   string `json:"owner,omitempty"`
	Spender string `json:"spender,omitempty"`
}

// ── Signed call arguments ───────────────────────────────────────────────

// AmountArgs is used by vault_deposit and vault_withdraw.
type AmountArgs struct {
	Amount *uint256.Int `json:"amount"`
}

// EmptyArgs is used by calls without arguments.
type EmptyArgs struct{}

// FundArgs is used by vault_fundRewards.
type FundArgs struct {
	Amount   *uint256.Int `json:"amount"`
	Duration uint64       `json:"duration"`
}

// RateArgs is used by vault_setRewardRate.
type RateArgs struct {
	Rate     *uint256.Int `json:"rate"`
	Duration uint64       `json:"duration"`
}

// LockArgs is used by vault_setLockPeriod.
type LockArgs struct {
	Seconds uint64 `json:"seconds"`
}

// LimitsArgs is used by vault_setStakeLimits.
type LimitsArgs struct {
	MinStake *uint256.Int `json:"min_stake"`
	MaxStake *uint256.Int `json:"max_stake"`
}

// FeeArgs is used by vault_setEmergencyFee.
type FeeArgs struct {
	FeeBps uint16 `json:"fee_bps"`
}

// RoleArgs is used by vault_grantRole and vault_revokeRole.
type RoleArgs struct {
	Role    string        `json:"role"`
	Account types.Address `json:"account"`
}

// CollectArgs is used by vault_collectFees.
type CollectArgs struct {
	To types.Address `json:"to"`
}

// TokenArgs is used by the signed token_* calls. Spender is read by
// token_approve, To by token_transfer and token_mint.
type TokenArgs struct {
	Token   string        `json:"token"`
	To      types.Address `json:"to,omitempty"`
	Spender types.Address `json:"spender,omitempty"`
	Amount  *uint256.Int  `json:"amount"`
}

// ── Results ─────────────────────────────────────────────────────────────

// CallResult acknowledges a committed signed call. The amount fields are
// set by the calls that move tokens.
type CallResult struct {
	Method string        `json:"method"`
	From   types.Address `json:"from"`
	Nonce  uint64        `json:"nonce"`
	Amount *uint256.Int  `json:"amount,omitempty"`
	Reward *uint256.Int  `json:"reward,omitempty"`
	Fee    *uint256.Int  `json:"fee,omitempty"`
	Payout *uint256.Int  `json:"payout,omitempty"`
}

// PendingResult is returned by vault_pendingReward.
type PendingResult struct {
	Address types.Address `json:"address"`
	Pending *uint256.Int  `json:"pending"`
}

// HasRoleResult is returned by vault_hasRole.
type HasRoleResult struct {
	Role    string        `json:"role"`
	Address types.Address `json:"address"`
	HasRole bool          `json:"has_role"`
}

// RoleMembersResult is returned by vault_roleMembers.
type RoleMembersResult struct {
	Role    string          `json:"role"`
	Members []types.Address `json:"members"`
}

// TokenInfoResult is returned by token_info.
type TokenInfoResult struct {
	token.Metadata
	TotalSupply *uint256.Int `json:"total_supply"`
	Paused      bool         `json:"paused"`
}

// TokenAmountResult is returned by token_balanceOf and token_allowance.
type TokenAmountResult struct {
	Token  string       `json:"token"`
	Amount *uint256.Int `json:"amount"`
}

// NonceResult is returned by account_getNonce. Next is the smallest nonce
// the node will accept and ChainID the chain calls must be signed for.
type NonceResult struct {
	Address types.Address `json:"address"`
	Nonce   uint64        `json:"nonce"`
	Next    uint64        `json:"next"`
	ChainID string        `json:"chain_id"`
}
