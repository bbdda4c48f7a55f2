package rpc

import (
	"context"
	"errors"

	"github.com/Klingon-tech/klingvault/internal/vault"
	"github.com/Klingon-tech/klingvault/pkg/call"
)

// maxEventsPage caps vault_events.
const maxEventsPage = 1000

// callFunc executes a verified envelope.
type callFunc func(ctx context.Context, env *call.Envelope) (interface{}, error)

// signed verifies the envelope carried in req, consumes its nonce and runs
// fn. The envelope method must match the JSON-RPC method.
func (s *Server) signed(ctx context.Context, req *Request, fn callFunc) (interface{}, *Error) {
	var env call.Envelope
	if err := parseParams(req, &env); err != nil {
		return nil, err
	}
	if env.Method != req.Method {
		return nil, invalidParams("envelope method %q does not match %q", env.Method, req.Method)
	}
	if err := env.Verify(s.chainID); err != nil {
		return nil, &Error{Code: CodeInvalidSignature, Message: err.Error()}
	}
	if err := s.nonces.Consume(env.From, env.Nonce); err != nil {
		if errors.Is(err, ErrStaleNonce) {
			return nil, &Error{Code: CodeBadNonce, Message: err.Error()}
		}
		return nil, toError(err)
	}

	res, err := fn(ctx, &env)
	if err != nil {
		return nil, toError(err)
	}
	return res, nil
}

func ack(env *call.Envelope) *CallResult {
	return &CallResult{Method: env.Method, From: env.From, Nonce: env.Nonce}
}

func decodeArgs(env *call.Envelope, v interface{}) error {
	if err := env.DecodeArgs(v); err != nil {
		return invalidParams("%v", err)
	}
	return nil
}

// ── Vault reads ─────────────────────────────────────────────────────────

func (s *Server) handleVaultGetStats(ctx context.Context, _ *Request) (interface{}, *Error) {
	stats, err := s.vault.GetVaultStats(ctx)
	if err != nil {
		return nil, toError(err)
	}
	return stats, nil
}

func (s *Server) handleVaultGetPosition(ctx context.Context, req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddress(params.Address, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	pos, err := s.vault.GetPosition(ctx, addr)
	if err != nil {
		return nil, toError(err)
	}
	return pos, nil
}

func (s *Server) handleVaultPendingReward(ctx context.Context, req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddress(params.Address, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	pending, err := s.vault.PendingReward(ctx, addr)
	if err != nil {
		return nil, toError(err)
	}
	return &PendingResult{Address: addr, Pending: pending}, nil
}

func (s *Server) handleVaultHasRole(ctx context.Context, req *Request) (interface{}, *Error) {
	var params RoleParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	role, err := vault.ParseRole(params.Role)
	if err != nil {
		return nil, toError(err)
	}
	addr, rpcErr := parseAddress(params.Address, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	ok, err := s.vault.HasRole(ctx, role, addr)
	if err != nil {
		return nil, toError(err)
	}
	return &HasRoleResult{Role: string(role), Address: addr, HasRole: ok}, nil
}

func (s *Server) handleVaultRoleMembers(ctx context.Context, req *Request) (interface{}, *Error) {
	var params RoleParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	role, err := vault.ParseRole(params.Role)
	if err != nil {
		return nil, toError(err)
	}
	members, err := s.vault.RoleMembers(ctx, role)
	if err != nil {
		return nil, toError(err)
	}
	return &RoleMembersResult{Role: string(role), Members: members}, nil
}

func (s *Server) handleVaultEvents(ctx context.Context, req *Request) (interface{}, *Error) {
	params := EventsParam{From: 1, Limit: 100}
	if len(req.Params) > 0 {
		if err := parseParams(req, &params); err != nil {
			return nil, err
		}
	}
	if params.Limit <= 0 || params.Limit > maxEventsPage {
		params.Limit = maxEventsPage
	}
	events, err := s.vault.Events(ctx, params.From, params.Limit)
	if err != nil {
		return nil, toError(err)
	}
	if events == nil {
		events = []vault.Event{}
	}
	return events, nil
}

func (s *Server) handleVaultAudit(ctx context.Context, _ *Request) (interface{}, *Error) {
	report, err := s.vault.Audit(ctx)
	if err != nil {
		return nil, toError(err)
	}
	return report, nil
}

// ── Vault user calls ────────────────────────────────────────────────────

func (s *Server) callDeposit(ctx context.Context, env *call.Envelope) (interface{}, error) {
	var a AmountArgs
	if err := decodeArgs(env, &a); err != nil {
		return nil, err
	}
	if err := s.vault.Deposit(ctx, env.From, a.Amount); err != nil {
		return nil, err
	}
	res := ack(env)
	res.Amount = a.Amount
	return res, nil
}

func (s *Server) callWithdraw(ctx context.Context, env *call.Envelope) (interface{}, error) {
	var a AmountArgs
	if err := decodeArgs(env, &a); err != nil {
		return nil, err
	}
	if err := s.vault.Withdraw(ctx, env.From, a.Amount); err != nil {
		return nil, err
	}
	res := ack(env)
	res.Amount = a.Amount
	return res, nil
}

func (s *Server) callClaim(ctx context.Context, env *call.Envelope) (interface{}, error) {
	paid, err := s.vault.Claim(ctx, env.From)
	if err != nil {
		return nil, err
	}
	res := ack(env)
	res.Reward = paid
	return res, nil
}

func (s *Server) callExit(ctx context.Context, env *call.Envelope) (interface{}, error) {
	out, err := s.vault.Exit(ctx, env.From)
	if err != nil {
		return nil, err
	}
	res := ack(env)
	res.Amount = out.Amount
	res.Reward = out.Reward
	return res, nil
}

func (s *Server) callEmergencyWithdraw(ctx context.Context, env *call.Envelope) (interface{}, error) {
	out, err := s.vault.EmergencyWithdraw(ctx, env.From)
	if err != nil {
		return nil, err
	}
	res := ack(env)
	res.Amount = out.Amount
	res.Fee = out.Fee
	res.Payout = out.Payout
	return res, nil
}

// ── Vault admin calls ───────────────────────────────────────────────────

func (s *Server) callFundRewards(ctx context.Context, env *call.Envelope) (interface{}, error) {
	var a FundArgs
	if err := decodeArgs(env, &a); err != nil {
		return nil, err
	}
	if err := s.vault.FundRewards(ctx, env.From, a.Amount, a.Duration); err != nil {
		return nil, err
	}
	res := ack(env)
	res.Amount = a.Amount
	return res, nil
}

func (s *Server) callSetRewardRate(ctx context.Context, env *call.Envelope) (interface{}, error) {
	var a RateArgs
	if err := decodeArgs(env, &a); err != nil {
		return nil, err
	}
	if err := s.vault.SetRewardRate(ctx, env.From, a.Rate, a.Duration); err != nil {
		return nil, err
	}
	return ack(env), nil
}

func (s *Server) callSetLockPeriod(ctx context.Context, env *call.Envelope) (interface{}, error) {
	var a LockArgs
	if err := decodeArgs(env, &a); err != nil {
		return nil, err
	}
	if err := s.vault.SetLockPeriod(ctx, env.From, a.Seconds); err != nil {
		return nil, err
	}
	return ack(env), nil
}

func (s *Server) callSetStakeLimits(ctx context.Context, env *call.Envelope) (interface{}, error) {
	var a LimitsArgs
	if err := decodeArgs(env, &a); err != nil {
		return nil, err
	}
	if err := s.vault.SetStakeLimits(ctx, env.From, a.MinStake, a.MaxStake); err != nil {
		return nil, err
	}
	return ack(env), nil
}

func (s *Server) callSetEmergencyFee(ctx context.Context, env *call.Envelope) (interface{}, error) {
	var a FeeArgs
	if err := decodeArgs(env, &a); err != nil {
		return nil, err
	}
	if err := s.vault.SetEmergencyWithdrawFee(ctx, env.From, a.FeeBps); err != nil {
		return nil, err
	}
	return ack(env), nil
}

func (s *Server) callPause(ctx context.Context, env *call.Envelope) (interface{}, error) {
	if err := s.vault.Pause(ctx, env.From); err != nil {
		return nil, err
	}
	return ack(env), nil
}

func (s *Server) callUnpause(ctx context.Context, env *call.Envelope) (interface{}, error) {
	if err := s.vault.Unpause(ctx, env.From); err != nil {
		return nil, err
	}
	return ack(env), nil
}

func (s *Server) callGrantRole(ctx context.Context, env *call.Envelope) (interface{}, error) {
	var a RoleArgs
	if err := decodeArgs(env, &a); err != nil {
		return nil, err
	}
	if err := s.vault.GrantRole(ctx, env.From, vault.Role(a.Role), a.Account); err != nil {
		return nil, err
	}
	return ack(env), nil
}

func (s *Server) callRevokeRole(ctx context.Context, env *call.Envelope) (interface{}, error) {
	var a RoleArgs
	if err := decodeArgs(env, &a); err != nil {
		return nil, err
	}
	if err := s.vault.RevokeRole(ctx, env.From, vault.Role(a.Role), a.Account); err != nil {
		return nil, err
	}
	return ack(env), nil
}

func (s *Server) callCollectFees(ctx context.Context, env *call.Envelope) (interface{}, error) {
	var a CollectArgs
	if err := decodeArgs(env, &a); err != nil {
		return nil, err
	}
	paid, err := s.vault.CollectFees(ctx, env.From, a.To)
	if err != nil {
		return nil, err
	}
	res := ack(env)
	res.Amount = paid
	return res, nil
}
