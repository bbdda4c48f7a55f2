package rpc

import (
	"context"
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingvault/internal/storage"
	"github.com/Klingon-tech/klingvault/internal/token"
	"github.com/Klingon-tech/klingvault/pkg/call"
)

// ledgerNS resolves a token symbol to its namespace.
func (s *Server) ledgerNS(symbol string) ([]byte, *Error) {
	ns, ok := s.tokens[symbol]
	if !ok {
		known := make([]string, 0, len(s.tokens))
		for sym := range s.tokens {
			known = append(known, sym)
		}
		sort.Strings(known)
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("unknown token %q (have %v)", symbol, known)}
	}
	return ns, nil
}

// readLedger runs fn on a read view of a token ledger. Vault commits are
// excluded while fn runs.
func (s *Server) readLedger(symbol string, fn func(l *token.Ledger) error) *Error {
	ns, rpcErr := s.ledgerNS(symbol)
	if rpcErr != nil {
		return rpcErr
	}
	err := s.vault.View(func(db storage.DB) error {
		return fn(token.Open(storage.NewPrefixDB(db, ns)))
	})
	if err != nil {
		return toError(err)
	}
	return nil
}

// ── Token reads ─────────────────────────────────────────────────────────

func (s *Server) handleTokenInfo(_ context.Context, req *Request) (interface{}, *Error) {
	var params TokenParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	var res TokenInfoResult
	rpcErr := s.readLedger(params.Token, func(l *token.Ledger) error {
		meta, err := l.Metadata()
		if err != nil {
			return err
		}
		res.Metadata = *meta
		if res.TotalSupply, err = l.TotalSupply(); err != nil {
			return err
		}
		res.Paused, err = l.Paused()
		return err
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &res, nil
}

func (s *Server) handleTokenBalanceOf(ctx context.Context, req *Request) (interface{}, *Error) {
	var params TokenParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddress(params.Address, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	res := &TokenAmountResult{Token: params.Token}
	rpcErr = s.readLedger(params.Token, func(l *token.Ledger) error {
		var err error
		res.Amount, err = l.BalanceOf(ctx, addr)
		return err
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return res, nil
}

func (s *Server) handleTokenAllowance(_ context.Context, req *Request) (interface{}, *Error) {
	var params TokenParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	owner, rpcErr := parseAddress(params.Owner, "owner")
	if rpcErr != nil {
		return nil, rpcErr
	}
	spender, rpcErr := parseAddress(params.Spender, "spender")
	if rpcErr != nil {
		return nil, rpcErr
	}
	res := &TokenAmountResult{Token: params.Token}
	rpcErr = s.readLedger(params.Token, func(l *token.Ledger) error {
		var err error
		res.Amount, err = l.Allowance(owner, spender)
		return err
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return res, nil
}

// ── Token calls ─────────────────────────────────────────────────────────

// tokenCall decodes TokenArgs and runs fn on the named ledger inside a
// vault-serialized overlay.
func (s *Server) tokenCall(ctx context.Context, env *call.Envelope, fn func(ctx context.Context, l *token.Ledger, a *TokenArgs) error) (interface{}, error) {
	var a TokenArgs
	if err := decodeArgs(env, &a); err != nil {
		return nil, err
	}
	if a.Amount == nil {
		return nil, invalidParams("amount is required")
	}
	ns, rpcErr := s.ledgerNS(a.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	err := s.vault.Atomic(ctx, env.Method, func(ctx context.Context, db storage.DB) error {
		return fn(ctx, token.Open(storage.NewPrefixDB(db, ns)), &a)
	})
	if err != nil {
		return nil, err
	}
	res := ack(env)
	res.Amount = a.Amount
	return res, nil
}

func (s *Server) callTokenApprove(ctx context.Context, env *call.Envelope) (interface{}, error) {
	return s.tokenCall(ctx, env, func(ctx context.Context, l *token.Ledger, a *TokenArgs) error {
		return l.Approve(ctx, env.From, a.Spender, a.Amount)
	})
}

func (s *Server) callTokenTransfer(ctx context.Context, env *call.Envelope) (interface{}, error) {
	return s.tokenCall(ctx, env, func(ctx context.Context, l *token.Ledger, a *TokenArgs) error {
		return l.Transfer(ctx, env.From, a.To, a.Amount)
	})
}

func (s *Server) callTokenMint(ctx context.Context, env *call.Envelope) (interface{}, error) {
	return s.tokenCall(ctx, env, func(ctx context.Context, l *token.Ledger, a *TokenArgs) error {
		return l.Mint(ctx, env.From, a.To, a.Amount)
	})
}

func (s *Server) callTokenBurn(ctx context.Context, env *call.Envelope) (interface{}, error) {
	return s.tokenCall(ctx, env, func(ctx context.Context, l *token.Ledger, a *TokenArgs) error {
		return l.BurnSelf(ctx, env.From, a.Amount)
	})
}

// ── Accounts ────────────────────────────────────────────────────────────

func (s *Server) handleAccountGetNonce(_ context.Context, req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddress(params.Address, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	n, err := s.nonces.Get(addr)
	if err != nil {
		return nil, toError(err)
	}
	return &NonceResult{Address: addr, Nonce: n, Next: n + 1, ChainID: s.chainID}, nil
}
