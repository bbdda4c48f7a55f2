package vault

import (
	"context"
	"testing"
	"time"

	"github.com/Klingon-tech/klingvault/internal/storage"
	"github.com/Klingon-tech/klingvault/internal/token"
	"github.com/Klingon-tech/klingvault/pkg/types"
	"github.com/holiman/uint256"
)

const day = 24 * time.Hour

var (
	adminAddr = types.Address{0xad}
	alice     = types.Address{0xa1}
	bob       = types.Address{0xb0}
	mallory   = types.Address{0x66}

	stakeNS  = []byte("tok/sUSD/")
	rewardNS = []byte("tok/RWD/")
)

// units returns n whole tokens in 18-decimal base units.
func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), Precision)
}

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func ledgerOpener(ns []byte) TokenOpener {
	return func(db storage.DB) Token {
		return token.Open(storage.NewPrefixDB(db, ns))
	}
}

type env struct {
	t     *testing.T
	ctx   context.Context
	db    storage.DB
	clock *testClock
	v     *Vault
}

func defaultParams() Params {
	return Params{
		LockPeriod:      uint64((7 * day).Seconds()),
		MinStake:        units(1),
		MaxStake:        units(1_000_000),
		EmergencyFeeBps: 1000,
	}
}

// newEnv builds a vault over fresh sUSD/RWD ledgers in one MemoryDB.
func newEnv(t *testing.T, p Params) *env {
	t.Helper()
	return newEnvWith(t, storage.NewMemory(), p, nil, nil)
}

func newEnvWith(t *testing.T, db storage.DB, p Params, stake, reward TokenOpener) *env {
	t.Helper()
	ctx := context.Background()
	if _, err := token.Init(storage.NewPrefixDB(db, stakeNS),
		token.Metadata{Name: "StableUSD", Symbol: "sUSD", Decimals: 18}, adminAddr); err != nil {
		t.Fatalf("init sUSD: %v", err)
	}
	if _, err := token.Init(storage.NewPrefixDB(db, rewardNS),
		token.Metadata{Name: "Reward Token", Symbol: "RWD", Decimals: 18}, adminAddr); err != nil {
		t.Fatalf("init RWD: %v", err)
	}
	if stake == nil {
		stake = ledgerOpener(stakeNS)
	}
	if reward == nil {
		reward = ledgerOpener(rewardNS)
	}
	clock := &testClock{t: time.Unix(1_700_000_000, 0)}
	v, err := New(Config{DB: db, Stake: stake, Reward: reward, Clock: clock})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := v.Initialize(ctx, adminAddr, p); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	return &env{t: t, ctx: ctx, db: db, clock: clock, v: v}
}

func (e *env) stakeLedger() *token.Ledger  { return token.Open(storage.NewPrefixDB(e.db, stakeNS)) }
func (e *env) rewardLedger() *token.Ledger { return token.Open(storage.NewPrefixDB(e.db, rewardNS)) }

// giveStake mints stake to who and approves the vault for all of it.
func (e *env) giveStake(who types.Address, amount *uint256.Int) {
	e.t.Helper()
	l := e.stakeLedger()
	if err := l.Mint(e.ctx, adminAddr, who, amount); err != nil {
		e.t.Fatalf("mint stake: %v", err)
	}
	if err := l.Approve(e.ctx, who, e.v.Address(), new(uint256.Int).SetAllOne()); err != nil {
		e.t.Fatalf("approve stake: %v", err)
	}
}

// fund mints reward to the admin and funds the vault with it.
func (e *env) fund(amount *uint256.Int, d time.Duration) {
	e.t.Helper()
	l := e.rewardLedger()
	if err := l.Mint(e.ctx, adminAddr, adminAddr, amount); err != nil {
		e.t.Fatalf("mint reward: %v", err)
	}
	if err := l.Approve(e.ctx, adminAddr, e.v.Address(), amount); err != nil {
		e.t.Fatalf("approve reward: %v", err)
	}
	if err := e.v.FundRewards(e.ctx, adminAddr, amount, uint64(d.Seconds())); err != nil {
		e.t.Fatalf("FundRewards() error: %v", err)
	}
}

func (e *env) deposit(who types.Address, amount *uint256.Int) {
	e.t.Helper()
	if err := e.v.Deposit(e.ctx, who, amount); err != nil {
		e.t.Fatalf("Deposit(%s) error: %v", amount.Dec(), err)
	}
}

func (e *env) pending(who types.Address) *uint256.Int {
	e.t.Helper()
	p, err := e.v.PendingReward(e.ctx, who)
	if err != nil {
		e.t.Fatalf("PendingReward() error: %v", err)
	}
	return p
}

func (e *env) stats() *Stats {
	e.t.Helper()
	s, err := e.v.GetVaultStats(e.ctx)
	if err != nil {
		e.t.Fatalf("GetVaultStats() error: %v", err)
	}
	return s
}

func (e *env) stakeBalance(who types.Address) *uint256.Int {
	e.t.Helper()
	b, err := e.stakeLedger().BalanceOf(e.ctx, who)
	if err != nil {
		e.t.Fatal(err)
	}
	return b
}

func (e *env) rewardBalance(who types.Address) *uint256.Int {
	e.t.Helper()
	b, err := e.rewardLedger().BalanceOf(e.ctx, who)
	if err != nil {
		e.t.Fatal(err)
	}
	return b
}

func (e *env) mustAudit() *AuditReport {
	e.t.Helper()
	r, err := e.v.Audit(e.ctx)
	if err != nil {
		e.t.Fatalf("Audit() error: %v", err)
	}
	if err := r.Err(); err != nil {
		e.t.Fatalf("audit inconsistent: %v", err)
	}
	return r
}

// approx checks |got-want| <= tol base units.
func approx(t *testing.T, what string, got, want *uint256.Int, tol uint64) {
	t.Helper()
	diff := new(uint256.Int)
	if got.Gt(want) {
		diff.Sub(got, want)
	} else {
		diff.Sub(want, got)
	}
	if diff.Gt(uint256.NewInt(tol)) {
		t.Errorf("%s = %s, want ~%s (off by %s)", what, got.Dec(), want.Dec(), diff.Dec())
	}
}
