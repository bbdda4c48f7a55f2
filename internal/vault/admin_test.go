package vault

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Klingon-tech/klingvault/internal/storage"
	"github.com/Klingon-tech/klingvault/pkg/types"
	"github.com/holiman/uint256"
)

func TestAdmin_RequiresRole(t *testing.T) {
	e := newEnv(t, defaultParams())
	calls := map[string]func() error{
		"FundRewards":   func() error { return e.v.FundRewards(e.ctx, mallory, units(1), 10) },
		"SetRewardRate": func() error { return e.v.SetRewardRate(e.ctx, mallory, units(1), 10) },
		"SetLockPeriod": func() error { return e.v.SetLockPeriod(e.ctx, mallory, 10) },
		"SetStakeLimits": func() error {
			return e.v.SetStakeLimits(e.ctx, mallory, units(1), units(2))
		},
		"SetEmergencyWithdrawFee": func() error { return e.v.SetEmergencyWithdrawFee(e.ctx, mallory, 10) },
		"Pause":                   func() error { return e.v.Pause(e.ctx, mallory) },
		"GrantRole":               func() error { return e.v.GrantRole(e.ctx, mallory, AdminRole, mallory) },
		"RevokeRole":              func() error { return e.v.RevokeRole(e.ctx, mallory, AdminRole, adminAddr) },
		"CollectFees": func() error {
			_, err := e.v.CollectFees(e.ctx, mallory, mallory)
			return err
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("err = %v, want ErrUnauthorized", err)
			}
			if KindOf(err) != KindAuthorization {
				t.Errorf("kind = %v", KindOf(err))
			}
		})
	}
}

func TestAdmin_Bounds(t *testing.T) {
	e := newEnv(t, defaultParams())

	if err := e.v.SetEmergencyWithdrawFee(e.ctx, adminAddr, 5001); !errors.Is(err, ErrFeeOutOfBounds) {
		t.Errorf("fee 5001 err = %v", err)
	}
	if err := e.v.SetEmergencyWithdrawFee(e.ctx, adminAddr, 5000); err != nil {
		t.Errorf("fee 5000 err = %v", err)
	}
	if err := e.v.SetLockPeriod(e.ctx, adminAddr, MaxLockPeriod+1); !errors.Is(err, ErrLockOutOfBounds) {
		t.Errorf("lock too long err = %v", err)
	}
	if err := e.v.SetLockPeriod(e.ctx, adminAddr, 0); err != nil {
		t.Errorf("zero lock err = %v", err)
	}
	if err := e.v.SetStakeLimits(e.ctx, adminAddr, units(5), units(4)); !errors.Is(err, ErrInvalidLimits) {
		t.Errorf("min > max err = %v", err)
	}
	if err := e.v.SetStakeLimits(e.ctx, adminAddr, units(0), units(0)); !errors.Is(err, ErrInvalidLimits) {
		t.Errorf("zero max err = %v", err)
	}
	if err := e.v.SetStakeLimits(e.ctx, adminAddr, units(2), units(50)); err != nil {
		t.Fatalf("SetStakeLimits() error: %v", err)
	}

	s := e.stats()
	if s.EmergencyFeeBps != 5000 || s.LockPeriod != 0 || !s.MinStake.Eq(units(2)) || !s.MaxStake.Eq(units(50)) {
		t.Errorf("stats after setters = %+v", s)
	}
}

func TestParams_Validate(t *testing.T) {
	good := defaultParams()
	if err := good.Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}
	bad := []Params{
		{LockPeriod: MaxLockPeriod + 1, MinStake: units(1), MaxStake: units(2)},
		{EmergencyFeeBps: 6000, MinStake: units(1), MaxStake: units(2)},
		{MinStake: units(3), MaxStake: units(2)},
		{MinStake: units(1)},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("params %d accepted", i)
		}
	}
}

func TestRoles_GrantRevoke(t *testing.T) {
	e := newEnv(t, defaultParams())

	if err := e.v.GrantRole(e.ctx, adminAddr, TreasurerRole, bob); err != nil {
		t.Fatal(err)
	}
	if ok, _ := e.v.HasRole(e.ctx, TreasurerRole, bob); !ok {
		t.Fatal("bob should be treasurer")
	}
	members, _ := e.v.RoleMembers(e.ctx, TreasurerRole)
	if len(members) != 2 {
		t.Errorf("treasurers = %v, want admin and bob", members)
	}

	// Bob can now fund but not set parameters.
	e.rewardLedger().Mint(e.ctx, adminAddr, bob, units(10))
	e.rewardLedger().Approve(e.ctx, bob, e.v.Address(), units(10))
	if err := e.v.FundRewards(e.ctx, bob, units(10), 100); err != nil {
		t.Errorf("FundRewards() by treasurer err = %v", err)
	}
	if err := e.v.SetLockPeriod(e.ctx, bob, 1); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("SetLockPeriod() by treasurer err = %v", err)
	}

	seq := e.stats().EventSeq
	if err := e.v.GrantRole(e.ctx, adminAddr, TreasurerRole, bob); err != nil {
		t.Errorf("re-grant err = %v", err)
	}
	if e.stats().EventSeq != seq {
		t.Error("re-grant emitted an event")
	}

	if err := e.v.RevokeRole(e.ctx, adminAddr, TreasurerRole, bob); err != nil {
		t.Fatal(err)
	}
	if ok, _ := e.v.HasRole(e.ctx, TreasurerRole, bob); ok {
		t.Error("bob still treasurer after revoke")
	}
	if err := e.v.GrantRole(e.ctx, adminAddr, Role("owner"), bob); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("unknown role err = %v", err)
	}
	if err := e.v.GrantRole(e.ctx, adminAddr, PauserRole, types.Address{}); !errors.Is(err, ErrZeroAddress) {
		t.Errorf("zero address err = %v", err)
	}
}

func TestFundRewards_RequiresExactCustodyIncrease(t *testing.T) {
	e := newEnv(t, defaultParams())
	// No approval: the pull fails and the schedule is not changed.
	e.rewardLedger().Mint(e.ctx, adminAddr, adminAddr, units(10))
	err := e.v.FundRewards(e.ctx, adminAddr, units(10), 100)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("FundRewards() without approval err = %v", err)
	}
	if s := e.stats(); !s.RewardRate.IsZero() || s.RewardEndTime != 0 {
		t.Errorf("schedule changed by failed funding: %+v", s)
	}

	e.fund(units(100), 10*day)
	s := e.stats()
	if !s.RewardCustody.Eq(units(100)) {
		t.Errorf("reward custody = %s, want 100", s.RewardCustody.Dec())
	}
	if s.RewardEndTime != uint64(e.clock.t.Unix())+uint64((10*day).Seconds()) {
		t.Errorf("end time = %d", s.RewardEndTime)
	}
}

func TestCollectFees(t *testing.T) {
	e := newEnv(t, defaultParams())
	e.giveStake(alice, units(100))
	e.deposit(alice, units(100))

	if _, err := e.v.CollectFees(e.ctx, adminAddr, adminAddr); !errors.Is(err, ErrNoFees) {
		t.Fatalf("CollectFees() with none err = %v", err)
	}
	if _, err := e.v.EmergencyWithdraw(e.ctx, alice); err != nil {
		t.Fatal(err)
	}
	paid, err := e.v.CollectFees(e.ctx, adminAddr, bob)
	if err != nil {
		t.Fatal(err)
	}
	if !paid.Eq(units(10)) || !e.stakeBalance(bob).Eq(units(10)) {
		t.Errorf("paid %s, bob has %s", paid.Dec(), e.stakeBalance(bob).Dec())
	}
	if s := e.stats(); !s.CollectedFees.IsZero() || !s.StakeCustody.IsZero() {
		t.Errorf("after collect: fees %s custody %s", s.CollectedFees.Dec(), s.StakeCustody.Dec())
	}
	e.mustAudit()
}

func TestEvents_Sequence(t *testing.T) {
	e := newEnv(t, defaultParams())
	e.giveStake(alice, units(5))
	e.deposit(alice, units(5))
	e.v.Pause(e.ctx, adminAddr)

	evs, err := e.v.Events(e.ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Initialized, three RoleGranted, Deposit, Paused.
	wantTypes := []EventType{EventInitialized, EventRoleGranted, EventRoleGranted, EventRoleGranted, EventDeposit, EventPaused}
	if len(evs) != len(wantTypes) {
		t.Fatalf("got %d events, want %d: %+v", len(evs), len(wantTypes), evs)
	}
	seen := map[string]bool{}
	for i, ev := range evs {
		if ev.Type != wantTypes[i] {
			t.Errorf("event %d type = %s, want %s", i, ev.Type, wantTypes[i])
		}
		if ev.Seq != uint64(i+1) {
			t.Errorf("event %d seq = %d", i, ev.Seq)
		}
		if ev.ID == "" || seen[ev.ID] {
			t.Errorf("event %d id %q missing or duplicated", i, ev.ID)
		}
		seen[ev.ID] = true
	}
	if !evs[4].Amount.Eq(units(5)) || evs[4].Caller != alice {
		t.Errorf("deposit event = %+v", evs[4])
	}

	page, _ := e.v.Events(e.ctx, 5, 1)
	if len(page) != 1 || page[0].Type != EventDeposit {
		t.Errorf("Events(5, 1) = %+v", page)
	}
}

// callbackToken wraps a ledger and calls hook after every outbound transfer.
type callbackToken struct {
	Token
	hook func(ctx context.Context)
}

func (c *callbackToken) Transfer(ctx context.Context, from, to types.Address, amount *uint256.Int) error {
	if err := c.Token.Transfer(ctx, from, to, amount); err != nil {
		return err
	}
	c.hook(ctx)
	return nil
}

func TestReentrantCallIsRejected(t *testing.T) {
	var inner error
	var v *Vault
	reward := func(db storage.DB) Token {
		return &callbackToken{
			Token: ledgerOpener(rewardNS)(db),
			hook: func(ctx context.Context) {
				_, inner = v.Claim(ctx, alice)
			},
		}
	}
	e := newEnvWith(t, storage.NewMemory(), defaultParams(), nil, reward)
	v = e.v
	e.giveStake(alice, units(10))
	e.fund(units(100), day)
	e.deposit(alice, units(10))
	e.clock.advance(day)

	paid, err := e.v.Claim(e.ctx, alice)
	if err != nil {
		t.Fatalf("outer Claim() error: %v", err)
	}
	if !errors.Is(inner, ErrReentrantCall) {
		t.Fatalf("re-entrant Claim() err = %v, want ErrReentrantCall", inner)
	}
	if !e.rewardBalance(alice).Eq(paid) {
		t.Errorf("alice paid twice: balance %s, claim %s", e.rewardBalance(alice).Dec(), paid.Dec())
	}
}

// skimToken delivers one base unit less than asked on TransferFrom.
type skimToken struct {
	Token
}

func (s *skimToken) TransferFrom(ctx context.Context, spender, owner, to types.Address, amount *uint256.Int) error {
	less := new(uint256.Int).Sub(amount, uint256.NewInt(1))
	return s.Token.TransferFrom(ctx, spender, owner, to, less)
}

func TestDeposit_FeeOnTransferTokenRejected(t *testing.T) {
	stake := func(db storage.DB) Token {
		return &skimToken{Token: ledgerOpener(stakeNS)(db)}
	}
	e := newEnvWith(t, storage.NewMemory(), defaultParams(), stake, nil)
	e.giveStake(alice, units(10))

	err := e.v.Deposit(e.ctx, alice, units(10))
	if !errors.Is(err, ErrCustodyMismatch) || KindOf(err) != KindCustody {
		t.Fatalf("Deposit() err = %v, want ErrCustodyMismatch", err)
	}
	if !e.stakeBalance(alice).Eq(units(10)) {
		t.Errorf("alice stake = %s, partial transfer committed", e.stakeBalance(alice).Dec())
	}
}

func TestAtomic_CommitsOrDiscards(t *testing.T) {
	e := newEnv(t, defaultParams())
	open := ledgerOpener(stakeNS)

	err := e.v.Atomic(e.ctx, "mint", func(ctx context.Context, db storage.DB) error {
		return open(db).(interface {
			Mint(context.Context, types.Address, types.Address, *uint256.Int) error
		}).Mint(ctx, adminAddr, bob, units(3))
	})
	if err != nil {
		t.Fatalf("Atomic() error: %v", err)
	}
	if !e.stakeBalance(bob).Eq(units(3)) {
		t.Fatalf("bob = %s, want 3", e.stakeBalance(bob).Dec())
	}

	boom := errors.New("boom")
	err = e.v.Atomic(e.ctx, "transfer", func(ctx context.Context, db storage.DB) error {
		if err := open(db).Transfer(ctx, bob, alice, units(1)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Atomic() err = %v", err)
	}
	if !e.stakeBalance(bob).Eq(units(3)) || !e.stakeBalance(alice).IsZero() {
		t.Error("failed Atomic() leaked writes")
	}

	inner := e.v.Atomic(e.ctx, "outer", func(ctx context.Context, _ storage.DB) error {
		return e.v.Pause(ctx, adminAddr)
	})
	if !errors.Is(inner, ErrReentrantCall) {
		t.Errorf("nested operation err = %v, want ErrReentrantCall", inner)
	}
}

func TestSetRewardRate_UnboundedRateKeepsVaultUsable(t *testing.T) {
	e := newEnv(t, defaultParams())
	e.giveStake(alice, units(10))
	e.deposit(alice, units(10))
	e.fund(units(100), 10*day)
	e.clock.advance(100 * time.Second)

	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 250)
	err := e.v.SetRewardRate(e.ctx, adminAddr, huge, uint64((30 * day).Seconds()))
	if !errors.Is(err, ErrRateTooHigh) {
		t.Fatalf("SetRewardRate(2^250) err = %v, want ErrRateTooHigh", err)
	}
	e.clock.advance(100 * time.Second)

	earned := e.pending(alice)
	if earned.IsZero() {
		t.Fatal("pending reward should have accrued")
	}
	if err := e.v.SetRewardRate(e.ctx, adminAddr, zero(), uint64(day.Seconds())); err != nil {
		t.Fatalf("SetRewardRate(0) after rejection: %v", err)
	}
	e.clock.advance(8 * day)

	paid, err := e.v.Claim(e.ctx, alice)
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if !paid.Eq(earned) {
		t.Errorf("claimed %s, want %s", paid.Dec(), earned.Dec())
	}
	if err := e.v.Withdraw(e.ctx, alice, units(10)); err != nil {
		t.Fatalf("Withdraw() error: %v", err)
	}
	if !e.stakeBalance(alice).Eq(units(10)) {
		t.Errorf("alice stake = %s, want 10", e.stakeBalance(alice).Dec())
	}
	e.mustAudit()
}

func TestView_ExcludesCommits(t *testing.T) {
	e := newEnv(t, defaultParams())
	open := ledgerOpener(stakeNS)

	done := make(chan error, 1)
	err := e.v.View(func(db storage.DB) error {
		go func() {
			done <- e.v.Atomic(e.ctx, "mint", func(ctx context.Context, db storage.DB) error {
				return open(db).(interface {
					Mint(context.Context, types.Address, types.Address, *uint256.Int) error
				}).Mint(ctx, adminAddr, bob, units(3))
			})
		}()
		time.Sleep(20 * time.Millisecond)
		bal, err := open(db).BalanceOf(e.ctx, bob)
		if err != nil {
			return err
		}
		if !bal.IsZero() {
			t.Errorf("view saw a commit in progress: bob = %s", bal.Dec())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View() error: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Atomic() error: %v", err)
	}
	if !e.stakeBalance(bob).Eq(units(3)) {
		t.Errorf("bob = %s, want 3 after the view", e.stakeBalance(bob).Dec())
	}
}
