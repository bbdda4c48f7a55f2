package vault

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

const tol = 1_000_000 // base units of rounding slack, far below 1e-9 tokens

// TestScenario_TwoStakers walks the reference timeline: 1000 RWD over ten
// days, A stakes at day 0, B at day 1, A claims at day 2, B bails out at
// day 3, A withdraws at day 8.
func TestScenario_TwoStakers(t *testing.T) {
	e := newEnv(t, defaultParams())
	e.giveStake(alice, units(100))
	e.giveStake(bob, units(100))

	e.fund(units(1000), 10*day)
	e.deposit(alice, units(100))

	e.clock.advance(day)
	approx(t, "pending(A) at day 1", e.pending(alice), units(100), tol)

	e.deposit(bob, units(100))

	e.clock.advance(day)
	approx(t, "pending(A) at day 2", e.pending(alice), units(150), tol)
	approx(t, "pending(B) at day 2", e.pending(bob), units(50), tol)

	paid, err := e.v.Claim(e.ctx, alice)
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	approx(t, "claimed by A", paid, units(150), tol)
	if !e.rewardBalance(alice).Eq(paid) {
		t.Errorf("A reward balance = %s, want %s", e.rewardBalance(alice).Dec(), paid.Dec())
	}
	if p := e.pending(alice); !p.IsZero() {
		t.Errorf("pending(A) after claim = %s, want 0", p.Dec())
	}
	if _, err := e.v.Claim(e.ctx, alice); !errors.Is(err, ErrNoRewards) {
		t.Errorf("second Claim() err = %v, want ErrNoRewards", err)
	}

	e.clock.advance(day)
	res, err := e.v.EmergencyWithdraw(e.ctx, bob)
	if err != nil {
		t.Fatalf("EmergencyWithdraw() error: %v", err)
	}
	if !res.Payout.Eq(units(90)) || !res.Fee.Eq(units(10)) {
		t.Errorf("emergency payout = %s fee = %s, want 90/10", res.Payout.Dec(), res.Fee.Dec())
	}
	if !e.stakeBalance(bob).Eq(units(90)) {
		t.Errorf("B stake balance = %s, want 90", e.stakeBalance(bob).Dec())
	}
	if p := e.pending(bob); !p.IsZero() {
		t.Errorf("pending(B) after emergency = %s, want 0", p.Dec())
	}
	if s := e.stats(); !s.TotalStaked.Eq(units(100)) {
		t.Errorf("totalStaked = %s, want 100", s.TotalStaked.Dec())
	}

	e.clock.advance(5 * day)
	before := e.stakeBalance(alice)
	if err := e.v.Withdraw(e.ctx, alice, units(100)); err != nil {
		t.Fatalf("Withdraw() at day 8 error: %v", err)
	}
	gained := new(uint256.Int).Sub(e.stakeBalance(alice), before)
	if !gained.Eq(units(100)) {
		t.Errorf("A stake gained %s, want exactly 100", gained.Dec())
	}

	s := e.stats()
	if !s.TotalStaked.IsZero() {
		t.Errorf("totalStaked = %s, want 0", s.TotalStaked.Dec())
	}
	if !s.CollectedFees.Eq(units(10)) {
		t.Errorf("collected fees = %s, want 10", s.CollectedFees.Dec())
	}
	// B's exit was not checkpointed, so A alone accrued days 2..8.
	approx(t, "pending(A) at day 8", e.pending(alice), units(600), tol)
	e.mustAudit()
}
