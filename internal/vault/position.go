package vault

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Position is one participant's ledger entry. It is created on first deposit
// and never deleted; reward fields survive the amount returning to zero.
type Position struct {
	Amount          *uint256.Int `json:"amount"`
	RewardDebt      *uint256.Int `json:"reward_debt"`
	UnclaimedReward *uint256.Int `json:"unclaimed_reward"`
	UnlockTime      uint64       `json:"unlock_time"`
}

func newPosition() *Position {
	return &Position{Amount: zero(), RewardDebt: zero(), UnclaimedReward: zero()}
}

func (p *Position) normalize() {
	for _, f := range []**uint256.Int{&p.Amount, &p.RewardDebt, &p.UnclaimedReward} {
		if *f == nil {
			*f = zero()
		}
	}
}

// accrued is amount*acc/Precision.
func (p *Position) accrued(acc *uint256.Int) (*uint256.Int, error) {
	return mulDiv(p.Amount, acc, Precision)
}

// pending is unclaimed + amount*acc/Precision - debt.
func (p *Position) pending(acc *uint256.Int) (*uint256.Int, error) {
	accrued, err := p.accrued(acc)
	if err != nil {
		return nil, err
	}
	gross, err := add(p.UnclaimedReward, accrued)
	if err != nil {
		return nil, err
	}
	out, err := sub(gross, p.RewardDebt)
	if err != nil {
		return nil, fmt.Errorf("reward debt exceeds accrual: %w", err)
	}
	return out, nil
}

// settle moves everything accrued since the last settlement into
// UnclaimedReward and rebases the debt on acc. Must run before Amount
// changes.
func (p *Position) settle(acc *uint256.Int) error {
	pend, err := p.pending(acc)
	if err != nil {
		return err
	}
	p.UnclaimedReward = pend
	return p.rebase(acc)
}

// rebase sets the debt baseline for the current Amount. Must run after
// Amount changes.
func (p *Position) rebase(acc *uint256.Int) error {
	debt, err := p.accrued(acc)
	if err != nil {
		return err
	}
	p.RewardDebt = debt
	return nil
}

// locked reports whether a non-emergency withdrawal is still blocked.
func (p *Position) locked(now uint64) bool {
	return now < p.UnlockTime
}
