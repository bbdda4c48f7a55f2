package vault

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/klingvault/pkg/types"
	"github.com/holiman/uint256"
)

// pull moves amount from owner into custody and checks that custody grew by
// exactly amount.
func (o *op) pull(t Token, owner types.Address, amount *uint256.Int) error {
	before, err := t.BalanceOf(o.ctx, o.vault)
	if err != nil {
		return fmt.Errorf("%w: custody balance: %w", ErrTransferFailed, err)
	}
	if err := t.TransferFrom(o.ctx, o.vault, owner, o.vault, amount); err != nil {
		return fmt.Errorf("%w: pull %s from %s: %w", ErrTransferFailed, amount.Dec(), owner, err)
	}
	after, err := t.BalanceOf(o.ctx, o.vault)
	if err != nil {
		return fmt.Errorf("%w: custody balance: %w", ErrTransferFailed, err)
	}
	got, under := new(uint256.Int).SubOverflow(after, before)
	if under || !got.Eq(amount) {
		return fmt.Errorf("%w: expected +%s, custody went %s -> %s", ErrCustodyMismatch, amount.Dec(), before.Dec(), after.Dec())
	}
	return nil
}

// push pays amount out of custody.
func (o *op) push(t Token, to types.Address, amount *uint256.Int) error {
	if err := t.Transfer(o.ctx, o.vault, to, amount); err != nil {
		return fmt.Errorf("%w: send %s to %s: %w", ErrTransferFailed, amount.Dec(), to, err)
	}
	return nil
}

// settled catches the accumulator up and settles the caller's position.
func (o *op) settled(who types.Address) (*Position, error) {
	if err := o.state.catchUp(o.now); err != nil {
		return nil, err
	}
	pos, err := o.st.position(who)
	if err != nil {
		return nil, err
	}
	if err := pos.settle(o.state.AccRewardPerShare); err != nil {
		return nil, err
	}
	return pos, nil
}

// Deposit stakes amount for caller and restarts the caller's lock.
func (v *Vault) Deposit(ctx context.Context, caller types.Address, amount *uint256.Int) error {
	return v.exec(ctx, "deposit", caller, func(o *op) error {
		s := o.state
		if err := requireActive(s); err != nil {
			return err
		}
		if caller.IsZero() {
			return ErrZeroAddress
		}
		if amount == nil || amount.IsZero() {
			return ErrZeroAmount
		}
		if amount.Lt(s.MinStake) {
			return fmt.Errorf("%w: %s < %s", ErrBelowMinimum, amount.Dec(), s.MinStake.Dec())
		}
		total, err := add(s.TotalStaked, amount)
		if err != nil {
			return err
		}
		if total.Gt(s.MaxStake) {
			return fmt.Errorf("%w: total would be %s, cap %s", ErrExceedsMaxStake, total.Dec(), s.MaxStake.Dec())
		}

		pos, err := o.settled(caller)
		if err != nil {
			return err
		}
		if pos.Amount, err = add(pos.Amount, amount); err != nil {
			return err
		}
		s.TotalStaked = total
		if err := pos.rebase(s.AccRewardPerShare); err != nil {
			return err
		}
		if pos.UnlockTime, err = addSeconds(o.now, s.LockPeriod); err != nil {
			return err
		}
		if err := o.st.savePosition(caller, pos); err != nil {
			return err
		}

		ev := newEvent(EventDeposit, o.now, caller)
		ev.Amount = clone(amount)
		o.emit(ev.with("unlock_time", fmt.Sprint(pos.UnlockTime)))
		return o.pull(o.stake, caller, amount)
	})
}

// Withdraw returns amount of unlocked stake to caller. Rewards stay
// unclaimed.
func (v *Vault) Withdraw(ctx context.Context, caller types.Address, amount *uint256.Int) error {
	return v.exec(ctx, "withdraw", caller, func(o *op) error {
		if err := requireActive(o.state); err != nil {
			return err
		}
		if amount == nil || amount.IsZero() {
			return ErrZeroAmount
		}
		pos, err := o.st.position(caller)
		if err != nil {
			return err
		}
		if amount.Gt(pos.Amount) {
			return fmt.Errorf("%w: staked %s, requested %s", ErrInsufficientStake, pos.Amount.Dec(), amount.Dec())
		}
		if pos.locked(o.now) {
			return fmt.Errorf("%w: until %d", ErrTokensLocked, pos.UnlockTime)
		}
		if err := o.unstake(caller, amount); err != nil {
			return err
		}
		return o.push(o.stake, caller, amount)
	})
}

// unstake settles and reduces caller's position by amount, recording a
// Withdraw event. The outbound transfer is left to the caller.
func (o *op) unstake(who types.Address, amount *uint256.Int) error {
	s := o.state
	pos, err := o.settled(who)
	if err != nil {
		return err
	}
	if pos.Amount, err = sub(pos.Amount, amount); err != nil {
		return err
	}
	if s.TotalStaked, err = sub(s.TotalStaked, amount); err != nil {
		return err
	}
	if err := pos.rebase(s.AccRewardPerShare); err != nil {
		return err
	}
	if err := o.st.savePosition(who, pos); err != nil {
		return err
	}
	ev := newEvent(EventWithdraw, o.now, who)
	ev.Amount = clone(amount)
	o.emit(ev)
	return nil
}

// takeReward settles caller and zeroes its unclaimed reward, returning the
// amount to pay.
func (o *op) takeReward(who types.Address) (*uint256.Int, error) {
	pos, err := o.settled(who)
	if err != nil {
		return nil, err
	}
	reward := pos.UnclaimedReward
	pos.UnclaimedReward = zero()
	if err := o.st.savePosition(who, pos); err != nil {
		return nil, err
	}
	return reward, nil
}

// Claim pays out caller's pending reward.
func (v *Vault) Claim(ctx context.Context, caller types.Address) (*uint256.Int, error) {
	var paid *uint256.Int
	err := v.exec(ctx, "claim", caller, func(o *op) error {
		if err := requireActive(o.state); err != nil {
			return err
		}
		reward, err := o.takeReward(caller)
		if err != nil {
			return err
		}
		if reward.IsZero() {
			return ErrNoRewards
		}
		ev := newEvent(EventClaim, o.now, caller)
		ev.Reward = clone(reward)
		o.emit(ev)
		paid = reward
		return o.push(o.reward, caller, reward)
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// ExitResult reports what Exit paid.
type ExitResult struct {
	Amount *uint256.Int `json:"amount"`
	Reward *uint256.Int `json:"reward"`
}

// Exit withdraws caller's full stake and claims its reward in one operation.
// A zero reward is not an error here; the reward transfer is skipped.
func (v *Vault) Exit(ctx context.Context, caller types.Address) (*ExitResult, error) {
	var res ExitResult
	err := v.exec(ctx, "exit", caller, func(o *op) error {
		if err := requireActive(o.state); err != nil {
			return err
		}
		pos, err := o.st.position(caller)
		if err != nil {
			return err
		}
		if pos.Amount.IsZero() {
			return ErrNoStake
		}
		if pos.locked(o.now) {
			return fmt.Errorf("%w: until %d", ErrTokensLocked, pos.UnlockTime)
		}
		amount := clone(pos.Amount)

		reward, err := o.takeReward(caller)
		if err != nil {
			return err
		}
		if !reward.IsZero() {
			ev := newEvent(EventClaim, o.now, caller)
			ev.Reward = clone(reward)
			o.emit(ev)
		}
		if err := o.unstake(caller, amount); err != nil {
			return err
		}

		if !reward.IsZero() {
			if err := o.push(o.reward, caller, reward); err != nil {
				return err
			}
		}
		res = ExitResult{Amount: amount, Reward: reward}
		return o.push(o.stake, caller, amount)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// EmergencyResult reports what EmergencyWithdraw paid and kept.
type EmergencyResult struct {
	Amount *uint256.Int `json:"amount"`
	Fee    *uint256.Int `json:"fee"`
	Payout *uint256.Int `json:"payout"`
}

// EmergencyWithdraw returns caller's stake minus the emergency fee, ignoring
// the lock and the pause flag. All unsettled and unclaimed reward is
// forfeited and the accumulator is not caught up.
func (v *Vault) EmergencyWithdraw(ctx context.Context, caller types.Address) (*EmergencyResult, error) {
	var res EmergencyResult
	err := v.exec(ctx, "emergency_withdraw", caller, func(o *op) error {
		s := o.state
		pos, err := o.st.position(caller)
		if err != nil {
			return err
		}
		amount := pos.Amount
		if amount.IsZero() {
			return ErrNoStake
		}
		fee, err := mulDiv(amount, uint256.NewInt(uint64(s.EmergencyFeeBps)), uint256.NewInt(BpsDenominator))
		if err != nil {
			return err
		}
		payout, err := sub(amount, fee)
		if err != nil {
			return err
		}
		if s.TotalStaked, err = sub(s.TotalStaked, amount); err != nil {
			return err
		}
		if s.CollectedFees, err = add(s.CollectedFees, fee); err != nil {
			return err
		}
		forfeited := pos.UnclaimedReward
		pos.Amount, pos.RewardDebt, pos.UnclaimedReward = zero(), zero(), zero()
		pos.UnlockTime = 0
		if err := o.st.savePosition(caller, pos); err != nil {
			return err
		}

		ev := newEvent(EventEmergencyWithdraw, o.now, caller)
		ev.Amount = clone(amount)
		ev.Fee = clone(fee)
		o.emit(ev.with("forfeited_unclaimed", forfeited.Dec()))
		res = EmergencyResult{Amount: amount, Fee: fee, Payout: payout}
		if payout.IsZero() {
			return nil
		}
		return o.push(o.stake, caller, payout)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
