package vault

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/klingvault/pkg/types"
	"github.com/holiman/uint256"
)

// FundRewards starts a new reward schedule of amount plus any unspent
// reward, emitted evenly over duration seconds, and pulls amount of reward
// token from caller. Requires TreasurerRole.
func (v *Vault) FundRewards(ctx context.Context, caller types.Address, amount *uint256.Int, duration uint64) error {
	return v.exec(ctx, "fund_rewards", caller, func(o *op) error {
		if err := o.gate.require(TreasurerRole, caller); err != nil {
			return err
		}
		if amount == nil {
			return ErrZeroAmount
		}
		if err := o.state.fund(o.now, amount, duration); err != nil {
			return err
		}
		ev := newEvent(EventRewardsFunded, o.now, caller)
		ev.Amount = clone(amount)
		o.emit(ev.
			with("duration", fmt.Sprint(duration)).
			with("rate", o.state.RewardRate.Dec()).
			with("end_time", fmt.Sprint(o.state.RewardEndTime)))
		return o.pull(o.reward, caller, amount)
	})
}

// SetRewardRate overwrites the emission rate for the next duration seconds.
// No tokens move; custody must already cover the schedule. Requires
// TreasurerRole.
func (v *Vault) SetRewardRate(ctx context.Context, caller types.Address, rate *uint256.Int, duration uint64) error {
	return v.exec(ctx, "set_reward_rate", caller, func(o *op) error {
		if err := o.gate.require(TreasurerRole, caller); err != nil {
			return err
		}
		if rate == nil {
			rate = zero()
		}
		if err := o.state.setRate(o.now, rate, duration); err != nil {
			return err
		}
		o.emit(newEvent(EventRewardRateUpdated, o.now, caller).
			with("rate", rate.Dec()).
			with("end_time", fmt.Sprint(o.state.RewardEndTime)))
		return nil
	})
}

// SetLockPeriod changes the lock applied to future deposits. Requires
// AdminRole.
func (v *Vault) SetLockPeriod(ctx context.Context, caller types.Address, seconds uint64) error {
	return v.exec(ctx, "set_lock_period", caller, func(o *op) error {
		if err := o.gate.require(AdminRole, caller); err != nil {
			return err
		}
		if err := validateLockPeriod(seconds); err != nil {
			return err
		}
		o.state.LockPeriod = seconds
		o.emit(newEvent(EventLockPeriodUpdated, o.now, caller).with("lock_period", fmt.Sprint(seconds)))
		return nil
	})
}

// SetStakeLimits changes the per-deposit minimum and the pool-wide cap.
// Requires AdminRole.
func (v *Vault) SetStakeLimits(ctx context.Context, caller types.Address, minStake, maxStake *uint256.Int) error {
	return v.exec(ctx, "set_stake_limits", caller, func(o *op) error {
		if err := o.gate.require(AdminRole, caller); err != nil {
			return err
		}
		if err := validateLimits(minStake, maxStake); err != nil {
			return err
		}
		o.state.MinStake = clone(minStake)
		o.state.MaxStake = clone(maxStake)
		o.emit(newEvent(EventStakeLimitsUpdated, o.now, caller).
			with("min_stake", minStake.Dec()).
			with("max_stake", maxStake.Dec()))
		return nil
	})
}

// SetEmergencyWithdrawFee changes the emergency fee, at most 5000 bps.
// Requires AdminRole.
func (v *Vault) SetEmergencyWithdrawFee(ctx context.Context, caller types.Address, bps uint16) error {
	return v.exec(ctx, "set_emergency_fee", caller, func(o *op) error {
		if err := o.gate.require(AdminRole, caller); err != nil {
			return err
		}
		if err := validateFee(bps); err != nil {
			return err
		}
		o.state.EmergencyFeeBps = bps
		o.emit(newEvent(EventEmergencyFeeUpdate, o.now, caller).with("fee_bps", fmt.Sprint(bps)))
		return nil
	})
}

// Pause blocks deposit, withdraw, claim and exit. Requires PauserRole.
func (v *Vault) Pause(ctx context.Context, caller types.Address) error {
	return v.exec(ctx, "pause", caller, func(o *op) error {
		if err := o.gate.require(PauserRole, caller); err != nil {
			return err
		}
		if o.state.Paused {
			return ErrPaused
		}
		o.state.Paused = true
		o.emit(newEvent(EventPaused, o.now, caller))
		return nil
	})
}

// Unpause lifts a pause. Requires PauserRole.
func (v *Vault) Unpause(ctx context.Context, caller types.Address) error {
	return v.exec(ctx, "unpause", caller, func(o *op) error {
		if err := o.gate.require(PauserRole, caller); err != nil {
			return err
		}
		if !o.state.Paused {
			return ErrNotPaused
		}
		o.state.Paused = false
		o.emit(newEvent(EventUnpaused, o.now, caller))
		return nil
	})
}

// GrantRole adds account to role. Granting a held role is a no-op.
// Requires AdminRole.
func (v *Vault) GrantRole(ctx context.Context, caller types.Address, role Role, account types.Address) error {
	return v.setRole(ctx, "grant_role", caller, role, account, true)
}

// RevokeRole removes account from role. Revoking an unheld role is a no-op.
// Requires AdminRole.
func (v *Vault) RevokeRole(ctx context.Context, caller types.Address, role Role, account types.Address) error {
	return v.setRole(ctx, "revoke_role", caller, role, account, false)
}

func (v *Vault) setRole(ctx context.Context, name string, caller types.Address, role Role, account types.Address, grant bool) error {
	return v.exec(ctx, name, caller, func(o *op) error {
		if err := o.gate.require(AdminRole, caller); err != nil {
			return err
		}
		if _, err := ParseRole(string(role)); err != nil {
			return err
		}
		if account.IsZero() {
			return ErrZeroAddress
		}
		held, err := o.gate.has(role, account)
		if err != nil {
			return err
		}
		if held == grant {
			return nil
		}
		if err := o.st.setRole(role, account, grant); err != nil {
			return err
		}
		typ := EventRoleRevoked
		if grant {
			typ = EventRoleGranted
		}
		o.emit(newEvent(typ, o.now, caller).with("role", string(role)).with("account", account.String()))
		return nil
	})
}

// CollectFees sends all retained emergency fees to to. Requires
// TreasurerRole.
func (v *Vault) CollectFees(ctx context.Context, caller, to types.Address) (*uint256.Int, error) {
	var paid *uint256.Int
	err := v.exec(ctx, "collect_fees", caller, func(o *op) error {
		if err := o.gate.require(TreasurerRole, caller); err != nil {
			return err
		}
		if to.IsZero() {
			return ErrZeroAddress
		}
		fees := o.state.CollectedFees
		if fees.IsZero() {
			return ErrNoFees
		}
		o.state.CollectedFees = zero()
		ev := newEvent(EventFeesCollected, o.now, caller)
		ev.Amount = clone(fees)
		o.emit(ev.with("to", to.String()))
		paid = fees
		return o.push(o.stake, to, fees)
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}
