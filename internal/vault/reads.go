package vault

import (
	"context"

	"github.com/Klingon-tech/klingvault/internal/storage"
	"github.com/Klingon-tech/klingvault/pkg/types"
	"github.com/holiman/uint256"
)

// view runs fn against the committed state. Readers never observe a
// half-applied commit.
func (v *Vault) view(fn func(st *store, s *State) error) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	st := newStore(storage.NewPrefixDB(v.db, Namespace))
	s, err := st.loadState()
	if err != nil {
		return err
	}
	return fn(st, s)
}

// View runs fn against the committed database, excluding concurrent
// commits for its duration. fn must not write.
func (v *Vault) View(fn func(db storage.DB) error) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return fn(v.db)
}

// PendingReward returns what caller could claim right now. The accumulator
// is advanced to the current time in memory only; nothing is written.
func (v *Vault) PendingReward(_ context.Context, who types.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := v.view(func(st *store, s *State) error {
		acc, err := s.accAt(v.now())
		if err != nil {
			return err
		}
		pos, err := st.position(who)
		if err != nil {
			return err
		}
		out, err = pos.pending(acc)
		return err
	})
	return out, err
}

// PositionView is a participant's stored position plus derived fields.
type PositionView struct {
	Position
	Exists        bool         `json:"exists"`
	PendingReward *uint256.Int `json:"pending_reward"`
	Locked        bool         `json:"locked"`
}

// GetPosition returns who's position. A participant that never deposited
// gets a zero position with Exists false.
func (v *Vault) GetPosition(_ context.Context, who types.Address) (*PositionView, error) {
	var out *PositionView
	err := v.view(func(st *store, s *State) error {
		now := v.now()
		exists, err := st.hasPosition(who)
		if err != nil {
			return err
		}
		pos, err := st.position(who)
		if err != nil {
			return err
		}
		acc, err := s.accAt(now)
		if err != nil {
			return err
		}
		pending, err := pos.pending(acc)
		if err != nil {
			return err
		}
		out = &PositionView{
			Position:      *pos,
			Exists:        exists,
			PendingReward: pending,
			Locked:        pos.Amount.Sign() > 0 && pos.locked(now),
		}
		return nil
	})
	return out, err
}

// Stats is the vault-wide view.
type Stats struct {
	TotalStaked       *uint256.Int  `json:"total_staked"`
	RewardRate        *uint256.Int  `json:"reward_rate_per_second"`
	RewardEndTime     uint64        `json:"reward_end_time"`
	AccRewardPerShare *uint256.Int  `json:"acc_reward_per_share"`
	LastUpdateTime    uint64        `json:"last_update_time"`
	LockPeriod        uint64        `json:"lock_period"`
	MinStake          *uint256.Int  `json:"min_stake"`
	MaxStake          *uint256.Int  `json:"max_stake"`
	EmergencyFeeBps   uint16        `json:"emergency_fee_bps"`
	Paused            bool          `json:"paused"`
	CollectedFees     *uint256.Int  `json:"collected_fees"`
	EventSeq          uint64        `json:"event_seq"`
	Address           types.Address `json:"address"`
	StakeCustody      *uint256.Int  `json:"stake_custody"`
	RewardCustody     *uint256.Int  `json:"reward_custody"`
}

// GetVaultStats returns the state as of the last committed operation
// together with current custody balances.
func (v *Vault) GetVaultStats(ctx context.Context) (*Stats, error) {
	var out *Stats
	err := v.view(func(_ *store, s *State) error {
		stakeBal, err := v.stake(v.db).BalanceOf(ctx, v.addr)
		if err != nil {
			return err
		}
		rewardBal, err := v.reward(v.db).BalanceOf(ctx, v.addr)
		if err != nil {
			return err
		}
		out = &Stats{
			TotalStaked:       s.TotalStaked,
			RewardRate:        s.RewardRate,
			RewardEndTime:     s.RewardEndTime,
			AccRewardPerShare: s.AccRewardPerShare,
			LastUpdateTime:    s.LastUpdateTime,
			LockPeriod:        s.LockPeriod,
			MinStake:          s.MinStake,
			MaxStake:          s.MaxStake,
			EmergencyFeeBps:   s.EmergencyFeeBps,
			Paused:            s.Paused,
			CollectedFees:     s.CollectedFees,
			EventSeq:          s.EventSeq,
			Address:           v.addr,
			StakeCustody:      stakeBal,
			RewardCustody:     rewardBal,
		}
		return nil
	})
	return out, err
}

// HasRole reports whether who holds role.
func (v *Vault) HasRole(_ context.Context, role Role, who types.Address) (bool, error) {
	var ok bool
	err := v.view(func(st *store, _ *State) error {
		var err error
		ok, err = st.hasRole(role, who)
		return err
	})
	return ok, err
}

// RoleMembers lists every holder of role.
func (v *Vault) RoleMembers(_ context.Context, role Role) ([]types.Address, error) {
	var out []types.Address
	err := v.view(func(st *store, _ *State) error {
		var err error
		out, err = st.roleMembers(role)
		return err
	})
	return out, err
}

// Events returns up to limit events starting at sequence from.
func (v *Vault) Events(_ context.Context, from uint64, limit int) ([]Event, error) {
	var out []Event
	err := v.view(func(st *store, s *State) error {
		var err error
		out, err = st.events(from, s.EventSeq, limit)
		return err
	})
	return out, err
}
