package vault

import (
	"fmt"

	"github.com/holiman/uint256"
)

// State is the vault singleton. It is loaded at the start of every
// operation, mutated only inside that operation and written back on commit.
type State struct {
	TotalStaked       *uint256.Int `json:"total_staked"`
	RewardRate        *uint256.Int `json:"reward_rate_per_second"`
	RewardEndTime     uint64       `json:"reward_end_time"`
	AccRewardPerShare *uint256.Int `json:"acc_reward_per_share"`
	LastUpdateTime    uint64       `json:"last_update_time"`

	LockPeriod      uint64       `json:"lock_period"`
	MinStake        *uint256.Int `json:"min_stake"`
	MaxStake        *uint256.Int `json:"max_stake"`
	EmergencyFeeBps uint16       `json:"emergency_fee_bps"`
	Paused          bool         `json:"paused"`

	// CollectedFees is emergency-withdrawal revenue still held in stake
	// custody.
	CollectedFees *uint256.Int `json:"collected_fees"`
	// EventSeq is the sequence number of the last recorded event.
	EventSeq uint64 `json:"event_seq"`
}

func (s *State) normalize() {
	for _, p := range []**uint256.Int{
		&s.TotalStaked, &s.RewardRate, &s.AccRewardPerShare,
		&s.MinStake, &s.MaxStake, &s.CollectedFees,
	} {
		if *p == nil {
			*p = zero()
		}
	}
}

// accAt returns the accumulator as catchUp(now) would leave it, without
// mutating s.
func (s *State) accAt(now uint64) (*uint256.Int, error) {
	acc := clone(s.AccRewardPerShare)
	effective := min(now, s.RewardEndTime)
	if effective <= s.LastUpdateTime || s.TotalStaked.IsZero() {
		return acc, nil
	}
	elapsed := uint256.NewInt(effective - s.LastUpdateTime)
	emitted, err := mul(elapsed, s.RewardRate)
	if err != nil {
		return nil, err
	}
	delta, err := mulDiv(emitted, Precision, s.TotalStaked)
	if err != nil {
		return nil, err
	}
	return add(acc, delta)
}

// catchUp integrates the reward rate up to now. With nothing staked the
// accumulator stays frozen but lastUpdateTime still moves forward, so idle
// intervals are never paid out later.
func (s *State) catchUp(now uint64) error {
	acc, err := s.accAt(now)
	if err != nil {
		return err
	}
	s.AccRewardPerShare = acc
	if now > s.LastUpdateTime {
		s.LastUpdateTime = now
	}
	return nil
}

// remaining is the reward still scheduled for emission after now.
func (s *State) remaining(now uint64) (*uint256.Int, error) {
	if s.RewardEndTime <= now {
		return zero(), nil
	}
	return mul(s.RewardRate, uint256.NewInt(s.RewardEndTime-now))
}

// checkSchedule bounds a schedule at write time: rate*duration scaled by
// Precision twice must fit in 256 bits. Every later catchUp then stays
// within range, as do the per-position products of the accumulator.
func checkSchedule(rate *uint256.Int, duration uint64) error {
	total, over := new(uint256.Int).MulOverflow(rate, uint256.NewInt(duration))
	for i := 0; i < 2 && !over; i++ {
		total, over = new(uint256.Int).MulOverflow(total, Precision)
	}
	if over {
		return fmt.Errorf("%w: %s/s over %ds", ErrRateTooHigh, rate.Dec(), duration)
	}
	return nil
}

// fund starts a new schedule emitting amount plus any unspent reward of the
// current schedule evenly over duration seconds.
func (s *State) fund(now uint64, amount *uint256.Int, duration uint64) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}
	if duration == 0 {
		return ErrZeroDuration
	}
	if err := s.catchUp(now); err != nil {
		return err
	}
	left, err := s.remaining(now)
	if err != nil {
		return err
	}
	total, err := add(amount, left)
	if err != nil {
		return err
	}
	rate := new(uint256.Int).Div(total, uint256.NewInt(duration))
	if rate.IsZero() {
		return fmt.Errorf("%w: %s over %ds", ErrRateRoundsToZero, total.Dec(), duration)
	}
	if err := checkSchedule(rate, duration); err != nil {
		return err
	}
	end, err := addSeconds(now, duration)
	if err != nil {
		return err
	}
	s.RewardRate = rate
	s.RewardEndTime = end
	return nil
}

// setRate overwrites the schedule without moving tokens.
func (s *State) setRate(now uint64, rate *uint256.Int, duration uint64) error {
	if duration == 0 {
		return ErrZeroDuration
	}
	if err := checkSchedule(rate, duration); err != nil {
		return err
	}
	if err := s.catchUp(now); err != nil {
		return err
	}
	end, err := addSeconds(now, duration)
	if err != nil {
		return err
	}
	s.RewardRate = clone(rate)
	s.RewardEndTime = end
	return nil
}
