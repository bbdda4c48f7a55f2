package vault

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func newState(totalStaked, rate uint64, last, end uint64) *State {
	s := &State{
		TotalStaked:    uint256.NewInt(totalStaked),
		RewardRate:     uint256.NewInt(rate),
		LastUpdateTime: last,
		RewardEndTime:  end,
	}
	s.normalize()
	return s
}

func TestCatchUp_Accrues(t *testing.T) {
	s := newState(100, 10, 1000, 2000)
	if err := s.catchUp(1010); err != nil {
		t.Fatal(err)
	}
	// 10s * 10/s * 1e18 / 100
	want := new(uint256.Int).Mul(uint256.NewInt(1), Precision)
	if !s.AccRewardPerShare.Eq(want) {
		t.Errorf("acc = %s, want %s", s.AccRewardPerShare.Dec(), want.Dec())
	}
	if s.LastUpdateTime != 1010 {
		t.Errorf("lastUpdateTime = %d, want 1010", s.LastUpdateTime)
	}
}

func TestCatchUp_FrozenWithoutStake(t *testing.T) {
	s := newState(0, 10, 1000, 2000)
	if err := s.catchUp(1500); err != nil {
		t.Fatal(err)
	}
	if !s.AccRewardPerShare.IsZero() {
		t.Errorf("acc = %s with nothing staked", s.AccRewardPerShare.Dec())
	}
	if s.LastUpdateTime != 1500 {
		t.Errorf("lastUpdateTime = %d, want 1500 even when frozen", s.LastUpdateTime)
	}
}

func TestCatchUp_StopsAtEndTime(t *testing.T) {
	s := newState(1, 1, 0, 100)
	s.catchUp(500)
	want := new(uint256.Int).Mul(uint256.NewInt(100), Precision)
	if !s.AccRewardPerShare.Eq(want) {
		t.Errorf("acc = %s, want %s", s.AccRewardPerShare.Dec(), want.Dec())
	}
	if s.LastUpdateTime != 500 {
		t.Errorf("lastUpdateTime = %d, want 500", s.LastUpdateTime)
	}

	// Past the end nothing more accrues.
	s.catchUp(900)
	if !s.AccRewardPerShare.Eq(want) {
		t.Errorf("acc moved past end time: %s", s.AccRewardPerShare.Dec())
	}
}

func TestCatchUp_NeverRegresses(t *testing.T) {
	s := newState(10, 5, 100, 1000)
	s.catchUp(200)
	acc := clone(s.AccRewardPerShare)

	s.catchUp(150)
	if s.LastUpdateTime != 200 {
		t.Errorf("lastUpdateTime regressed to %d", s.LastUpdateTime)
	}
	if !s.AccRewardPerShare.Eq(acc) {
		t.Errorf("acc changed on stale time: %s -> %s", acc.Dec(), s.AccRewardPerShare.Dec())
	}
}

func TestAccAt_DoesNotMutate(t *testing.T) {
	s := newState(10, 5, 100, 1000)
	acc, err := s.accAt(300)
	if err != nil {
		t.Fatal(err)
	}
	if acc.IsZero() {
		t.Fatal("accAt() should simulate accrual")
	}
	if !s.AccRewardPerShare.IsZero() || s.LastUpdateTime != 100 {
		t.Error("accAt() mutated state")
	}
}

func TestFund_RollsOverUnspent(t *testing.T) {
	s := newState(0, 0, 0, 0)
	if err := s.fund(0, uint256.NewInt(1000), 100); err != nil {
		t.Fatal(err)
	}
	if s.RewardRate.Uint64() != 10 || s.RewardEndTime != 100 {
		t.Fatalf("rate = %d end = %d, want 10/100", s.RewardRate.Uint64(), s.RewardEndTime)
	}

	// Half way through, 500 is still unspent.
	if err := s.fund(50, uint256.NewInt(1000), 100); err != nil {
		t.Fatal(err)
	}
	if s.RewardRate.Uint64() != 15 {
		t.Errorf("rate = %d, want (1000+500)/100 = 15", s.RewardRate.Uint64())
	}
	if s.RewardEndTime != 150 {
		t.Errorf("end = %d, want 150", s.RewardEndTime)
	}

	// After the schedule ended nothing rolls over.
	if err := s.fund(400, uint256.NewInt(200), 100); err != nil {
		t.Fatal(err)
	}
	if s.RewardRate.Uint64() != 2 {
		t.Errorf("rate = %d, want 2", s.RewardRate.Uint64())
	}
}

func TestFund_Validation(t *testing.T) {
	tests := []struct {
		name     string
		amount   uint64
		duration uint64
		want     error
	}{
		{"zero amount", 0, 10, ErrZeroAmount},
		{"zero duration", 10, 0, ErrZeroDuration},
		{"rate rounds to zero", 5, 10, ErrRateRoundsToZero},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newState(0, 0, 0, 0)
			err := s.fund(0, uint256.NewInt(tt.amount), tt.duration)
			if !errors.Is(err, tt.want) {
				t.Errorf("fund() err = %v, want %v", err, tt.want)
			}
			if KindOf(err) != KindValidation {
				t.Errorf("kind = %v, want validation", KindOf(err))
			}
		})
	}
}

func TestSetRate_Overwrites(t *testing.T) {
	s := newState(100, 10, 0, 1000)
	if err := s.setRate(100, uint256.NewInt(3), 50); err != nil {
		t.Fatal(err)
	}
	if s.RewardRate.Uint64() != 3 || s.RewardEndTime != 150 {
		t.Errorf("rate = %d end = %d", s.RewardRate.Uint64(), s.RewardEndTime)
	}
	// The first 100s at the old rate were captured before the overwrite.
	want := new(uint256.Int).Mul(uint256.NewInt(10), Precision)
	if !s.AccRewardPerShare.Eq(want) {
		t.Errorf("acc = %s, want %s", s.AccRewardPerShare.Dec(), want.Dec())
	}
	if err := s.setRate(200, uint256.NewInt(1), 0); !errors.Is(err, ErrZeroDuration) {
		t.Errorf("zero duration err = %v", err)
	}
}

func TestCatchUp_OverflowIsAnError(t *testing.T) {
	s := newState(1, 0, 0, 10)
	s.RewardRate = new(uint256.Int).SetAllOne()
	if err := s.catchUp(10); !errors.Is(err, ErrOverflow) {
		t.Fatalf("catchUp() err = %v, want ErrOverflow", err)
	}
	if !s.AccRewardPerShare.IsZero() || s.LastUpdateTime != 0 {
		t.Error("failed catchUp() mutated state")
	}
}

func TestSchedule_UnboundedRateRejected(t *testing.T) {
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 250)

	s := newState(10, 10, 100, 1000)
	if err := s.setRate(100, huge, 30*86400); !errors.Is(err, ErrRateTooHigh) {
		t.Fatalf("setRate() err = %v, want ErrRateTooHigh", err)
	}
	if KindOf(ErrRateTooHigh) != KindValidation {
		t.Errorf("kind = %v, want validation", KindOf(ErrRateTooHigh))
	}
	if s.RewardRate.Uint64() != 10 || s.RewardEndTime != 1000 || s.LastUpdateTime != 100 {
		t.Errorf("rejected setRate() changed the schedule: %+v", s)
	}
	// A rejected schedule leaves catchUp working.
	if err := s.catchUp(5000); err != nil {
		t.Fatalf("catchUp() after rejection: %v", err)
	}

	s = newState(10, 0, 0, 0)
	if err := s.fund(0, new(uint256.Int).SetAllOne(), 1); !errors.Is(err, ErrRateTooHigh) {
		t.Errorf("fund() err = %v, want ErrRateTooHigh", err)
	}
	if !s.RewardRate.IsZero() || s.RewardEndTime != 0 {
		t.Errorf("rejected fund() changed the schedule: %+v", s)
	}
}
