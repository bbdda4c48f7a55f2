package vault

import (
	"context"
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingvault/pkg/types"
	"github.com/holiman/uint256"
)

// AuditReport compares the ledger against itself and against custody.
type AuditReport struct {
	Positions         int          `json:"positions"`
	SumStaked         *uint256.Int `json:"sum_staked"`
	TotalStaked       *uint256.Int `json:"total_staked"`
	StakeCustody      *uint256.Int `json:"stake_custody"`
	StakeObligations  *uint256.Int `json:"stake_obligations"`
	RewardCustody     *uint256.Int `json:"reward_custody"`
	RewardObligations *uint256.Int `json:"reward_obligations"`
	// RewardShortfall is obligations minus custody when custody falls short,
	// which only SetRewardRate can cause.
	RewardShortfall *uint256.Int `json:"reward_shortfall"`
	Consistent      bool         `json:"consistent"`
	Problems        []string     `json:"problems,omitempty"`
}

// Audit walks every position. It is an offline check and is never run by
// the operations themselves.
func (v *Vault) Audit(ctx context.Context) (*AuditReport, error) {
	var rep *AuditReport
	err := v.view(func(st *store, s *State) error {
		acc, err := s.accAt(v.now())
		if err != nil {
			return err
		}
		r := &AuditReport{
			SumStaked:         zero(),
			TotalStaked:       s.TotalStaked,
			RewardObligations: zero(),
			RewardShortfall:   zero(),
		}
		err = st.forEachPosition(func(_ types.Address, p *Position) error {
			r.Positions++
			var err error
			if r.SumStaked, err = add(r.SumStaked, p.Amount); err != nil {
				return err
			}
			pend, err := p.pending(acc)
			if err != nil {
				r.Problems = append(r.Problems, "negative pending reward: "+err.Error())
				return nil
			}
			r.RewardObligations, err = add(r.RewardObligations, pend)
			return err
		})
		if err != nil {
			return err
		}

		if r.StakeCustody, err = v.stake(v.db).BalanceOf(ctx, v.addr); err != nil {
			return err
		}
		if r.RewardCustody, err = v.reward(v.db).BalanceOf(ctx, v.addr); err != nil {
			return err
		}
		if r.StakeObligations, err = add(s.TotalStaked, s.CollectedFees); err != nil {
			return err
		}

		if !r.SumStaked.Eq(s.TotalStaked) {
			r.Problems = append(r.Problems, "sum of positions "+r.SumStaked.Dec()+" != total staked "+s.TotalStaked.Dec())
		}
		if r.StakeCustody.Lt(r.StakeObligations) {
			r.Problems = append(r.Problems, "stake custody "+r.StakeCustody.Dec()+" < obligations "+r.StakeObligations.Dec())
		}
		if r.RewardCustody.Lt(r.RewardObligations) {
			r.RewardShortfall = new(uint256.Int).Sub(r.RewardObligations, r.RewardCustody)
			r.Problems = append(r.Problems, "reward custody short by "+r.RewardShortfall.Dec())
		}
		r.Consistent = len(r.Problems) == 0
		rep = r
		return nil
	})
	return rep, err
}

// Err returns nil for a consistent report, otherwise an error listing the
// problems. Custody shortfalls wrap ErrCustodyShortfall.
func (r *AuditReport) Err() error {
	if r.Consistent {
		return nil
	}
	msg := strings.Join(r.Problems, "; ")
	if !r.RewardShortfall.IsZero() || r.StakeCustody.Lt(r.StakeObligations) {
		return fmt.Errorf("%w: %s", ErrCustodyShortfall, msg)
	}
	return fmt.Errorf("audit: %s", msg)
}
