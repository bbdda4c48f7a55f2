package vault

import (
	"github.com/Klingon-tech/klingvault/pkg/types"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// EventType names a committed vault operation.
type EventType string

// Event types.
const (
	EventInitialized        EventType = "Initialized"
	EventDeposit            EventType = "Deposit"
	EventWithdraw           EventType = "Withdraw"
	EventClaim              EventType = "Claim"
	EventEmergencyWithdraw  EventType = "EmergencyWithdraw"
	EventRewardsFunded      EventType = "RewardsFunded"
	EventRewardRateUpdated  EventType = "RewardRateUpdated"
	EventLockPeriodUpdated  EventType = "LockPeriodUpdated"
	EventStakeLimitsUpdated EventType = "StakeLimitsUpdated"
	EventEmergencyFeeUpdate EventType = "EmergencyFeeUpdated"
	EventPaused             EventType = "Paused"
	EventUnpaused           EventType = "Unpaused"
	EventRoleGranted        EventType = "RoleGranted"
	EventRoleRevoked        EventType = "RoleRevoked"
	EventFeesCollected      EventType = "FeesCollected"
)

// Event is an append-only record of a committed operation.
type Event struct {
	Seq    uint64        `json:"seq"`
	ID     string        `json:"id"`
	Type   EventType     `json:"type"`
	Time   uint64        `json:"time"`
	Caller types.Address `json:"caller"`

	Amount *uint256.Int      `json:"amount,omitempty"`
	Reward *uint256.Int      `json:"reward,omitempty"`
	Fee    *uint256.Int      `json:"fee,omitempty"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

func newEvent(typ EventType, now uint64, caller types.Address) *Event {
	return &Event{
		ID:     uuid.New().String(),
		Type:   typ,
		Time:   now,
		Caller: caller,
	}
}

func (e *Event) with(k, v string) *Event {
	if e.Attrs == nil {
		e.Attrs = make(map[string]string)
	}
	e.Attrs[k] = v
	return e
}
