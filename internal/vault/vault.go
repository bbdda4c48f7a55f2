// Package vault implements the staking vault: a single-asset pool that pays
// a second asset as rewards, pro rata to stake and time.
//
// All state lives in a storage.DB namespace. Every mutating operation runs
// serialized against a write overlay that also backs the stake and reward
// token ledgers, so ledger effects and token movements commit together or
// not at all.
package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/klingvault/internal/log"
	"github.com/Klingon-tech/klingvault/internal/metrics"
	"github.com/Klingon-tech/klingvault/internal/storage"
	"github.com/Klingon-tech/klingvault/pkg/types"
	"github.com/holiman/uint256"
)

// MaxLockPeriod bounds SetLockPeriod.
const MaxLockPeriod = uint64(365 * 24 * 60 * 60)

// Token is the subset of a fungible token the vault needs.
type Token interface {
	BalanceOf(ctx context.Context, owner types.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, from, to types.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, spender, owner, to types.Address, amount *uint256.Int) error
}

// TokenOpener binds a token to the database an operation writes through.
// Ledgers backed by the same database join the operation's atomic commit.
type TokenOpener func(db storage.DB) Token

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config wires a Vault to its collaborators.
type Config struct {
	DB     storage.DB
	Stake  TokenOpener
	Reward TokenOpener
	// Address is the custody account. Defaults to types.ModuleAddress("vault").
	Address types.Address
	Clock   Clock
	Metrics *metrics.Vault
}

// Vault is the staking vault.
type Vault struct {
	db      storage.DB
	stake   TokenOpener
	reward  TokenOpener
	addr    types.Address
	clock   Clock
	metrics *metrics.Vault

	sem chan struct{} // serializes operations
	mu  sync.RWMutex  // excludes readers during commit
}

// New creates a vault. Call Initialize once before first use of a fresh
// database.
func New(cfg Config) (*Vault, error) {
	if cfg.DB == nil || cfg.Stake == nil || cfg.Reward == nil {
		return nil, fmt.Errorf("vault: db and both token openers are required")
	}
	v := &Vault{
		db:      cfg.DB,
		stake:   cfg.Stake,
		reward:  cfg.Reward,
		addr:    cfg.Address,
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
		sem:     make(chan struct{}, 1),
	}
	if v.addr.IsZero() {
		v.addr = types.ModuleAddress("vault")
	}
	if v.clock == nil {
		v.clock = systemClock{}
	}
	return v, nil
}

// Address returns the custody account holding staked and reward tokens.
func (v *Vault) Address() types.Address {
	return v.addr
}

func (v *Vault) now() uint64 {
	t := v.clock.Now().Unix()
	if t < 0 {
		return 0
	}
	return uint64(t)
}

// Params are the admin-tunable vault parameters.
type Params struct {
	LockPeriod      uint64       `json:"lock_period"`
	MinStake        *uint256.Int `json:"min_stake"`
	MaxStake        *uint256.Int `json:"max_stake"`
	EmergencyFeeBps uint16       `json:"emergency_fee_bps"`
}

// Validate applies the same bounds as the admin setters.
func (p Params) Validate() error {
	if err := validateLockPeriod(p.LockPeriod); err != nil {
		return err
	}
	if err := validateFee(p.EmergencyFeeBps); err != nil {
		return err
	}
	return validateLimits(p.MinStake, p.MaxStake)
}

func validateLockPeriod(d uint64) error {
	if d > MaxLockPeriod {
		return fmt.Errorf("%w: %ds > %ds", ErrLockOutOfBounds, d, MaxLockPeriod)
	}
	return nil
}

func validateFee(bps uint16) error {
	if bps > MaxEmergencyFeeBps {
		return fmt.Errorf("%w: %d bps > %d", ErrFeeOutOfBounds, bps, MaxEmergencyFeeBps)
	}
	return nil
}

func validateLimits(minStake, maxStake *uint256.Int) error {
	if minStake == nil || maxStake == nil {
		return fmt.Errorf("%w: min and max are required", ErrInvalidLimits)
	}
	if maxStake.IsZero() {
		return fmt.Errorf("%w: max stake must be positive", ErrInvalidLimits)
	}
	if minStake.Gt(maxStake) {
		return fmt.Errorf("%w: min %s > max %s", ErrInvalidLimits, minStake.Dec(), maxStake.Dec())
	}
	return nil
}

type reentryKey struct{}

// op is the context of one in-flight mutating operation.
type op struct {
	ctx    context.Context
	now    uint64
	caller types.Address
	st     *store
	gate   gate
	state  *State
	stake  Token
	reward Token
	vault  types.Address
	events []*Event
}

func (o *op) emit(e *Event) {
	o.events = append(o.events, e)
}

// acquire takes the operation slot. A context already inside one of this
// vault's operations is rejected instead of deadlocking.
func (v *Vault) acquire(ctx context.Context) (context.Context, func(), error) {
	if owner, _ := ctx.Value(reentryKey{}).(*Vault); owner == v {
		return nil, nil, ErrReentrantCall
	}
	select {
	case v.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	return context.WithValue(ctx, reentryKey{}, v), func() { <-v.sem }, nil
}

// exec runs fn as one atomic operation: it loads state into an overlay,
// lets fn mutate it and move tokens, then persists events and state and
// commits. Any error discards the whole write set.
func (v *Vault) exec(ctx context.Context, name string, caller types.Address, fn func(o *op) error) error {
	start := time.Now()
	err := v.run(ctx, name, caller, fn)
	v.metrics.ObserveOp(name, err, time.Since(start))
	if err != nil {
		log.Vault.Debug().Str("op", name).Str("caller", caller.String()).Err(err).Msg("Rejected")
	}
	return err
}

func (v *Vault) run(ctx context.Context, name string, caller types.Address, fn func(o *op) error) error {
	ctx, release, err := v.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	overlay := storage.NewOverlay(v.db)
	defer overlay.Discard()

	st := newStore(storage.NewPrefixDB(overlay, Namespace))
	state, err := st.loadState()
	if err != nil {
		return err
	}
	o := &op{
		ctx:    ctx,
		now:    v.now(),
		caller: caller,
		st:     st,
		gate:   gate{st: st},
		state:  state,
		stake:  v.stake(overlay),
		reward: v.reward(overlay),
		vault:  v.addr,
	}
	if err := fn(o); err != nil {
		return err
	}
	if err := v.persist(o); err != nil {
		return err
	}
	if err := v.commit(overlay); err != nil {
		return fmt.Errorf("%s commit: %w", name, err)
	}

	for _, ev := range o.events {
		logEvent(name, ev)
	}
	v.metrics.SetState(metrics.Snapshot{
		TotalStaked:       state.TotalStaked,
		RewardRate:        state.RewardRate,
		AccRewardPerShare: state.AccRewardPerShare,
		CollectedFees:     state.CollectedFees,
		Paused:            state.Paused,
	})
	return nil
}

func (v *Vault) persist(o *op) error {
	for _, ev := range o.events {
		o.state.EventSeq++
		ev.Seq = o.state.EventSeq
		if err := o.st.putEvent(ev); err != nil {
			return err
		}
	}
	return o.st.saveState(o.state)
}

func (v *Vault) commit(overlay *storage.Overlay) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return overlay.Commit()
}

// Atomic runs fn against an overlay of the vault's database under the same
// serialization as vault operations and commits its writes if fn succeeds.
// It is used for direct token ledger operations that share the database.
func (v *Vault) Atomic(ctx context.Context, name string, fn func(ctx context.Context, db storage.DB) error) error {
	ctx, release, err := v.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	overlay := storage.NewOverlay(v.db)
	defer overlay.Discard()
	if err := fn(ctx, overlay); err != nil {
		return err
	}
	if err := v.commit(overlay); err != nil {
		return fmt.Errorf("%s commit: %w", name, err)
	}
	return nil
}

// Initialize creates the vault state and grants every role to admin. It
// fails if the vault already exists.
func (v *Vault) Initialize(ctx context.Context, admin types.Address, p Params) error {
	if admin.IsZero() {
		return fmt.Errorf("vault admin: %w", ErrZeroAddress)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	return v.Atomic(ctx, "initialize", func(_ context.Context, db storage.DB) error {
		st := newStore(storage.NewPrefixDB(db, Namespace))
		if ok, err := st.initialized(); err != nil {
			return err
		} else if ok {
			return ErrAlreadyInitialized
		}
		now := v.now()
		state := &State{
			LastUpdateTime:  now,
			LockPeriod:      p.LockPeriod,
			MinStake:        clone(p.MinStake),
			MaxStake:        clone(p.MaxStake),
			EmergencyFeeBps: p.EmergencyFeeBps,
		}
		state.normalize()
		o := &op{now: now, caller: admin, st: st, state: state}
		o.emit(newEvent(EventInitialized, now, admin).
			with("lock_period", fmt.Sprint(p.LockPeriod)).
			with("min_stake", state.MinStake.Dec()).
			with("max_stake", state.MaxStake.Dec()).
			with("emergency_fee_bps", fmt.Sprint(p.EmergencyFeeBps)))
		for _, r := range Roles {
			if err := st.setRole(r, admin, true); err != nil {
				return err
			}
			o.emit(newEvent(EventRoleGranted, now, admin).with("role", string(r)).with("account", admin.String()))
		}
		if err := v.persist(o); err != nil {
			return err
		}
		log.Vault.Info().
			Str("admin", admin.String()).
			Uint64("lock_period", p.LockPeriod).
			Str("min_stake", state.MinStake.Dec()).
			Str("max_stake", state.MaxStake.Dec()).
			Uint16("fee_bps", p.EmergencyFeeBps).
			Msg("Vault initialized")
		return nil
	})
}

// Initialized reports whether the vault state exists.
func (v *Vault) Initialized() (bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return newStore(storage.NewPrefixDB(v.db, Namespace)).initialized()
}

func logEvent(op string, ev *Event) {
	e := log.Vault.Info().
		Str("op", op).
		Uint64("seq", ev.Seq).
		Str("caller", ev.Caller.String())
	if ev.Amount != nil {
		e = e.Str("amount", ev.Amount.Dec())
	}
	if ev.Reward != nil {
		e = e.Str("reward", ev.Reward.Dec())
	}
	if ev.Fee != nil {
		e = e.Str("fee", ev.Fee.Dec())
	}
	for k, val := range ev.Attrs {
		e = e.Str(k, val)
	}
	e.Msg(string(ev.Type))
}
