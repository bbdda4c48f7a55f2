package token

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingvault/internal/log"
	"github.com/Klingon-tech/klingvault/internal/storage"
	"github.com/Klingon-tech/klingvault/pkg/types"
	"github.com/holiman/uint256"
)

// Ledger is a fungible token bound to one storage namespace. A Ledger holds
// no state of its own, so opening it on an overlay makes every write part
// of the overlay's write set.
type Ledger struct {
	db storage.DB
}

// Open binds a ledger to db. The namespace must already be initialized
// for anything but Init to succeed.
func Open(db storage.DB) *Ledger {
	return &Ledger{db: db}
}

// Init writes metadata and grants every role to admin.
func Init(db storage.DB, meta Metadata, admin types.Address) (*Ledger, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if admin.IsZero() {
		return nil, fmt.Errorf("token admin: %w", ErrZeroAddress)
	}
	if ok, err := db.Has(keyMeta); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInitialized
	}
	if err := storeMeta(db, &meta); err != nil {
		return nil, err
	}
	l := Open(db)
	for _, r := range []Role{AdminRole, MinterRole, PauserRole} {
		if err := db.Put(roleKey(r, admin), nil); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Metadata returns the token description.
func (l *Ledger) Metadata() (*Metadata, error) {
	return loadMeta(l.db)
}

// TotalSupply returns the circulating supply.
func (l *Ledger) TotalSupply() (*uint256.Int, error) {
	return getAmount(l.db, keySupply)
}

// BalanceOf returns the balance held by addr.
func (l *Ledger) BalanceOf(_ context.Context, addr types.Address) (*uint256.Int, error) {
	return getAmount(l.db, balKey(addr))
}

// Allowance returns how much spender may move on behalf of owner.
func (l *Ledger) Allowance(owner, spender types.Address) (*uint256.Int, error) {
	return getAmount(l.db, allowKey(owner, spender))
}

// Paused reports whether transfers are halted.
func (l *Ledger) Paused() (bool, error) {
	return l.db.Has(keyPaused)
}

// HasRole reports whether addr holds role r.
func (l *Ledger) HasRole(r Role, addr types.Address) (bool, error) {
	return l.db.Has(roleKey(r, addr))
}

// Approve sets the allowance of spender over owner's balance. The maximum
// uint256 value is treated as an unlimited allowance.
func (l *Ledger) Approve(ctx context.Context, owner, spender types.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if owner.IsZero() || spender.IsZero() {
		return ErrZeroAddress
	}
	return putAmount(l.db, allowKey(owner, spender), amount)
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(ctx context.Context, from, to types.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.checkPaused(); err != nil {
		return err
	}
	return l.move(from, to, amount)
}

// TransferFrom moves amount from owner to to, spending spender's allowance.
func (l *Ledger) TransferFrom(ctx context.Context, spender, owner, to types.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.checkPaused(); err != nil {
		return err
	}
	allowed, err := l.Allowance(owner, spender)
	if err != nil {
		return err
	}
	if !isUnlimited(allowed) {
		left, under := new(uint256.Int).SubOverflow(allowed, amount)
		if under {
			return fmt.Errorf("%w: allowance %s, need %s", ErrInsufficientAllowance, allowed.Dec(), amount.Dec())
		}
		if err := putAmount(l.db, allowKey(owner, spender), left); err != nil {
			return err
		}
	}
	return l.move(owner, to, amount)
}

// Mint creates amount new tokens for to. Caller must be a minter.
func (l *Ledger) Mint(ctx context.Context, caller, to types.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.requireRole(MinterRole, caller); err != nil {
		return err
	}
	if to.IsZero() {
		return ErrZeroAddress
	}
	if amount.IsZero() {
		return ErrZeroAmount
	}
	meta, err := l.Metadata()
	if err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	newSupply, over := new(uint256.Int).AddOverflow(supply, amount)
	if over {
		return ErrOverflow
	}
	if meta.capped() && newSupply.Gt(meta.MaxSupply) {
		return fmt.Errorf("%w: supply would be %s, cap %s", ErrMaxSupply, newSupply.Dec(), meta.MaxSupply.Dec())
	}
	bal, err := l.BalanceOf(ctx, to)
	if err != nil {
		return err
	}
	// Balance cannot overflow if supply did not.
	bal.Add(bal, amount)
	if err := putAmount(l.db, balKey(to), bal); err != nil {
		return err
	}
	if err := putAmount(l.db, keySupply, newSupply); err != nil {
		return err
	}
	log.Token.Debug().Str("symbol", meta.Symbol).Str("to", to.String()).Str("amount", amount.Dec()).Msg("Minted")
	return nil
}

// Burn destroys amount from an account. Caller must be a minter.
func (l *Ledger) Burn(ctx context.Context, caller, from types.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.requireRole(MinterRole, caller); err != nil {
		return err
	}
	return l.burn(from, amount)
}

// BurnSelf destroys amount of the holder's own balance.
func (l *Ledger) BurnSelf(ctx context.Context, holder types.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.burn(holder, amount)
}

// Pause halts transfers. Caller must be a pauser.
func (l *Ledger) Pause(caller types.Address) error {
	if err := l.requireRole(PauserRole, caller); err != nil {
		return err
	}
	return l.db.Put(keyPaused, flagSet)
}

// Unpause resumes transfers. Caller must be a pauser.
func (l *Ledger) Unpause(caller types.Address) error {
	if err := l.requireRole(PauserRole, caller); err != nil {
		return err
	}
	return l.db.Delete(keyPaused)
}

// GrantRole gives r to addr. Caller must be a token admin.
func (l *Ledger) GrantRole(caller types.Address, r Role, addr types.Address) error {
	if err := l.requireRole(AdminRole, caller); err != nil {
		return err
	}
	if addr.IsZero() {
		return ErrZeroAddress
	}
	return l.db.Put(roleKey(r, addr), nil)
}

// RevokeRole removes r from addr. Caller must be a token admin.
func (l *Ledger) RevokeRole(caller types.Address, r Role, addr types.Address) error {
	if err := l.requireRole(AdminRole, caller); err != nil {
		return err
	}
	return l.db.Delete(roleKey(r, addr))
}

// Holders lists every non-zero balance in address order.
func (l *Ledger) Holders() ([]Balance, error) {
	out := []Balance{}
	err := l.db.ForEach(prefixBal, func(key, value []byte) error {
		addr, err := types.HexToAddress(strings.TrimPrefix(string(key), string(prefixBal)))
		if err != nil {
			return nil // foreign key, skip
		}
		out = append(out, Balance{Address: addr, Amount: new(uint256.Int).SetBytes(value)})
		return nil
	})
	return out, err
}

func (l *Ledger) move(from, to types.Address, amount *uint256.Int) error {
	if from.IsZero() || to.IsZero() {
		return ErrZeroAddress
	}
	fromBal, err := getAmount(l.db, balKey(from))
	if err != nil {
		return err
	}
	left, under := new(uint256.Int).SubOverflow(fromBal, amount)
	if under {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal.Dec(), amount.Dec())
	}
	if from == to {
		return nil
	}
	if err := putAmount(l.db, balKey(from), left); err != nil {
		return err
	}
	toBal, err := getAmount(l.db, balKey(to))
	if err != nil {
		return err
	}
	sum, over := new(uint256.Int).AddOverflow(toBal, amount)
	if over {
		return ErrOverflow
	}
	return putAmount(l.db, balKey(to), sum)
}

func (l *Ledger) burn(from types.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}
	bal, err := getAmount(l.db, balKey(from))
	if err != nil {
		return err
	}
	left, under := new(uint256.Int).SubOverflow(bal, amount)
	if under {
		return fmt.Errorf("%w: have %s, burn %s", ErrInsufficientBalance, bal.Dec(), amount.Dec())
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	supply.Sub(supply, amount)
	if err := putAmount(l.db, balKey(from), left); err != nil {
		return err
	}
	return putAmount(l.db, keySupply, supply)
}

func (l *Ledger) checkPaused() error {
	paused, err := l.Paused()
	if err != nil {
		return err
	}
	if paused {
		return ErrPaused
	}
	return nil
}

func (l *Ledger) requireRole(r Role, caller types.Address) error {
	ok, err := l.HasRole(r, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s needs %s", ErrUnauthorized, caller, r)
	}
	return nil
}

var maxUint256 = new(uint256.Int).SetAllOne()

func isUnlimited(v *uint256.Int) bool {
	return v.Eq(maxUint256)
}

// IsTokenError reports whether err originated from a token ledger rule
// rather than from storage.
func IsTokenError(err error) bool {
	for _, e := range []error{
		ErrInsufficientBalance, ErrInsufficientAllowance, ErrPaused, ErrUnauthorized,
		ErrMaxSupply, ErrZeroAddress, ErrZeroAmount, ErrNotInitialized, ErrOverflow,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
