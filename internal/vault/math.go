package vault

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Precision scales accRewardPerShare.
var Precision = uint256.NewInt(1_000_000_000_000_000_000)

// BpsDenominator is the basis-point scale for fees.
const BpsDenominator = 10_000

// MaxEmergencyFeeBps caps the emergency withdrawal fee at 50%.
const MaxEmergencyFeeBps = 5_000

func zero() *uint256.Int { return new(uint256.Int) }

func clone(x *uint256.Int) *uint256.Int {
	if x == nil {
		return zero()
	}
	return new(uint256.Int).Set(x)
}

func add(a, b *uint256.Int) (*uint256.Int, error) {
	z, over := new(uint256.Int).AddOverflow(a, b)
	if over {
		return nil, fmt.Errorf("%w: %s + %s", ErrOverflow, a.Dec(), b.Dec())
	}
	return z, nil
}

func sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, under := new(uint256.Int).SubOverflow(a, b)
	if under {
		return nil, fmt.Errorf("%w: %s - %s", ErrOverflow, a.Dec(), b.Dec())
	}
	return z, nil
}

func mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, over := new(uint256.Int).MulOverflow(a, b)
	if over {
		return nil, fmt.Errorf("%w: %s * %s", ErrOverflow, a.Dec(), b.Dec())
	}
	return z, nil
}

// mulDiv returns floor(a*b/d) using a 512-bit intermediate product.
func mulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrOverflow)
	}
	z, over := new(uint256.Int).MulDivOverflow(a, b, d)
	if over {
		return nil, fmt.Errorf("%w: %s * %s / %s", ErrOverflow, a.Dec(), b.Dec(), d.Dec())
	}
	return z, nil
}

func addSeconds(t, d uint64) (uint64, error) {
	if t+d < t {
		return 0, fmt.Errorf("%w: timestamp %d + %d", ErrOverflow, t, d)
	}
	return t + d, nil
}
