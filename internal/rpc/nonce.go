package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingvault/internal/storage"
	"github.com/Klingon-tech/klingvault/pkg/types"
)

// ErrStaleNonce is returned for a nonce at or below the last accepted one.
var ErrStaleNonce = errors.New("nonce already used")

// nonceNamespace holds the last accepted call nonce per account.
const nonceNamespace = "acct/nonce/"

// NonceStore tracks the last accepted call nonce per account. Nonces must
// strictly increase; gaps are allowed.
type NonceStore struct {
	mu sync.Mutex
	db storage.DB
}

// NewNonceStore creates a nonce store over db.
func NewNonceStore(db storage.DB) *NonceStore {
	return &NonceStore{db: storage.NewPrefixDB(db, []byte(nonceNamespace))}
}

// Get returns the last accepted nonce for addr, zero if none.
func (n *NonceStore) Get(addr types.Address) (uint64, error) {
	data, err := n.db.Get([]byte(addr.Hex()))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("nonce get: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("nonce for %s: corrupt value", addr)
	}
	return binary.BigEndian.Uint64(data), nil
}

// Consume records nonce for addr if it is above the last accepted one.
// A consumed nonce stays consumed even if the call it carried fails.
func (n *NonceStore) Consume(addr types.Address, nonce uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	last, err := n.Get(addr)
	if err != nil {
		return err
	}
	if nonce <= last {
		return fmt.Errorf("%w: got %d, last %d", ErrStaleNonce, nonce, last)
	}
	return n.db.Put([]byte(addr.Hex()), binary.BigEndian.AppendUint64(nil, nonce))
}
