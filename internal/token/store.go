package token

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingvault/internal/storage"
	"github.com/Klingon-tech/klingvault/pkg/types"
	"github.com/holiman/uint256"
)

// Key layout inside a ledger namespace.
var (
	keyMeta     = []byte("meta")
	keySupply   = []byte("supply")
	keyPaused   = []byte("paused")
	prefixBal   = []byte("bal/")   // bal/<addr hex> -> 32-byte amount
	prefixAllow = []byte("allow/") // allow/<owner hex>/<spender hex> -> 32-byte amount
	prefixRole  = []byte("role/")  // role/<role>/<addr hex> -> empty
	flagSet     = []byte{1}
)

func balKey(a types.Address) []byte {
	return append(append([]byte{}, prefixBal...), a.Hex()...)
}

func allowKey(owner, spender types.Address) []byte {
	k := append(append([]byte{}, prefixAllow...), owner.Hex()...)
	k = append(k, '/')
	return append(k, spender.Hex()...)
}

func roleKey(r Role, a types.Address) []byte {
	k := append(append([]byte{}, prefixRole...), string(r)...)
	k = append(k, '/')
	return append(k, a.Hex()...)
}

// getAmount reads a 32-byte big-endian amount. Missing keys read as zero.
func getAmount(db storage.DB, key []byte) (*uint256.Int, error) {
	data, err := db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return new(uint256.Int).SetBytes(data), nil
}

// putAmount writes an amount. Zero amounts delete the key.
func putAmount(db storage.DB, key []byte, v *uint256.Int) error {
	if v.IsZero() {
		return db.Delete(key)
	}
	b := v.Bytes32()
	return db.Put(key, b[:])
}

func loadMeta(db storage.DB) (*Metadata, error) {
	data, err := db.Get(keyMeta)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("token meta get: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("token meta unmarshal: %w", err)
	}
	return &m, nil
}

func storeMeta(db storage.DB, m *Metadata) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("token meta marshal: %w", err)
	}
	return db.Put(keyMeta, data)
}
