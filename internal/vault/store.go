package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingvault/internal/storage"
	"github.com/Klingon-tech/klingvault/pkg/types"
)

// Key layout inside the vault namespace.
var (
	keyState    = []byte("state")
	prefixPos   = []byte("pos/")  // pos/<addr hex> -> Position JSON
	prefixRole  = []byte("role/") // role/<role>/<addr hex> -> empty
	prefixEvent = []byte("ev/")   // ev/<seq %016x> -> Event JSON
)

// Namespace is the key prefix the vault occupies in the shared database.
var Namespace = []byte("v/")

// store persists vault records as JSON.
type store struct {
	db storage.DB
}

func newStore(db storage.DB) *store {
	return &store{db: db}
}

func posKey(a types.Address) []byte {
	return append(append([]byte{}, prefixPos...), a.Hex()...)
}

func roleKey(r Role, a types.Address) []byte {
	k := append(append([]byte{}, prefixRole...), string(r)...)
	k = append(k, '/')
	return append(k, a.Hex()...)
}

func eventKey(seq uint64) []byte {
	return append(append([]byte{}, prefixEvent...), fmt.Sprintf("%016x", seq)...)
}

func (s *store) getJSON(key []byte, v any) (bool, error) {
	data, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("vault get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("vault decode %s: %w", key, err)
	}
	return true, nil
}

func (s *store) putJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("vault encode %s: %w", key, err)
	}
	return s.db.Put(key, data)
}

func (s *store) initialized() (bool, error) {
	return s.db.Has(keyState)
}

func (s *store) loadState() (*State, error) {
	var st State
	ok, err := s.getJSON(keyState, &st)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	st.normalize()
	return &st, nil
}

func (s *store) saveState(st *State) error {
	return s.putJSON(keyState, st)
}

// position returns the stored position or a fresh zero position.
func (s *store) position(a types.Address) (*Position, error) {
	p := newPosition()
	if _, err := s.getJSON(posKey(a), p); err != nil {
		return nil, err
	}
	p.normalize()
	return p, nil
}

func (s *store) hasPosition(a types.Address) (bool, error) {
	return s.db.Has(posKey(a))
}

func (s *store) savePosition(a types.Address, p *Position) error {
	return s.putJSON(posKey(a), p)
}

// forEachPosition visits every stored position in address order.
func (s *store) forEachPosition(fn func(types.Address, *Position) error) error {
	return s.db.ForEach(prefixPos, func(key, value []byte) error {
		addr, err := types.HexToAddress(strings.TrimPrefix(string(key), string(prefixPos)))
		if err != nil {
			return fmt.Errorf("corrupt position key %q: %w", key, err)
		}
		p := newPosition()
		if err := json.Unmarshal(value, p); err != nil {
			return fmt.Errorf("corrupt position %s: %w", addr.Hex(), err)
		}
		p.normalize()
		return fn(addr, p)
	})
}

func (s *store) hasRole(r Role, a types.Address) (bool, error) {
	return s.db.Has(roleKey(r, a))
}

func (s *store) setRole(r Role, a types.Address, granted bool) error {
	if granted {
		return s.db.Put(roleKey(r, a), nil)
	}
	return s.db.Delete(roleKey(r, a))
}

// roleMembers lists the holders of r.
func (s *store) roleMembers(r Role) ([]types.Address, error) {
	prefix := string(roleKey(r, types.Address{}))
	prefix = prefix[:len(prefix)-2*types.AddressSize]
	out := []types.Address{}
	err := s.db.ForEach([]byte(prefix), func(key, _ []byte) error {
		a, err := types.HexToAddress(strings.TrimPrefix(string(key), prefix))
		if err != nil {
			return fmt.Errorf("corrupt role key %q: %w", key, err)
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

func (s *store) putEvent(ev *Event) error {
	return s.putJSON(eventKey(ev.Seq), ev)
}

// events returns up to limit events with Seq in [from, last], oldest
// first. Sequence numbers are dense, so each event is a point lookup.
func (s *store) events(from, last uint64, limit int) ([]Event, error) {
	out := []Event{}
	for seq := max(from, 1); seq <= last; seq++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		var ev Event
		ok, err := s.getJSON(eventKey(seq), &ev)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("missing event %d of %d", seq, last)
		}
		out = append(out, ev)
	}
	return out, nil
}
