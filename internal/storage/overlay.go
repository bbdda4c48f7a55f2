package storage

import (
	"sort"
	"strings"
)

// Overlay stages writes on top of a base DB. Reads see staged writes first.
// Nothing reaches the base until Commit, which applies the whole write set
// through a single Batch. Discard drops the write set.
//
// An Overlay is not safe for concurrent use; callers serialize access.
type Overlay struct {
	base   DB
	staged map[string][]byte // nil value marks a delete
}

// NewOverlay creates an empty overlay on base.
func NewOverlay(base DB) *Overlay {
	return &Overlay{base: base, staged: make(map[string][]byte)}
}

// Get returns the staged value if any, otherwise the base value.
func (o *Overlay) Get(key []byte) ([]byte, error) {
	if v, ok := o.staged[string(key)]; ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return cloneBytes(v), nil
	}
	return o.base.Get(key)
}

// Put stages a write.
func (o *Overlay) Put(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	o.staged[string(key)] = cloneBytes(value)
	return nil
}

// Delete stages a delete.
func (o *Overlay) Delete(key []byte) error {
	o.staged[string(key)] = nil
	return nil
}

// Has reports whether key exists in the merged view.
func (o *Overlay) Has(key []byte) (bool, error) {
	if v, ok := o.staged[string(key)]; ok {
		return v != nil, nil
	}
	return o.base.Has(key)
}

// ForEach iterates the merged view of base and staged writes in key order.
func (o *Overlay) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)
	if err := o.base.ForEach(prefix, func(k, v []byte) error {
		merged[string(k)] = cloneBytes(v)
		return nil
	}); err != nil {
		return err
	}
	p := string(prefix)
	for k, v := range o.staged {
		if !strings.HasPrefix(k, p) {
			continue
		}
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = cloneBytes(v)
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), merged[k]); err != nil {
			return err
		}
	}
	return nil
}

// Close discards staged writes. The base DB is left open.
func (o *Overlay) Close() error {
	o.Discard()
	return nil
}

// Pending returns the number of staged writes.
func (o *Overlay) Pending() int {
	return len(o.staged)
}

// Discard drops all staged writes.
func (o *Overlay) Discard() {
	o.staged = make(map[string][]byte)
}

// Commit applies the staged writes to the base DB and clears the overlay.
// When the base implements Batcher the write set lands atomically.
func (o *Overlay) Commit() error {
	if len(o.staged) == 0 {
		return nil
	}
	var batch Batch
	if b, ok := o.base.(Batcher); ok {
		batch = b.NewBatch()
	} else {
		batch = &sequentialBatch{db: o.base}
	}

	keys := make([]string, 0, len(o.staged))
	for k := range o.staged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := o.staged[k]
		var err error
		if v == nil {
			err = batch.Delete([]byte(k))
		} else {
			err = batch.Put([]byte(k), v)
		}
		if err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	o.Discard()
	return nil
}
