package storage

import (
	"errors"
	"testing"
)

func TestPrefixDB_Namespaces(t *testing.T) {
	inner := NewMemory()
	susd := NewPrefixDB(inner, []byte("tok/sUSD/"))
	rwd := NewPrefixDB(inner, []byte("tok/RWD/"))

	susd.Put([]byte("bal"), []byte("1"))
	rwd.Put([]byte("bal"), []byte("2"))

	if v, _ := susd.Get([]byte("bal")); string(v) != "1" {
		t.Errorf("sUSD bal = %q", v)
	}
	if v, _ := rwd.Get([]byte("bal")); string(v) != "2" {
		t.Errorf("RWD bal = %q", v)
	}
	if v, _ := inner.Get([]byte("tok/sUSD/bal")); string(v) != "1" {
		t.Errorf("inner key not prefixed, got %q", v)
	}

	susd.Delete([]byte("bal"))
	if _, err := susd.Get([]byte("bal")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete() err = %v", err)
	}
	if ok, _ := rwd.Has([]byte("bal")); !ok {
		t.Error("delete leaked across namespaces")
	}
}

func TestPrefixDB_ForEachStripsPrefix(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("ns/"))
	db.Put([]byte("b/2"), []byte("y"))
	db.Put([]byte("b/1"), []byte("x"))
	inner.Put([]byte("b/3"), []byte("outside"))

	var keys []string
	db.ForEach([]byte("b/"), func(k, _ []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	if len(keys) != 2 || keys[0] != "b/1" || keys[1] != "b/2" {
		t.Fatalf("keys = %v, want [b/1 b/2]", keys)
	}
}

func TestPrefixDB_BatchUsesInner(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("p/"))

	b := db.NewBatch()
	if _, ok := b.(*prefixBatch); !ok {
		t.Fatalf("NewBatch() = %T, want *prefixBatch", b)
	}
	b.Put([]byte("k"), []byte("v"))
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	if v, _ := inner.Get([]byte("p/k")); string(v) != "v" {
		t.Errorf("inner p/k = %q", v)
	}
}

// plainDB hides MemoryDB's Batcher implementation.
type plainDB struct{ DB }

func TestPrefixDB_BatchFallback(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(plainDB{inner}, []byte("p/"))
	inner.Put([]byte("p/gone"), []byte("1"))

	b := db.NewBatch()
	b.Put([]byte("k"), []byte("v"))
	b.Delete([]byte("gone"))
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	if v, _ := inner.Get([]byte("p/k")); string(v) != "v" {
		t.Errorf("inner p/k = %q", v)
	}
	if ok, _ := inner.Has([]byte("p/gone")); ok {
		t.Error("p/gone not deleted")
	}
}
