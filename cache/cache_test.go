package cache

import (
	"errors"
	"fmt"
	"testing"
)

type item struct {
	ID    uint64
	Name  string
	Tags  []string
	Extra *string
	Count int
}

func newItemStore() *Store[uint64, item] {
	return New(
		func(v *item) uint64 { return v.ID },
		func(v *item, k uint64) { v.ID = k },
	)
}

func TestPutDuplicate(t *testing.T) {
	s := newItemStore()
	if err := s.Put(item{ID: 1, Name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(item{ID: 1, Name: "b"}); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("want ErrDuplicateKey, got %v", err)
	}
	got, ok := s.Get(1)
	if !ok || got.Name != "a" {
		t.Errorf("first put should survive, got %+v", got)
	}
}

func TestUpdate(t *testing.T) {
	s := newItemStore()
	if err := s.Update(5, func(v *item) { v.Name = "x" }, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := s.Update(5, func(v *item) { v.Name = "x" }, true); err != nil {
		t.Fatal(err)
	}
	got, ok := s.Get(5)
	if !ok {
		t.Fatal("synthesized record missing")
	}
	if got.ID != 5 || got.Name != "x" {
		t.Errorf("got %+v", got)
	}
}

func TestUpdateReentryPanics(t *testing.T) {
	s := newItemStore()
	s.Put(item{ID: 1})
	defer func() {
		if recover() == nil {
			t.Error("reentrant call should panic")
		}
	}()
	s.Update(1, func(v *item) {
		s.Has(1)
	}, false)
}

func TestBoundedEviction(t *testing.T) {
	s := NewBounded(
		func(v *item) uint64 { return v.ID },
		func(v *item, k uint64) { v.ID = k },
		3,
	)
	for i := uint64(1); i <= 5; i++ {
		if err := s.Put(item{ID: i}); err != nil {
			t.Fatal(err)
		}
	}
	// 1 and 2 were the oldest insertions and must be gone.
	for _, k := range []uint64{1, 2} {
		if s.Has(k) {
			t.Errorf("key %d should have been evicted", k)
		}
	}
	for _, k := range []uint64{3, 4, 5} {
		if !s.Has(k) {
			t.Errorf("key %d should be present", k)
		}
	}
	if s.Len() != 3 {
		t.Errorf("len = %d, want 3", s.Len())
	}
}

func TestPatch(t *testing.T) {
	s := newItemStore()
	extra := "kept"
	s.Put(item{ID: 1, Name: "orig", Tags: []string{"t"}, Extra: &extra, Count: 3})

	// A patch with zero fields must not clear anything.
	if err := s.Patch(item{ID: 1}, false); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(1)
	if got.Name != "orig" || len(got.Tags) != 1 || got.Extra == nil || got.Count != 3 {
		t.Errorf("patch cleared fields: %+v", got)
	}

	// Set fields are copied.
	if err := s.Patch(item{ID: 1, Name: "new", Count: 9}, false); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(1)
	if got.Name != "new" || got.Count != 9 || len(got.Tags) != 1 {
		t.Errorf("got %+v", got)
	}

	// Patch on an absent key honors put-if-missing.
	if err := s.Patch(item{ID: 2, Name: "n"}, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := s.Patch(item{ID: 2, Name: "n"}, true); err != nil {
		t.Fatal(err)
	}
	if got, ok := s.Get(2); !ok || got.Name != "n" {
		t.Errorf("got %+v, ok=%v", got, ok)
	}
}

func TestRemoveAll(t *testing.T) {
	s := newItemStore()
	for i := uint64(1); i <= 3; i++ {
		s.Put(item{ID: i})
	}
	missing := s.RemoveAll([]uint64{2, 3, 9, 10})
	if len(missing) != 2 || missing[0] != 9 || missing[1] != 10 {
		t.Errorf("missing = %v", missing)
	}
	if !s.Has(1) || s.Has(2) || s.Has(3) {
		t.Error("wrong survivors")
	}
}

func TestRemove(t *testing.T) {
	s := newItemStore()
	s.Put(item{ID: 1})
	if !s.Remove(1) {
		t.Error("remove existing should report true")
	}
	if s.Remove(1) {
		t.Error("remove absent should report false")
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := newItemStore()
	done := make(chan bool)
	for g := 0; g < 8; g++ {
		go func(g int) {
			for i := 0; i < 500; i++ {
				k := uint64(g*1000 + i)
				s.Put(item{ID: k, Name: fmt.Sprint(k)})
				s.Get(k)
				s.Update(k, func(v *item) { v.Count++ }, false)
			}
			done <- true
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}
	if s.Len() != 8*500 {
		t.Errorf("len = %d", s.Len())
	}
}
