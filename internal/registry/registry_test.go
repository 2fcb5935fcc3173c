package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/LuKks/protobee/internal/core/domain"
)

func TestAddAndGet(t *testing.T) {
	r := New[string, int]()

	id := r.Add("conn1", 100)
	if id == 0 {
		t.Fatal("Add() returned id 0")
	}

	val, err := r.Get("conn1", id)
	if err != nil || val != 100 {
		t.Errorf("Get(conn1, %d) = (%d, %v), want (100, nil)", id, val, err)
	}

	if got := r.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestOwnership(t *testing.T) {
	r := New[string, int]()
	id := r.Add("conn1", 1)

	if _, err := r.Get("conn2", id); !errors.Is(err, domain.ErrProtocolViolation) {
		t.Errorf("Get from other owner error = %v, want ErrProtocolViolation", err)
	}
	if _, err := r.Delete("conn2", id); !errors.Is(err, domain.ErrProtocolViolation) {
		t.Errorf("Delete from other owner error = %v, want ErrProtocolViolation", err)
	}

	// The entry survives the foreign attempts.
	if _, err := r.Get("conn1", id); err != nil {
		t.Errorf("Get(conn1) after foreign delete error = %v", err)
	}

	if _, err := r.Get("conn1", id+1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	r := New[string, string]()
	a := r.Add("conn1", "a")
	b := r.Add("conn1", "b")

	val, err := r.Delete("conn1", a)
	if err != nil || val != "a" {
		t.Errorf("Delete(a) = (%q, %v), want (a, nil)", val, err)
	}
	if _, err := r.Get("conn1", a); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
	}
	if _, err := r.Delete("conn1", a); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
	if got := r.Owned("conn1"); got != 1 {
		t.Errorf("Owned(conn1) = %d, want 1", got)
	}
	if _, err := r.Get("conn1", b); err != nil {
		t.Errorf("Get(b) error = %v", err)
	}
}

func TestDrainOne(t *testing.T) {
	r := New[string, int]()
	r.Add("conn1", 1)
	r.Add("conn1", 2)
	r.Add("conn2", 3)

	var drained []int
	for {
		v, ok := r.DrainOne("conn1")
		if !ok {
			break
		}
		drained = append(drained, v)
	}

	if len(drained) != 2 || drained[0] != 1 || drained[1] != 2 {
		t.Errorf("drained = %v, want [1 2]", drained)
	}
	if got := r.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 (conn2 untouched)", got)
	}
	if got := r.Owned("conn1"); got != 0 {
		t.Errorf("Owned(conn1) = %d, want 0", got)
	}
}

func TestUniqueIDs(t *testing.T) {
	r := New[int, int]()
	seen := make(map[ID]bool)
	for i := 0; i < 10000; i++ {
		id := r.Add(i%4, i)
		if id == 0 || seen[id] {
			t.Fatalf("Add() returned duplicate or zero id %d", id)
		}
		seen[id] = true
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New[int, int]()
	var wg sync.WaitGroup

	for owner := 0; owner < 8; owner++ {
		wg.Add(1)
		go func(owner int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := r.Add(owner, i)
				if v, err := r.Get(owner, id); err != nil || v != i {
					t.Errorf("Get(%d, %d) = (%d, %v)", owner, id, v, err)
					return
				}
				if i%2 == 0 {
					if _, err := r.Delete(owner, id); err != nil {
						t.Errorf("Delete(%d, %d) error = %v", owner, id, err)
						return
					}
				}
			}
		}(owner)
	}
	wg.Wait()

	if got := r.Len(); got != 8*250 {
		t.Errorf("Len() = %d, want %d", got, 8*250)
	}
}
