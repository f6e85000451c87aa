package storage

import (
	"errors"
	"sync"
	"testing"
)

func TestSerial_UpdateCommits(t *testing.T) {
	s := NewSerial(NewMemory())

	err := s.Update(func(tx *Tx) error {
		tx.Put([]byte("a"), []byte("1"))
		// Reads see staged writes.
		v, err := tx.Get([]byte("a"))
		if err != nil || string(v) != "1" {
			t.Errorf("tx.Get(a) = %q, %v", v, err)
		}
		tx.Delete([]byte("a"))
		if ok, _ := tx.Has([]byte("a")); ok {
			t.Error("tx.Has(a) after staged delete = true")
		}
		if _, err := tx.Get([]byte("a")); !errors.Is(err, ErrNotFound) {
			t.Errorf("tx.Get(a) after delete err = %v", err)
		}
		tx.Put([]byte("b"), []byte("2"))
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if ok, _ := s.DB().Has([]byte("a")); ok {
		t.Error("a should not exist after commit")
	}
	if v, err := s.DB().Get([]byte("b")); err != nil || string(v) != "2" {
		t.Errorf("b = %q, %v; want 2", v, err)
	}
}

func TestSerial_UpdateErrorDiscards(t *testing.T) {
	s := NewSerial(NewMemory())
	boom := errors.New("boom")

	err := s.Update(func(tx *Tx) error {
		tx.Put([]byte("a"), []byte("1"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update err = %v, want boom", err)
	}
	if ok, _ := s.DB().Has([]byte("a")); ok {
		t.Error("staged write leaked from failed Update")
	}
}

func TestSerial_ConcurrentIncrements(t *testing.T) {
	s := NewSerial(NewMemory())
	key := []byte("counter")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(tx *Tx) error {
				v, err := tx.Get(key)
				if err != nil && !errors.Is(err, ErrNotFound) {
					return err
				}
				n := 0
				if len(v) > 0 {
					n = int(v[0])
				}
				return tx.Put(key, []byte{byte(n + 1)})
			})
		}()
	}
	wg.Wait()

	var got byte
	s.View(func(r Reader) error {
		v, err := r.Get(key)
		if err == nil {
			got = v[0]
		}
		return err
	})
	if got != 50 {
		t.Errorf("counter = %d, want 50", got)
	}
}
