package storage

import "sync"

// Serial serializes state transitions over a DB. Each Update runs alone,
// sees its own staged writes, and commits them as one atomic batch; a
// failing Update leaves the store untouched.
type Serial struct {
	mu sync.RWMutex
	db DB
}

// NewSerial wraps db.
func NewSerial(db DB) *Serial {
	return &Serial{db: db}
}

// DB returns the underlying store.
func (s *Serial) DB() DB {
	return s.db
}

// Update runs fn inside an exclusive transaction. Writes staged on the Tx
// are committed only if fn returns nil.
func (s *Serial) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s.db)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// View runs fn with a reader that no Update can interleave with.
func (s *Serial) View(fn func(r Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.db)
}

// Tx is a staged set of writes layered over a DB.
type Tx struct {
	db     DB
	ops    []batchOp
	staged map[string]int // key -> index into ops
}

func newTx(db DB) *Tx {
	return &Tx{db: db, staged: make(map[string]int)}
}

// Get returns the staged value for key if any, else the stored one.
func (tx *Tx) Get(key []byte) ([]byte, error) {
	if i, ok := tx.staged[string(key)]; ok {
		if tx.ops[i].value == nil {
			return nil, ErrNotFound
		}
		return append([]byte(nil), tx.ops[i].value...), nil
	}
	return tx.db.Get(key)
}

// Has reports whether key exists, honoring staged writes.
func (tx *Tx) Has(key []byte) (bool, error) {
	if i, ok := tx.staged[string(key)]; ok {
		return tx.ops[i].value != nil, nil
	}
	return tx.db.Has(key)
}

// Put stages a write.
func (tx *Tx) Put(key, value []byte) error {
	tx.stage(batchOp{key: append([]byte(nil), key...), value: append([]byte{}, value...)})
	return nil
}

// Delete stages a removal.
func (tx *Tx) Delete(key []byte) error {
	tx.stage(batchOp{key: append([]byte(nil), key...)})
	return nil
}

func (tx *Tx) stage(op batchOp) {
	if i, ok := tx.staged[string(op.key)]; ok {
		tx.ops[i] = op
		return
	}
	tx.staged[string(op.key)] = len(tx.ops)
	tx.ops = append(tx.ops, op)
}

func (tx *Tx) commit() error {
	if len(tx.ops) == 0 {
		return nil
	}
	b := newBatch(tx.db)
	for _, op := range tx.ops {
		var err error
		if op.value == nil {
			err = b.Delete(op.key)
		} else {
			err = b.Put(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	return b.Commit()
}

// newBatch returns db's native batch, or a sequential fallback for stores
// that cannot batch.
func newBatch(db DB) Batch {
	if b, ok := db.(Batcher); ok {
		return b.NewBatch()
	}
	return &sequentialBatch{db: db}
}

// sequentialBatch applies writes one by one. It is not atomic.
type sequentialBatch struct {
	db  DB
	ops []batchOp
}

func (sb *sequentialBatch) Put(key, value []byte) error {
	sb.ops = append(sb.ops, batchOp{key: key, value: append([]byte{}, value...)})
	return nil
}

func (sb *sequentialBatch) Delete(key []byte) error {
	sb.ops = append(sb.ops, batchOp{key: key})
	return nil
}

func (sb *sequentialBatch) Commit() error {
	for _, op := range sb.ops {
		var err error
		if op.value == nil {
			err = sb.db.Delete(op.key)
		} else {
			err = sb.db.Put(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
