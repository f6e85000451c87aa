package escrow

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-lock/internal/storage"
	"github.com/Klingon-tech/klingnet-lock/pkg/types"
	"github.com/google/uuid"
)

// Event is the TokensLocked notification of one successful lock.
type Event struct {
	Seq       uint64        `json:"seq"`
	ID        uuid.UUID     `json:"id"`
	Asset     types.AssetID `json:"asset"`
	Vault     types.Address `json:"vault"`
	Sender    types.Address `json:"sender"`
	Amount    uint64        `json:"amount"`
	Recipient string        `json:"recipient"`
	Timestamp int64         `json:"timestamp"`
}

// Notifier receives events after the lock that produced them has
// committed. Delivery is fire-and-forget: an error is logged and the lock
// stands.
type Notifier interface {
	Notify(ctx context.Context, ev *Event) error
}

// MaxEventsPage bounds a single Since query.
const MaxEventsPage = 1000

var (
	prefixEvent = []byte("e/")       // e/<seq(8)> -> json(Event)
	keyEventSeq = []byte("q/events") // last assigned seq
)

// EventStore is the persisted event log. Sequence numbers start at 1 and
// have no gaps.
type EventStore struct {
	state *storage.Serial
}

// NewEventStore returns the event log kept in state.
func NewEventStore(state *storage.Serial) *EventStore {
	return &EventStore{state: state}
}

func eventKey(seq uint64) []byte {
	key := make([]byte, len(prefixEvent)+8)
	copy(key, prefixEvent)
	binary.BigEndian.PutUint64(key[len(prefixEvent):], seq)
	return key
}

func lastSeq(r storage.Reader) (uint64, error) {
	raw, err := r.Get(keyEventSeq)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("event counter: bad length %d", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

// append assigns the next sequence number to ev and stages it on tx.
func (s *EventStore) append(tx *storage.Tx, ev *Event) error {
	seq, err := lastSeq(tx)
	if err != nil {
		return err
	}
	ev.Seq = seq + 1
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("event marshal: %w", err)
	}
	if err := tx.Put(eventKey(ev.Seq), data); err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], ev.Seq)
	return tx.Put(keyEventSeq, buf[:])
}

// Last returns the sequence number of the newest event, 0 if none.
func (s *EventStore) Last() (uint64, error) {
	var seq uint64
	err := s.state.View(func(r storage.Reader) error {
		var err error
		seq, err = lastSeq(r)
		return err
	})
	return seq, err
}

// Get returns the event with the given sequence number.
func (s *EventStore) Get(seq uint64) (*Event, error) {
	var ev Event
	err := s.state.View(func(r storage.Reader) error {
		raw, err := r.Get(eventKey(seq))
		if err != nil {
			return fmt.Errorf("event %d: %w", seq, err)
		}
		return json.Unmarshal(raw, &ev)
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Since returns up to limit events with sequence numbers >= from, oldest
// first. A limit of 0 or above MaxEventsPage means MaxEventsPage.
func (s *EventStore) Since(from uint64, limit int) ([]*Event, error) {
	if limit <= 0 || limit > MaxEventsPage {
		limit = MaxEventsPage
	}
	if from == 0 {
		from = 1
	}
	var out []*Event
	err := s.state.View(func(r storage.Reader) error {
		last, err := lastSeq(r)
		if err != nil {
			return err
		}
		for seq := from; seq <= last && len(out) < limit; seq++ {
			raw, err := r.Get(eventKey(seq))
			if err != nil {
				return fmt.Errorf("event %d: %w", seq, err)
			}
			var ev Event
			if err := json.Unmarshal(raw, &ev); err != nil {
				return fmt.Errorf("event %d: %w", seq, err)
			}
			out = append(out, &ev)
		}
		return nil
	})
	return out, err
}
