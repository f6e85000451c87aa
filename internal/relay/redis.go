package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingnet-lock/internal/escrow"
	klog "github.com/Klingon-tech/klingnet-lock/internal/log"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog"
)

// Envelope is the message pushed for each event.
type Envelope struct {
	Event   *escrow.Event `json:"event"`
	Payload string        `json:"payload"` // 0x-prefixed ABI encoding
}

// RedisPublisher appends events to a Redis list with RPUSH.
type RedisPublisher struct {
	pool   *redis.Pool
	list   string
	logger zerolog.Logger
}

func timeoutDialOptions(timeout time.Duration) []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(timeout),
		redis.DialReadTimeout(timeout),
		redis.DialWriteTimeout(timeout),
	}
}

// NewRedisPublisher creates a publisher pushing to list on the Redis server
// at addr.
func NewRedisPublisher(addr, list string, timeout time.Duration) *RedisPublisher {
	pool := &redis.Pool{
		MaxIdle:     5,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr, timeoutDialOptions(timeout)...)
		},
	}
	return newRedisPublisher(pool, list)
}

func newRedisPublisher(pool *redis.Pool, list string) *RedisPublisher {
	return &RedisPublisher{
		pool:   pool,
		list:   list,
		logger: klog.WithComponent("relay").With().Str("list", list).Logger(),
	}
}

// Notify pushes ev to the list.
func (p *RedisPublisher) Notify(ctx context.Context, ev *escrow.Event) error {
	payload, err := Payload(ev)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(&Envelope{Event: ev, Payload: hexutil.Encode(payload)})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	conn, err := p.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer conn.Close()

	n, err := redis.Int(redis.DoContext(conn, ctx, "RPUSH", p.list, msg))
	if err != nil {
		return fmt.Errorf("redis rpush %s: %w", p.list, err)
	}
	p.logger.Debug().Uint64("seq", ev.Seq).Int("length", n).Msg("event published")
	return nil
}

// Close releases pooled connections.
func (p *RedisPublisher) Close() error {
	return p.pool.Close()
}
