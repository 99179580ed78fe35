// Package telemetry is the optional fan-out of radio events to Redis
// pub/sub and InfluxDB, both subscribing to the same radio.Backend
// subscription feed the event sink and echo/beacon actors use. Neither
// writer is load-bearing: publish/write failures are logged and
// swallowed rather than surfaced to the radio actors, the same
// fire-and-log posture spec.md §4.5 asks of the beacon's transmit.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/blasphemetheus/d2d-responder/internal/radio"
)

// RedisConfig mirrors the teacher's RedisContextConfig shape (host,
// port, password, db, pool sizing) narrowed to what a pub/sub publisher
// needs, with a channel name in place of a key prefix.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	Channel      string
}

// wireEvent is the JSON shape published to the telemetry channel.
type wireEvent struct {
	Kind      string   `json:"kind"`
	HexBytes  string   `json:"hex_bytes,omitempty"`
	RssiDbm   *int     `json:"rssi_dbm,omitempty"`
	SnrDb     *float32 `json:"snr_db,omitempty"`
	Tag       string   `json:"tag,omitempty"`
	Timestamp int64    `json:"timestamp_unix_ms"`
}

// RedisPublisher publishes every subscribed radio.Event as JSON onto a
// single pub/sub channel and keeps running tx/rx counters in Redis.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

// NewRedisPublisher connects and pings, per the teacher's
// connect-then-Ping pattern in NewRedisContextStorage.
func NewRedisPublisher(cfg RedisConfig, log *zap.Logger) (*RedisPublisher, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6379
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}
	if cfg.Channel == "" {
		cfg.Channel = "d2d-responder:events"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("telemetry: connect to redis: %w", err)
	}

	return &RedisPublisher{client: client, channel: cfg.Channel, log: log}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, ev radio.Event) {
	wire := wireEvent{Kind: string(ev.Kind), Tag: ev.Tag, Timestamp: time.Now().UnixMilli()}
	switch ev.Kind {
	case radio.EventTx:
		wire.HexBytes = radio.EncodeHex(ev.Payload)
	case radio.EventRx:
		wire.HexBytes = radio.EncodeHex(ev.Frame.Bytes)
		wire.RssiDbm = ev.Frame.RssiDbm
		wire.SnrDb = ev.Frame.SnrDb
	}

	data, err := json.Marshal(wire)
	if err != nil {
		p.warn("marshal event", err)
		return
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.warn("publish event", err)
		return
	}

	counterKey := "d2d-responder:count:" + string(ev.Kind)
	if err := p.client.Incr(ctx, counterKey).Err(); err != nil {
		p.warn("increment counter", err)
	}
}

func (p *RedisPublisher) warn(op string, err error) {
	if p.log != nil {
		p.log.Warn("telemetry: redis "+op+" failed", zap.Error(err))
	}
}

func (p *RedisPublisher) Close() error { return p.client.Close() }
