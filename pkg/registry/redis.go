package registry

import (
	"context"
	"fmt"
	"log"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// RedisRegistry implements Registry on top of a Redis hash-plus-pubsub
// pipeline, the way pkg/redis/client.go's WriteAndPublishString does:
// scalar fields via HSet, a Publish on the same key so subscribers
// wake up, all inside one pipelined round trip.
type RedisRegistry struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedis connects to addr and verifies the connection with a Ping,
// mirroring the teacher's redis.New.
func NewRedis(addr, password string, db int) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRegistry{client: client, ctx: ctx}, nil
}

// Publish writes snap's scalar fields into the "ev3:<port>" hash,
// CBOR-encodes the per-mode descriptors into a single "modes" field,
// and publishes on the same key.
func (r *RedisRegistry) Publish(port string, snap Snapshot) error {
	key := "ev3:" + port

	modes, err := cbor.Marshal(snap.Modes)
	if err != nil {
		return fmt.Errorf("failed to encode mode descriptors: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, key,
		"type_id", snap.TypeID,
		"num_modes", snap.NumModes,
		"num_view_modes", snap.NumViewModes,
		"current_mode", snap.CurrentMode,
		"modes", modes,
	)
	pipe.Publish(r.ctx, key, fmt.Sprintf("type_id:%d", snap.TypeID))
	if _, err := pipe.Exec(r.ctx); err != nil {
		return fmt.Errorf("failed to publish sensor descriptor for %s: %w", port, err)
	}
	return nil
}

// Reconnect logs lastError through the same log.Printf diagnostics the
// teacher uses everywhere else; a reconnecting sensor does not get a
// fresh descriptor written (spec.md section 4.4).
func (r *RedisRegistry) Reconnect(port string, lastError string) {
	if lastError == "" {
		log.Printf("ev3uart: sensor reconnected on %s", port)
		return
	}
	log.Printf("ev3uart: sensor reconnected on %s, last error: %s", port, lastError)
}

// Close releases the underlying Redis client.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
