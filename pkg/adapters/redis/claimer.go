package redis

import (
	"context"
	"fmt"

	backend "github.com/redis/go-redis/v9"
)

// Claimer implements ports.SlotClaimer using Redis SET NX.
type Claimer struct {
	client *backend.Client
	prefix string
}

// NewClaimer creates a claimer storing claims under prefix + "slot:<id>".
func NewClaimer(client *backend.Client, prefix string) *Claimer {
	return &Claimer{
		client: client,
		prefix: prefix,
	}
}

func (c *Claimer) key(id uint32) string {
	return fmt.Sprintf("%sslot:%d", c.prefix, id)
}

// Claim takes id for owner if nobody holds it. Claims never expire: a slot is
// only freed by Release, which the last reference holder calls on reclaim.
func (c *Claimer) Claim(ctx context.Context, id uint32, owner string) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.key(id), owner, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis error claiming slot %d: %w", id, err)
	}
	return ok, nil
}

// Release frees id. Any process may release, because the process that drops
// the last reference is not necessarily the one that claimed the slot.
func (c *Claimer) Release(ctx context.Context, id uint32) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("redis error releasing slot %d: %w", id, err)
	}
	return nil
}

// Owner returns the current holder of id, or "" if the slot is free.
func (c *Claimer) Owner(ctx context.Context, id uint32) (string, error) {
	val, err := c.client.Get(ctx, c.key(id)).Result()
	if err == backend.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis error reading slot %d: %w", id, err)
	}
	return val, nil
}
