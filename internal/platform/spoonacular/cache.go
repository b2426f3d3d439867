package spoonacular

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// SearchCache keeps recent search results in Redis so repeated queries do not
// burn through the upstream API quota.
type SearchCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSearchCache connects to Redis and verifies the connection.
func NewSearchCache(addr string, ttl time.Duration) (*SearchCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &SearchCache{client: client, ttl: ttl}, nil
}

// Get returns the cached results for a query, or false on a miss. Cache
// errors degrade to a miss; the caller falls through to the upstream.
func (c *SearchCache) Get(ctx context.Context, query string) ([]RecipeSummary, bool) {
	data, err := c.client.Get(ctx, searchKey(query)).Bytes()
	if err != nil {
		return nil, false
	}

	var summaries []RecipeSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, false
	}
	return summaries, true
}

// Set stores search results under the query key with the configured TTL.
func (c *SearchCache) Set(ctx context.Context, query string, summaries []RecipeSummary) error {
	data, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("failed to marshal search results: %w", err)
	}

	if err := c.client.Set(ctx, searchKey(query), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set search cache: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *SearchCache) Close() error {
	return c.client.Close()
}

func searchKey(query string) string {
	return "search:" + strings.ToLower(strings.TrimSpace(query))
}
