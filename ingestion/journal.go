package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Divergence is a document whose facts are in the structured store but which
// the semantic engine has not accepted yet.
type Divergence struct {
	DocumentID  string            `json:"source_document_id"`
	Text        string            `json:"text"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Reason      string            `json:"reason"`
	Attempts    int               `json:"attempts"`
	FirstSeen   time.Time         `json:"first_seen"`
	LastAttempt time.Time         `json:"last_attempt"`
}

// Journal keeps the set of diverged documents until they are replayed.
// Record on an existing document bumps Attempts and keeps FirstSeen.
type Journal interface {
	Record(ctx context.Context, d Divergence) error
	Pending(ctx context.Context) ([]Divergence, error)
	Resolve(ctx context.Context, documentID string) error
}

func merge(prev *Divergence, d Divergence) Divergence {
	if d.Attempts <= 0 {
		d.Attempts = 1
	}
	if prev != nil {
		d.Attempts += prev.Attempts
		d.FirstSeen = prev.FirstSeen
	}
	if d.FirstSeen.IsZero() {
		d.FirstSeen = d.LastAttempt
	}
	return d
}

func sortPending(out []Divergence) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].FirstSeen.Before(out[j].FirstSeen)
	})
}

// MemoryJournal is a process-local Journal. Its contents are lost on restart.
type MemoryJournal struct {
	mu      sync.Mutex
	entries map[string]Divergence
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: map[string]Divergence{}}
}

func (j *MemoryJournal) Record(_ context.Context, d Divergence) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var prev *Divergence
	if p, ok := j.entries[d.DocumentID]; ok {
		prev = &p
	}
	j.entries[d.DocumentID] = merge(prev, d)
	return nil
}

func (j *MemoryJournal) Pending(_ context.Context) ([]Divergence, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Divergence, 0, len(j.entries))
	for _, d := range j.entries {
		out = append(out, d)
	}
	sortPending(out)
	return out, nil
}

func (j *MemoryJournal) Resolve(_ context.Context, documentID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.entries, documentID)
	return nil
}

// DefaultJournalKey is the Redis hash holding one field per diverged document.
const DefaultJournalKey = "signal-store:divergence"

// RedisJournal keeps divergences in a Redis hash so they survive restarts and
// are shared between instances.
type RedisJournal struct {
	client *redis.Client
	key    string
}

func NewRedisJournal(client *redis.Client, key string) *RedisJournal {
	if key == "" {
		key = DefaultJournalKey
	}
	return &RedisJournal{client: client, key: key}
}

// NewRedisClient connects to addr and pings it.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// recordRetries bounds optimistic retries when another writer touches the
// journal between WATCH and EXEC.
const recordRetries = 10

// Record merges d into the stored entry under WATCH so concurrent recorders
// never lose an attempt.
func (j *RedisJournal) Record(ctx context.Context, d Divergence) error {
	txf := func(tx *redis.Tx) error {
		var prev *Divergence
		raw, err := tx.HGet(ctx, j.key, d.DocumentID).Result()
		switch {
		case err == redis.Nil:
		case err != nil:
			return fmt.Errorf("journal read %s: %w", d.DocumentID, err)
		default:
			var p Divergence
			if json.Unmarshal([]byte(raw), &p) == nil {
				prev = &p
			}
		}

		payload, err := json.Marshal(merge(prev, d))
		if err != nil {
			return fmt.Errorf("journal encode %s: %w", d.DocumentID, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, j.key, d.DocumentID, payload)
			return nil
		})
		return err
	}

	for i := 0; i < recordRetries; i++ {
		err := j.client.Watch(ctx, txf, j.key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("journal write %s: %w", d.DocumentID, err)
	}
	return fmt.Errorf("journal write %s: too much contention", d.DocumentID)
}

func (j *RedisJournal) Pending(ctx context.Context) ([]Divergence, error) {
	all, err := j.client.HGetAll(ctx, j.key).Result()
	if err != nil {
		return nil, fmt.Errorf("journal list: %w", err)
	}
	out := make([]Divergence, 0, len(all))
	for id, raw := range all {
		var d Divergence
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("journal decode %s: %w", id, err)
		}
		out = append(out, d)
	}
	sortPending(out)
	return out, nil
}

func (j *RedisJournal) Resolve(ctx context.Context, documentID string) error {
	if err := j.client.HDel(ctx, j.key, documentID).Err(); err != nil {
		return fmt.Errorf("journal resolve %s: %w", documentID, err)
	}
	return nil
}
