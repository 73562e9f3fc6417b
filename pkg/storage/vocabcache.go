package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/ehrprep/pkg/common/logger"
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
)

// VocabularyCache keeps decoded vocabularies in Redis so repeated runs over the
// same tokenized data skip re-reading large vocabulary files.
type VocabularyCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewVocabularyCache(client *redis.Client, prefix string, ttl time.Duration) *VocabularyCache {
	if prefix == "" {
		prefix = "ehrprep:"
	}
	return &VocabularyCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *VocabularyCache) key(path string) string {
	return fmt.Sprintf("%svocabulary:%s", c.prefix, path)
}

func (c *VocabularyCache) Get(ctx context.Context, path string) (patientdata.Vocabulary, bool, error) {
	data, err := c.client.Get(ctx, c.key(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var vocab patientdata.Vocabulary
	if err := json.Unmarshal(data, &vocab); err != nil {
		return nil, false, fmt.Errorf("decode cached vocabulary: %w", err)
	}
	logger.Log.WithField("key", c.key(path)).Debug("vocabulary cache hit")
	return vocab, true, nil
}

func (c *VocabularyCache) Set(ctx context.Context, path string, vocab patientdata.Vocabulary) error {
	data, err := json.Marshal(vocab)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(path), data, c.ttl).Err()
}

func (c *VocabularyCache) Invalidate(ctx context.Context, path string) error {
	return c.client.Del(ctx, c.key(path)).Err()
}
