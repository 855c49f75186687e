package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
	"github.com/Perceptus-Labs/voicenav-go-sdk/transcript"
)

const transcriptKeyPrefix = "voicenav:transcript:"

// RedisTranscriptStore keeps one room's transcript in a Redis list.
type RedisTranscriptStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ transcript.Store = (*RedisTranscriptStore)(nil)

// NewRedisTranscriptStore stores roomName's messages. A positive ttl is
// refreshed on every append.
func NewRedisTranscriptStore(client *redis.Client, roomName string, ttl time.Duration) *RedisTranscriptStore {
	return &RedisTranscriptStore{
		client: client,
		key:    TranscriptKey(roomName),
		ttl:    ttl,
	}
}

func TranscriptKey(roomName string) string {
	return transcriptKeyPrefix + roomName
}

func (s *RedisTranscriptStore) AddMessage(ctx context.Context, msg models.ConversationMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (s *RedisTranscriptStore) Messages(ctx context.Context) ([]models.ConversationMessage, error) {
	return ReadTranscript(ctx, s.client, s.key)
}

func (s *RedisTranscriptStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}
	return nil
}

// ReadTranscript loads the messages stored under key, oldest first.
func ReadTranscript(ctx context.Context, client *redis.Client, key string) ([]models.ConversationMessage, error) {
	raw, err := client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	msgs := make([]models.ConversationMessage, 0, len(raw))
	for i, item := range raw {
		var msg models.ConversationMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("corrupt transcript entry %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
