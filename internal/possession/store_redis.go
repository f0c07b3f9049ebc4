package possession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "biogate/pkg/domain"
	"biogate/pkg/platform/sentinel"
)

const sessionKeyPrefix = "pop:session:"

// RedisStore backs sessions with Redis for deployments where several
// gateway instances share session state. Expiry rides on the key TTL, so
// DeleteExpired is a no-op, and GETDEL gives Consume the required
// exactly-once semantics.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// redisSession is the stored shape. Field names are short on purpose; the
// payload lives only for the session TTL.
type redisSession struct {
	UserID     string    `json:"uid"`
	Modality   string    `json:"mod"`
	Commitment []byte    `json:"c"`
	Challenge  []byte    `json:"ch"`
	ProofKey   []byte    `json:"pk"`
	CreatedAt  time.Time `json:"cat"`
	ExpiresAt  time.Time `json:"eat"`
	State      State     `json:"st"`
}

func (s *RedisStore) Create(ctx context.Context, session *Session) error {
	payload, err := json.Marshal(redisSession{
		UserID:     session.UserID.String(),
		Modality:   session.Modality.String(),
		Commitment: session.Commitment,
		Challenge:  session.Challenge,
		ProofKey:   session.ProofKey,
		CreatedAt:  session.CreatedAt,
		ExpiresAt:  session.ExpiresAt,
		State:      session.State,
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return sentinel.ErrExpired
	}

	key := sessionKeyPrefix + session.ID.String()
	ok, err := s.client.SetNX(ctx, key, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, sessionID id.SessionID) (*Session, error) {
	key := sessionKeyPrefix + sessionID.String()
	payload, err := s.client.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume session: %w", err)
	}

	var stored redisSession
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &Session{
		ID:         sessionID,
		UserID:     id.UserID(stored.UserID),
		Modality:   id.Modality(stored.Modality),
		Commitment: stored.Commitment,
		Challenge:  stored.Challenge,
		ProofKey:   stored.ProofKey,
		CreatedAt:  stored.CreatedAt,
		ExpiresAt:  stored.ExpiresAt,
		State:      stored.State,
	}, nil
}

// DeleteExpired is a no-op: Redis evicts sessions via key TTL.
func (s *RedisStore) DeleteExpired(context.Context) (int, error) {
	return 0, nil
}
