package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/taskman/internal/model"
)

const (
	redisSessionPrefix      = "taskman:session:"
	redisUserSessionsPrefix = "taskman:user_sessions:"
	redisExchangePrefix     = "taskman:exchange:"
)

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// セッションはTTL付きのJSONとして保存し、ユーザー単位の削除のためにIDの集合を別キーで保持する。
type RedisSessionRepo struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, now: time.Now}
}

type redisSession struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func sessionKey(id string) string          { return redisSessionPrefix + id }
func userSessionsKey(userID string) string { return redisUserSessionsPrefix + userID }
func exchangeKey(id string) string         { return redisExchangePrefix + id }

// ttlUntil は期限までの残り時間を返す。既に過ぎている場合は最小値の1msを返す。
func (r *RedisSessionRepo) ttlUntil(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(r.now())
	if ttl < time.Millisecond {
		return time.Millisecond
	}
	return ttl
}

// Create はセッションを保存する。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	payload, err := json.Marshal(redisSession{
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt.UTC(),
		CreatedAt: session.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), payload, r.ttlUntil(session.ExpiresAt))
	pipe.SAdd(ctx, userSessionsKey(session.UserID), session.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	val, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var rs redisSession
	if err := json.Unmarshal(val, &rs); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	return &model.Session{
		ID:        id,
		UserID:    rs.UserID,
		ExpiresAt: rs.ExpiresAt.UTC(),
		CreatedAt: rs.CreatedAt.UTC(),
	}, nil
}

// UpdateExpiry はセッションの有効期限とTTLを更新する。
// セッションが既に消えている場合は何もしない。
func (r *RedisSessionRepo) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	session, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	payload, err := json.Marshal(redisSession{
		UserID:    session.UserID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := r.client.SetXX(ctx, sessionKey(id), payload, r.ttlUntil(expiresAt)).Err(); err != nil {
		return fmt.Errorf("failed to update session expiry: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	session, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.SRem(ctx, userSessionsKey(session.UserID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *RedisSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	ids, err := r.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, userSessionsKey(userID))

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// ClaimExchange はSET NXでワンタイムIDの使用履歴を記録する。
func (r *RedisSessionRepo) ClaimExchange(ctx context.Context, id string, now, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	ok, err := r.client.SetNX(ctx, exchangeKey(id), now.UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim exchange id: %w", err)
	}
	return ok, nil
}

// DeleteExpired はユーザー単位の集合から失効済みセッションIDを取り除き、件数を返す。
// セッション本体と使用履歴はTTLで自動的に消える。
func (r *RedisSessionRepo) DeleteExpired(ctx context.Context, _ time.Time) (int64, error) {
	var removed int64
	iter := r.client.Scan(ctx, 0, redisUserSessionsPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()
		ids, err := r.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to list user sessions: %w", err)
		}
		for _, id := range ids {
			exists, err := r.client.Exists(ctx, sessionKey(id)).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to check session: %w", err)
			}
			if exists > 0 {
				continue
			}
			n, err := r.client.SRem(ctx, setKey, id).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to prune user sessions: %w", err)
			}
			removed += n
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan user sessions: %w", err)
	}
	return removed, nil
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
