package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

// NoticeRepository keeps the most recent user-facing notices per session, newest first.
type NoticeRepository interface {
	Push(ctx context.Context, sessionKey string, notice domain.Notice) error
	List(ctx context.Context, sessionKey string, limit int) ([]domain.Notice, error)
	Clear(ctx context.Context, sessionKey string) error
}

type noticeRecord struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	TicketID  string    `json:"ticket_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toNoticeRecord(n domain.Notice) noticeRecord {
	return noticeRecord{ID: n.ID, Level: n.Level, Text: n.Text, TicketID: n.TicketID, CreatedAt: n.CreatedAt}
}

func (r noticeRecord) toDomain() domain.Notice {
	return domain.Notice{ID: r.ID, Level: r.Level, Text: r.Text, TicketID: r.TicketID, CreatedAt: r.CreatedAt}
}

type redisNoticeRepository struct {
	client *redis.Client
	cap    int
	ttl    time.Duration
}

// NewRedisNoticeRepository stores notices in a capped Redis list per session.
func NewRedisNoticeRepository(client *redis.Client, capacity int, ttl time.Duration) NoticeRepository {
	if capacity <= 0 {
		capacity = 50
	}
	return &redisNoticeRepository{client: client, cap: capacity, ttl: ttl}
}

func noticeKey(sessionKey string) string {
	return "ticketdesk:notices:" + sessionKey
}

func (r *redisNoticeRepository) Push(ctx context.Context, sessionKey string, notice domain.Notice) error {
	payload, err := json.Marshal(toNoticeRecord(notice))
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	key := noticeKey(sessionKey)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, int64(r.cap-1))
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	return err
}

func (r *redisNoticeRepository) List(ctx context.Context, sessionKey string, limit int) ([]domain.Notice, error) {
	if limit <= 0 || limit > r.cap {
		limit = r.cap
	}
	raw, err := r.client.LRange(ctx, noticeKey(sessionKey), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	notices := make([]domain.Notice, 0, len(raw))
	for _, item := range raw {
		var rec noticeRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal notice: %w", err)
		}
		notices = append(notices, rec.toDomain())
	}
	return notices, nil
}

func (r *redisNoticeRepository) Clear(ctx context.Context, sessionKey string) error {
	return r.client.Del(ctx, noticeKey(sessionKey)).Err()
}

type memoryNoticeRepository struct {
	mu      sync.Mutex
	cap     int
	notices map[string][]domain.Notice
}

// NewMemoryNoticeRepository keeps notices in process memory.
func NewMemoryNoticeRepository(capacity int) NoticeRepository {
	if capacity <= 0 {
		capacity = 50
	}
	return &memoryNoticeRepository{cap: capacity, notices: make(map[string][]domain.Notice)}
}

func (r *memoryNoticeRepository) Push(_ context.Context, sessionKey string, notice domain.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append([]domain.Notice{notice}, r.notices[sessionKey]...)
	if len(list) > r.cap {
		list = list[:r.cap]
	}
	r.notices[sessionKey] = list
	return nil
}

func (r *memoryNoticeRepository) List(_ context.Context, sessionKey string, limit int) ([]domain.Notice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.notices[sessionKey]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return append([]domain.Notice(nil), list...), nil
}

func (r *memoryNoticeRepository) Clear(_ context.Context, sessionKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.notices, sessionKey)
	return nil
}
