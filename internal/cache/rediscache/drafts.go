package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/SortBox/internal/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const draftKeyPrefix = "wizard:draft:"

// DraftStore keeps wizard drafts as JSON with a sliding TTL.
type DraftStore struct {
	c   *redis.Client
	ttl time.Duration
}

func NewDraftStore(c *redis.Client, ttl time.Duration) *DraftStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &DraftStore{c: c, ttl: ttl}
}

func draftKey(id string) string {
	return draftKeyPrefix + id
}

func (s *DraftStore) Load(ctx context.Context, id string) (*models.WizardDraft, error) {
	b, err := s.c.Get(ctx, draftKey(id)).Bytes()
	if err == redis.Nil {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get draft")
	}
	var d models.WizardDraft
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, errors.Wrap(err, "decode draft")
	}
	return &d, nil
}

func (s *DraftStore) Save(ctx context.Context, d *models.WizardDraft) error {
	b, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "encode draft")
	}
	if err := s.c.Set(ctx, draftKey(d.ID), b, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set draft")
	}
	return nil
}

func (s *DraftStore) Delete(ctx context.Context, id string) error {
	if err := s.c.Del(ctx, draftKey(id)).Err(); err != nil {
		return errors.Wrap(err, "redis del draft")
	}
	return nil
}
