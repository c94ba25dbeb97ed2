// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

// Package redisstore serves materialized score sets from Redis. Each
// (user, model version) set is a list of JSON entries in rank order and
// each user has a set of live model versions. Every item also has a
// reverse index of the score sets listing it, so subject deletion visits
// only those sets. Replacements run in a WATCHed MULTI/EXEC transaction
// so readers see the old list or the new one.
//
// Key layout, with the configured prefix:
//
//	{prefix}:scoreset:{user_id}:{model_version}  LIST of JSON entries
//	{prefix}:scoreversions:{user_id}             SET of model versions
//	{prefix}:itemsets:{item_id}                  SET of scoreset keys
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/featurestore/internal/config"
	"github.com/tomtom215/featurestore/internal/logging"
	"github.com/tomtom215/featurestore/internal/metrics"
	"github.com/tomtom215/featurestore/internal/models"
	"github.com/tomtom215/featurestore/internal/validation"
)

const backend = "redis"

// maxWatchRetries bounds optimistic retries on a WATCHed list.
const maxWatchRetries = 5

// entry is the stored form of one ranked score.
type entry struct {
	ID          uuid.UUID          `json:"id"`
	ItemID      uuid.UUID          `json:"item_id"`
	Score       float64            `json:"score"`
	Rank        int                `json:"rank"`
	Explanation map[string]float64 `json:"explanation,omitempty"`
	ComputedAt  time.Time          `json:"computed_at"`
}

// ScoreStore implements featurestore.ScoreRepository on Redis.
type ScoreStore struct {
	client *redis.Client
	prefix string
}

// New connects to cfg.Addr and verifies the connection.
func New(ctx context.Context, cfg *config.RedisConfig) (*ScoreStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}
	logging.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("Redis score store ready")
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *ScoreStore {
	if prefix == "" {
		prefix = "featurestore"
	}
	return &ScoreStore{client: client, prefix: prefix}
}

// Name identifies the backend in metrics and errors.
func (s *ScoreStore) Name() string { return backend }

// Ping checks connectivity.
func (s *ScoreStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *ScoreStore) Close() error {
	return s.client.Close()
}

func (s *ScoreStore) setKey(userID uuid.UUID, modelVersion string) string {
	return s.prefix + ":scoreset:" + userID.String() + ":" + modelVersion
}

func (s *ScoreStore) versionsKey(userID uuid.UUID) string {
	return s.prefix + ":scoreversions:" + userID.String()
}

func (s *ScoreStore) itemKey(itemID uuid.UUID) string {
	return s.prefix + ":itemsets:" + itemID.String()
}

// ReplaceScores swaps the list for (userID, modelVersion) atomically. An
// empty scores slice deletes the set.
func (s *ScoreStore) ReplaceScores(ctx context.Context, userID uuid.UUID, modelVersion string, scores []models.RecommendationScore) (err error) {
	values := make([]any, len(scores))
	items := make([]uuid.UUID, len(scores))
	for i := range scores {
		if err := validation.ValidateStruct(&scores[i]); err != nil {
			return err
		}
		b, err := json.Marshal(entryFor(&scores[i]))
		if err != nil {
			return fmt.Errorf("%w: encode score entry: %v", models.ErrInvalidInput, err)
		}
		values[i] = b
		items[i] = scores[i].ItemID
	}
	if err := models.CheckScoreSet(scores); err != nil {
		return err
	}

	start := time.Now()
	defer func() { observe("replace_scores", start, err) }()

	return storeErr("replace_scores", s.swap(ctx, userID, modelVersion, values, items))
}

// swap replaces one list and keeps the item index in step with it. Items
// that drop out of the list lose their index entry for it.
func (s *ScoreStore) swap(ctx context.Context, userID uuid.UUID, modelVersion string, values []any, items []uuid.UUID) error {
	setKey, versionsKey := s.setKey(userID, modelVersion), s.versionsKey(userID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, setKey, 0, -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		previous, err := decodeItems(raw)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, setKey)
			for _, item := range droppedItems(previous, items) {
				pipe.SRem(ctx, s.itemKey(item), setKey)
			}
			if len(values) == 0 {
				pipe.SRem(ctx, versionsKey, modelVersion)
				return nil
			}
			pipe.RPush(ctx, setKey, values...)
			pipe.SAdd(ctx, versionsKey, modelVersion)
			for _, item := range items {
				pipe.SAdd(ctx, s.itemKey(item), setKey)
			}
			return nil
		})
		return err
	}
	return s.watch(ctx, txf, setKey)
}

// watch runs txf under WATCH on keys, retrying lost optimistic races.
func (s *ScoreStore) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("update %v: %w", keys, redis.TxFailedErr)
}

// TopScores returns up to limit entries in rank order.
func (s *ScoreStore) TopScores(ctx context.Context, userID uuid.UUID, modelVersion string, limit int) (out []models.RankedItem, err error) {
	if limit <= 0 {
		return []models.RankedItem{}, nil
	}
	start := time.Now()
	defer func() { observe("top_scores", start, err) }()

	raw, err := s.client.LRange(ctx, s.setKey(userID, modelVersion), 0, int64(limit-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, storeErr("top_scores", err)
	}

	out = make([]models.RankedItem, 0, len(raw))
	for _, r := range raw {
		var e entry
		if err = json.Unmarshal([]byte(r), &e); err != nil {
			return nil, storeErr("top_scores", fmt.Errorf("decode score entry: %w", err))
		}
		out = append(out, models.RankedItem{ItemID: e.ItemID, Score: e.Score, Rank: e.Rank, Explanation: e.Explanation})
	}
	return out, nil
}

// ModelVersions lists the user's live versions, sorted.
func (s *ScoreStore) ModelVersions(ctx context.Context, userID uuid.UUID) (versions []string, err error) {
	start := time.Now()
	defer func() { observe("model_versions", start, err) }()

	versions, err = s.client.SMembers(ctx, s.versionsKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, storeErr("model_versions", err)
	}
	sort.Strings(versions)
	return versions, nil
}

// DeleteSubject drops the subject's own score sets and removes it as an
// item from every set its index lists. Surviving ranks are not renumbered
// and a set left empty is deleted. The cost is proportional to the sets
// involved, not to the keyspace.
func (s *ScoreStore) DeleteSubject(ctx context.Context, subjectID uuid.UUID) (err error) {
	start := time.Now()
	defer func() { observe("delete_subject", start, err) }()

	versionsKey := s.versionsKey(subjectID)
	versions, err := s.client.SMembers(ctx, versionsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return storeErr("delete_subject", err)
	}
	for _, v := range versions {
		if err = s.swap(ctx, subjectID, v, nil, nil); err != nil {
			return storeErr("delete_subject", err)
		}
	}
	if err = s.client.Del(ctx, versionsKey).Err(); err != nil {
		return storeErr("delete_subject", err)
	}

	itemKey := s.itemKey(subjectID)
	sets, err := s.client.SMembers(ctx, itemKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return storeErr("delete_subject", err)
	}
	for _, key := range sets {
		if err = s.removeItem(ctx, key, subjectID); err != nil {
			return storeErr("delete_subject", err)
		}
	}
	if len(sets) > 0 {
		members := make([]any, len(sets))
		for i, key := range sets {
			members[i] = key
		}
		if err = s.client.SRem(ctx, itemKey, members...).Err(); err != nil {
			return storeErr("delete_subject", err)
		}
	}
	return nil
}

// removeItem filters itemID out of one list under WATCH so that a
// concurrent replace is never clobbered.
func (s *ScoreStore) removeItem(ctx context.Context, key string, itemID uuid.UUID) error {
	userID, version, ok := s.parseSetKey(key)
	if !ok {
		return nil
	}
	versionsKey := s.versionsKey(userID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		kept := make([]any, 0, len(raw))
		for _, r := range raw {
			var e entry
			if err := json.Unmarshal([]byte(r), &e); err != nil {
				return fmt.Errorf("decode score entry: %w", err)
			}
			if e.ItemID != itemID {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(raw) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(kept) == 0 {
				pipe.SRem(ctx, versionsKey, version)
				return nil
			}
			pipe.RPush(ctx, key, kept...)
			return nil
		})
		return err
	}

	return s.watch(ctx, txf, key)
}

func (s *ScoreStore) parseSetKey(key string) (uuid.UUID, string, bool) {
	rest, ok := strings.CutPrefix(key, s.prefix+":scoreset:")
	if !ok {
		return uuid.Nil, "", false
	}
	userPart, version, ok := strings.Cut(rest, ":")
	if !ok {
		return uuid.Nil, "", false
	}
	userID, err := uuid.Parse(userPart)
	if err != nil {
		return uuid.Nil, "", false
	}
	return userID, version, true
}

// decodeItems returns the item IDs of a stored list.
func decodeItems(raw []string) ([]uuid.UUID, error) {
	items := make([]uuid.UUID, len(raw))
	for i, r := range raw {
		var e entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode score entry: %w", err)
		}
		items[i] = e.ItemID
	}
	return items, nil
}

// droppedItems returns the members of previous absent from next.
func droppedItems(previous, next []uuid.UUID) []uuid.UUID {
	keep := make(map[uuid.UUID]struct{}, len(next))
	for _, id := range next {
		keep[id] = struct{}{}
	}
	var out []uuid.UUID
	for _, id := range previous {
		if _, ok := keep[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func entryFor(s *models.RecommendationScore) entry {
	return entry{
		ID:          s.ID,
		ItemID:      s.ItemID,
		Score:       s.Score,
		Rank:        s.Rank,
		Explanation: s.Explanation,
		ComputedAt:  models.StorageTime(s.ComputedAt),
	}
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(backend, op, time.Since(start), err)
}

func storeErr(op string, err error) error {
	if err == nil || errors.Is(err, models.ErrInvalidInput) {
		return err
	}
	return models.NewStoreError(backend, op, err)
}
