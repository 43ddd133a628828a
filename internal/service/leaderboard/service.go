// Package leaderboard serves ranked balance listings with a short-lived
// Redis cache in front of the ledger table.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/praxislms/progression-engine/internal/cache"
	"github.com/praxislms/progression-engine/internal/models"
	"github.com/praxislms/progression-engine/internal/progression"
	"github.com/praxislms/progression-engine/internal/repository"
	"github.com/praxislms/progression-engine/pkg/logger"
)

// Supported ranking metrics.
const (
	MetricCoins = "coins"
	MetricXP    = "xp"
)

// DefaultLimit is used when a caller does not ask for a specific size.
const DefaultLimit = 10

// MaxLimit caps a single listing.
const MaxLimit = 100

// Repository interface for ranked balance reads.
type Repository interface {
	TopBalances(orderBy string, limit int) ([]models.LedgerBalance, error)
}

// Entry is one ranked row.
type Entry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Coins  int64  `json:"coins"`
	XP     int64  `json:"xp"`
}

// Service answers leaderboard queries. The cache is best-effort: a Redis
// failure degrades to a direct database read.
type Service struct {
	repo  Repository
	cache cache.Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewService creates a new leaderboard service.
func NewService(repo *repository.LedgerRepository, c cache.Cache, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{repo: repo, cache: c, ttl: ttl, log: log}
}

// NewServiceWithInterfaces creates a new leaderboard service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(repo Repository, c cache.Cache, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{repo: repo, cache: c, ttl: ttl, log: log}
}

// Top returns the highest balances ranked by the given metric.
func (s *Service) Top(ctx context.Context, metric string, limit int) ([]Entry, error) {
	if metric != MetricCoins && metric != MetricXP {
		return nil, fmt.Errorf("%w: unknown leaderboard metric %q", progression.ErrInvalidArgument, metric)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	key := fmt.Sprintf("leaderboard:%s:%d", metric, limit)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Leaderboard cache read failed")
		} else if cached != "" {
			var entries []Entry
			if err := json.Unmarshal([]byte(cached), &entries); err == nil {
				return entries, nil
			}
			s.log.Warn().Str("key", key).Msg("Discarding malformed leaderboard cache entry")
		}
	}

	balances, err := s.repo.TopBalances(metric, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(balances))
	for i, b := range balances {
		entries[i] = Entry{
			Rank:   i + 1,
			UserID: b.UserID,
			Coins:  b.Coins,
			XP:     b.XP,
		}
	}

	if s.cache != nil {
		if payload, err := json.Marshal(entries); err == nil {
			if err := s.cache.Set(ctx, key, string(payload), s.ttl); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("Leaderboard cache write failed")
			}
		}
	}
	return entries, nil
}
