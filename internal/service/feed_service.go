package service

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/metrics"
	"github.com/prn-tf/hermes/internal/repository"
)

// FeedConfig contains feed paging settings.
type FeedConfig struct {
	// DefaultPageSize is used when a caller asks for no particular size.
	DefaultPageSize int

	// MaxPageSize caps every page.
	MaxPageSize int
}

// DefaultFeedConfig returns sensible defaults.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		DefaultPageSize: 30,
		MaxPageSize:     100,
	}
}

// FeedService aggregates the posts visible to a user: their own and those of
// everyone they follow, newest first.
type FeedService struct {
	posts   repository.MicropostRepository
	metrics *metrics.Metrics
	logger  zerolog.Logger
	config  FeedConfig
}

// NewFeedService creates a new FeedService.
func NewFeedService(posts repository.MicropostRepository, m *metrics.Metrics, logger zerolog.Logger, config FeedConfig) *FeedService {
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = DefaultFeedConfig().DefaultPageSize
	}
	if config.MaxPageSize < config.DefaultPageSize {
		config.MaxPageSize = config.DefaultPageSize
	}
	return &FeedService{
		posts:   posts,
		metrics: m,
		logger:  logger.With().Str("service", "feed").Logger(),
		config:  config,
	}
}

// FeedOptions controls how Feed pages through the store.
type FeedOptions struct {
	// PageSize is the number of posts fetched per query.
	PageSize int
}

// Feed returns the posts visible to userID, newest first. The sequence is
// lazy, fetching one page per query as the caller ranges over it, and every
// range starts again from the newest post. Iteration stops after the first error.
func (s *FeedService) Feed(ctx context.Context, userID int64, opts FeedOptions) iter.Seq2[*domain.Micropost, error] {
	size := s.pageSize(opts.PageSize)

	return func(yield func(*domain.Micropost, error) bool) {
		var before *domain.FeedCursor
		for {
			page, err := s.fetch(ctx, userID, before, size)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, post := range page {
				if !yield(post, nil) {
					return
				}
			}
			if len(page) < size {
				return
			}
			c := page[len(page)-1].Cursor()
			before = &c
		}
	}
}

// FeedPageInput selects one page of a feed.
type FeedPageInput struct {
	Limit  int
	Before *domain.FeedCursor
}

// FeedPage is one page of a feed. Next is nil on the last page.
type FeedPage struct {
	Items []*domain.Micropost
	Next  *domain.FeedCursor
}

// Page returns a single page of the feed of userID.
func (s *FeedService) Page(ctx context.Context, userID int64, input FeedPageInput) (*FeedPage, error) {
	size := s.pageSize(input.Limit)

	// One extra row tells whether another page exists.
	posts, err := s.fetch(ctx, userID, input.Before, size+1)
	if err != nil {
		return nil, err
	}

	page := &FeedPage{Items: posts}
	if len(posts) > size {
		page.Items = posts[:size]
		c := page.Items[size-1].Cursor()
		page.Next = &c
	}
	return page, nil
}

// ParseCursor decodes a cursor string taken from a request.
// An empty string yields a nil cursor.
func ParseCursor(s string) (*domain.FeedCursor, error) {
	if s == "" {
		return nil, nil
	}
	c, err := domain.ParseFeedCursor(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return &c, nil
}

func (s *FeedService) fetch(ctx context.Context, userID int64, before *domain.FeedCursor, limit int) ([]*domain.Micropost, error) {
	start := time.Now()
	posts, err := s.posts.Feed(ctx, userID, repository.FeedOptions{Before: before, Limit: limit})
	s.metrics.RecordFeedQuery(time.Since(start))
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to query feed")
		return nil, internal(err)
	}
	return posts, nil
}

func (s *FeedService) pageSize(n int) int {
	switch {
	case n <= 0:
		return s.config.DefaultPageSize
	case n > s.config.MaxPageSize:
		return s.config.MaxPageSize
	default:
		return n
	}
}
