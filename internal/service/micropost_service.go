package service

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/metrics"
	"github.com/prn-tf/hermes/internal/repository"
)

// MicropostService stores the short messages users author.
type MicropostService struct {
	repos   *repository.Repositories
	metrics *metrics.Metrics
	logger  zerolog.Logger
	config  FeedConfig
}

// NewMicropostService creates a new MicropostService.
// config bounds the page size of ListByUser.
func NewMicropostService(repos *repository.Repositories, m *metrics.Metrics, logger zerolog.Logger, config FeedConfig) *MicropostService {
	if config.DefaultPageSize <= 0 {
		config = DefaultFeedConfig()
	}
	return &MicropostService{
		repos:   repos,
		metrics: m,
		logger:  logger.With().Str("service", "micropost").Logger(),
		config:  config,
	}
}

// Create publishes a post by authorID.
func (s *MicropostService) Create(ctx context.Context, authorID int64, content string) (*domain.Micropost, error) {
	if err := domain.ValidateMicropostContent(content).Err(); err != nil {
		return nil, err
	}

	post := domain.NewMicropost(authorID, content)
	if err := s.repos.Micropost.Create(ctx, post); err != nil {
		if !isDomainError(err) {
			s.logger.Error().Err(err).Int64("user_id", authorID).Msg("failed to create micropost")
		}
		return nil, internal(err)
	}

	s.metrics.RecordMicropost()
	s.logger.Info().
		Int64("micropost_id", post.ID).
		Int64("user_id", authorID).
		Msg("micropost created")

	return post, nil
}

// Delete removes a post. Only its author may delete it.
func (s *MicropostService) Delete(ctx context.Context, actorID, micropostID int64) error {
	err := s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		post, err := s.repos.Micropost.GetByID(ctx, micropostID)
		if err != nil {
			return err
		}
		if post.UserID != actorID {
			return domain.NewDomainError(domain.ErrAccessDenied, "only the author may delete a micropost",
				"micropost:"+strconv.FormatInt(micropostID, 10))
		}
		return s.repos.Micropost.Delete(ctx, micropostID)
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error().Err(err).Int64("micropost_id", micropostID).Msg("failed to delete micropost")
		}
		return internal(err)
	}

	s.logger.Info().
		Int64("micropost_id", micropostID).
		Int64("user_id", actorID).
		Msg("micropost deleted")

	return nil
}

// ListByUser returns up to limit posts by userID older than before, newest first.
func (s *MicropostService) ListByUser(ctx context.Context, userID int64, limit int, before *domain.FeedCursor) ([]*domain.Micropost, error) {
	return s.listByUser(ctx, userID, s.pageSize(limit), before)
}

// PageByUser returns one page of the posts by userID. Next is nil on the last page.
func (s *MicropostService) PageByUser(ctx context.Context, userID int64, input FeedPageInput) (*FeedPage, error) {
	size := s.pageSize(input.Limit)

	posts, err := s.listByUser(ctx, userID, size+1, input.Before)
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

func (s *MicropostService) listByUser(ctx context.Context, userID int64, limit int, before *domain.FeedCursor) ([]*domain.Micropost, error) {
	var posts []*domain.Micropost
	err := s.repos.Tx.WithTxOptions(ctx, repository.TxOptions{ReadOnly: true}, func(ctx context.Context) error {
		if _, err := s.repos.User.GetByID(ctx, userID); err != nil {
			return err
		}
		var err error
		posts, err = s.repos.Micropost.ListByUser(ctx, userID, repository.FeedOptions{Before: before, Limit: limit})
		return err
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to list microposts")
		}
		return nil, internal(err)
	}
	return posts, nil
}

func (s *MicropostService) pageSize(n int) int {
	switch {
	case n <= 0:
		return s.config.DefaultPageSize
	case n > s.config.MaxPageSize:
		return s.config.MaxPageSize
	default:
		return n
	}
}
