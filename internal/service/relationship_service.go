package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/metrics"
	"github.com/prn-tf/hermes/internal/repository"
)

// RelationshipService maintains the directed follow graph.
type RelationshipService struct {
	repos   *repository.Repositories
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewRelationshipService creates a new RelationshipService.
func NewRelationshipService(repos *repository.Repositories, m *metrics.Metrics, logger zerolog.Logger) *RelationshipService {
	return &RelationshipService{
		repos:   repos,
		metrics: m,
		logger:  logger.With().Str("service", "relationship").Logger(),
	}
}

// Follow makes followerID follow followedID.
func (s *RelationshipService) Follow(ctx context.Context, followerID, followedID int64) (*domain.Relationship, error) {
	if followerID == followedID {
		return nil, domain.ErrCannotFollowSelf
	}

	rel := domain.NewRelationship(followerID, followedID)
	err := s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		for _, id := range []int64{followerID, followedID} {
			if _, err := s.repos.User.GetByID(ctx, id); err != nil {
				return err
			}
		}
		return s.repos.Relationship.Create(ctx, rel)
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error().Err(err).
				Int64("follower_id", followerID).
				Int64("followed_id", followedID).
				Msg("failed to follow")
		}
		return nil, internal(err)
	}

	s.metrics.RecordRelationshipChange("follow")
	s.logger.Info().
		Int64("follower_id", followerID).
		Int64("followed_id", followedID).
		Msg("followed")

	return rel, nil
}

// Unfollow removes the edge followerID -> followedID.
// Returns domain.ErrRelationshipNotFound when there is none.
func (s *RelationshipService) Unfollow(ctx context.Context, followerID, followedID int64) error {
	if err := s.repos.Relationship.Delete(ctx, followerID, followedID); err != nil {
		if !isDomainError(err) {
			s.logger.Error().Err(err).
				Int64("follower_id", followerID).
				Int64("followed_id", followedID).
				Msg("failed to unfollow")
		}
		return internal(err)
	}

	s.metrics.RecordRelationshipChange("unfollow")
	s.logger.Info().
		Int64("follower_id", followerID).
		Int64("followed_id", followedID).
		Msg("unfollowed")

	return nil
}

// IsFollowing reports whether followerID follows followedID.
func (s *RelationshipService) IsFollowing(ctx context.Context, followerID, followedID int64) (bool, error) {
	ok, err := s.repos.Relationship.Exists(ctx, followerID, followedID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to check relationship")
		return false, internal(err)
	}
	return ok, nil
}

// Following returns the users userID follows.
func (s *RelationshipService) Following(ctx context.Context, userID int64) ([]*domain.User, error) {
	return s.related(ctx, userID, s.repos.Relationship.ListFollowing)
}

// Followers returns the users following userID.
func (s *RelationshipService) Followers(ctx context.Context, userID int64) ([]*domain.User, error) {
	return s.related(ctx, userID, s.repos.Relationship.ListFollowers)
}

func (s *RelationshipService) related(
	ctx context.Context,
	userID int64,
	list func(context.Context, int64) ([]*domain.User, error),
) ([]*domain.User, error) {
	var users []*domain.User
	err := s.repos.Tx.WithTxOptions(ctx, repository.TxOptions{ReadOnly: true}, func(ctx context.Context) error {
		if _, err := s.repos.User.GetByID(ctx, userID); err != nil {
			return err
		}
		var err error
		users, err = list(ctx, userID)
		return err
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to list related users")
		}
		return nil, internal(err)
	}
	return users, nil
}

// RelationshipStats holds the follow counts shown on a profile.
type RelationshipStats struct {
	Following int64 `json:"following"`
	Followers int64 `json:"followers"`
}

// Stats returns how many users userID follows and is followed by.
func (s *RelationshipService) Stats(ctx context.Context, userID int64) (*RelationshipStats, error) {
	stats := &RelationshipStats{}
	err := s.repos.Tx.WithTxOptions(ctx, repository.TxOptions{ReadOnly: true}, func(ctx context.Context) error {
		var err error
		if stats.Following, err = s.repos.Relationship.CountFollowing(ctx, userID); err != nil {
			return err
		}
		stats.Followers, err = s.repos.Relationship.CountFollowers(ctx, userID)
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to count relationships")
		return nil, internal(err)
	}
	return stats, nil
}
