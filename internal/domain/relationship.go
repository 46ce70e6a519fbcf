package domain

import "time"

// Relationship is a directed follow edge: FollowerID follows FollowedID.
// At most one edge exists per ordered pair.
type Relationship struct {
	// ID is the unique identifier for the edge (auto-generated).
	ID int64 `json:"id"`

	// FollowerID is the user who follows.
	FollowerID int64 `json:"follower_id"`

	// FollowedID is the user being followed.
	FollowedID int64 `json:"followed_id"`

	// CreatedAt is when the follow happened.
	CreatedAt time.Time `json:"created_at"`
}

// NewRelationship creates a new edge stamped with the current time.
func NewRelationship(followerID, followedID int64) *Relationship {
	return &Relationship{
		FollowerID: followerID,
		FollowedID: followedID,
		CreatedAt:  time.Now().UTC(),
	}
}
