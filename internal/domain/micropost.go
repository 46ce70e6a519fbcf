package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMicropostLength is the maximum number of characters in a micropost.
const MaxMicropostLength = 140

// Micropost is a short message authored by a user.
type Micropost struct {
	// ID is the unique identifier for the post (auto-generated).
	ID int64 `json:"id"`

	// UserID is the author.
	UserID int64 `json:"user_id"`

	// Content is the message body.
	// Constraints: non-blank, at most 140 characters.
	Content string `json:"content"`

	// CreatedAt orders posts in feeds, newest first.
	CreatedAt time.Time `json:"created_at"`
}

// NewMicropost creates a new Micropost stamped with the current time.
// The timestamp is truncated to the precision every supported store keeps.
func NewMicropost(userID int64, content string) *Micropost {
	return &Micropost{
		UserID:    userID,
		Content:   strings.TrimSpace(content),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// ValidateMicropostContent returns every violation of the content constraints.
func ValidateMicropostContent(content string) FieldErrors {
	var errs FieldErrors
	content = strings.TrimSpace(content)
	switch {
	case content == "":
		errs.Add("content", CodeBlank, "can't be blank")
	case utf8.RuneCountInString(content) > MaxMicropostLength:
		errs.Add("content", CodeTooLong, "is too long (maximum is 140 characters)")
	}
	return errs
}

// Cursor returns the feed position just after this post.
func (m *Micropost) Cursor() FeedCursor {
	return FeedCursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// FeedCursor is a keyset position in a newest-first post stream.
// A page starting at a cursor holds posts strictly older than (CreatedAt, ID).
type FeedCursor struct {
	CreatedAt time.Time
	ID        int64
}

// String encodes the cursor as "<unix nanos>.<id>".
func (c FeedCursor) String() string {
	return strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "." + strconv.FormatInt(c.ID, 10)
}

// ParseFeedCursor decodes a cursor produced by FeedCursor.String.
func ParseFeedCursor(s string) (FeedCursor, error) {
	nanos, id, ok := strings.Cut(s, ".")
	if !ok {
		return FeedCursor{}, fmt.Errorf("malformed cursor %q", s)
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return FeedCursor{}, fmt.Errorf("malformed cursor %q: %w", s, err)
	}
	i, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return FeedCursor{}, fmt.Errorf("malformed cursor %q: %w", s, err)
	}
	return FeedCursor{CreatedAt: time.Unix(0, n).UTC(), ID: i}, nil
}
