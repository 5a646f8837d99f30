package store

import "time"

type User struct {
	ID           string
	UserName     string
	PasswordHash string
	CreatedAt    time.Time
}

type Note struct {
	ID        string
	AuthorID  string
	Title     string
	Text      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnerID satisfies access.Owned.
func (n Note) OwnerID() string { return n.AuthorID }

// NewsItem is created out of band via the feed channel and is immutable
// once listed. Date is the sole ordering key for the home feed.
type NewsItem struct {
	ID        string
	Title     string
	Text      string
	Date      time.Time
	CreatedAt time.Time
}

type Comment struct {
	ID       int64
	NewsID   string
	AuthorID string
	Text     string
	Created  time.Time
}

// OwnerID satisfies access.Owned.
func (c Comment) OwnerID() string { return c.AuthorID }
