// Package models holds the documents stored in skatepedia collections.
//
// JSON names match the stored field names, so feed filters and ordering use
// them directly (for example "user_id" and "date_created").
package models

import "time"

// Collection names and subcollections.
const (
	PostsCollection    = "posts"
	UsersCollection    = "users"
	ProsCollection     = "pro_videos"
	CommentsSub        = "comments"
	TrickItemsSub      = "trick_items"
	ProVideosSub       = "videos"
	OrderByDateCreated = "date_created"
)

// Stored field names used in filters.
const (
	FieldUserID  = "user_id"
	FieldTrickID = "trick_id"
	FieldProName = "pro_name"
)

// Post is a community video post.
type Post struct {
	PostID      string    `json:"post_id"`
	UserID      string    `json:"user_id"`
	TrickName   string    `json:"trick_name"`
	Notes       string    `json:"notes"`
	Likes       int64     `json:"likes"`
	DateCreated time.Time `json:"date_created"`
	VideoURL    string    `json:"video_url"`
}

func (p Post) ItemID() string      { return p.PostID }
func (p Post) OrderKey() time.Time { return p.DateCreated }

// Comment is a reply on a post, stored under posts/{post_id}/comments.
type Comment struct {
	CommentID   string    `json:"comment_id"`
	PostID      string    `json:"post_id"`
	FromUserID  string    `json:"from_user_id"`
	Content     string    `json:"content"`
	DateCreated time.Time `json:"date_created"`
}

func (c Comment) ItemID() string      { return c.CommentID }
func (c Comment) OrderKey() time.Time { return c.DateCreated }

// User is a skater profile.
type User struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DateCreated time.Time `json:"date_created"`
}

// TrickItem is one logged attempt at a trick, stored under
// users/{user_id}/trick_items. Progress is a rating from 0 to 3.
type TrickItem struct {
	DocumentID  string    `json:"document_id"`
	TrickID     string    `json:"trick_id"`
	TrickName   string    `json:"trick_name"`
	DateCreated time.Time `json:"date_created"`
	Notes       string    `json:"notes"`
	Progress    int       `json:"progress"`
	VideoURL    string    `json:"video_url"`
}

func (t TrickItem) ItemID() string      { return t.DocumentID }
func (t TrickItem) OrderKey() time.Time { return t.DateCreated }

// MaxProgress is the highest trick item progress rating.
const MaxProgress = 3

// Pro is a professional skater whose clips can be compared against.
type Pro struct {
	DocumentID string `json:"document_id"`
	ProName    string `json:"pro_name"`
	Stance     string `json:"stance"`
}

// ProVideo is a pro's clip of one trick, stored under pro_videos/{pro_id}/videos.
type ProVideo struct {
	DocumentID string `json:"document_id"`
	ProName    string `json:"pro_name"`
	ProID      string `json:"pro_id"`
	TrickName  string `json:"trick_name"`
	TrickID    string `json:"trick_id"`
	VideoURL   string `json:"video_url"`
}
