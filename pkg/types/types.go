package types

import "time"

// Author is the public summary of a member attached to posts and comments.
type Author struct {
	ID              string `json:"id"`
	FirstName       string `json:"firstName,omitempty"`
	LastName        string `json:"lastName,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

// Post is a response to a daily prompt, pre-assembled with its author.
type Post struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	PromptID     string    `json:"promptId,omitempty"`
	Content      string    `json:"content"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	LikeCount    int       `json:"likeCount"`
	CommentCount int       `json:"commentCount"`
	CreatedAt    time.Time `json:"createdAt"`
	Author       *Author   `json:"author,omitempty"`
}

// Comment is a reply on a post, pre-assembled with its author.
type Comment struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	ResponseID string    `json:"responseId"`
	Content    string    `json:"content"`
	LikeCount  int       `json:"likeCount"`
	CreatedAt  time.Time `json:"createdAt"`
	Author     *Author   `json:"author,omitempty"`
}

// LikeUpdate describes a changed reaction count on a post or comment.
// ViewerHasReacted is reported from the perspective of the member who toggled
// the reaction.
type LikeUpdate struct {
	TargetID         string `json:"targetId"`
	Count            int    `json:"count"`
	ViewerHasReacted bool   `json:"viewerHasReacted"`
}

// RequesterSummary is the public profile of the member asking for an introduction.
type RequesterSummary struct {
	ID              string `json:"id"`
	FirstName       string `json:"firstName,omitempty"`
	LastName        string `json:"lastName,omitempty"`
	Bio             string `json:"bio,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

// Introduction status values.
const (
	IntroductionPending  = "pending"
	IntroductionAccepted = "accepted"
	IntroductionDeclined = "declined"
)

// Introduction is a request from one member to be introduced to another.
// It is only ever delivered to the target member's live sessions.
type Introduction struct {
	ID                string            `json:"id"`
	RequesterID       string            `json:"requesterId"`
	TargetID          string            `json:"targetId"`
	Message           string            `json:"message,omitempty"`
	Status            string            `json:"status"`
	ContextResponseID string            `json:"contextResponseId,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	Requester         *RequesterSummary `json:"requester,omitempty"`
}
