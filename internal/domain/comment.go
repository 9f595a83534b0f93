package domain

import "time"

// Comment is a free-text note appended to a ticket thread.
type Comment struct {
	ID              string        `json:"id"`
	Text            string        `json:"text"`
	CreatedAt       time.Time     `json:"createdAt"`
	CreatedByUserID string        `json:"createdByUserId"`
	CreatedBy       ActorSnapshot `json:"createdBy"`
}
