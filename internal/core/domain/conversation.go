package domain

import "time"

// Turn is one completed question/answer exchange for a user.
type Turn struct {
	UserID   string    `json:"user_id"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"asked_at"`
}
