package models

import (
	"time"

	"github.com/google/uuid"
)

// Requester is a user who pays for jobs to be performed.
type Requester struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
