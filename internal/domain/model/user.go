package model

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Contest-scoped roles.
const (
	ContestRoleOrganizer = "organizer"
)

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type ContestRole struct {
	ContestID string `json:"contest_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
}

// Viewer is whoever asks for a table; the zero value is an anonymous visitor.
type Viewer struct {
	UserID    string
	Organizer bool
}

func (v Viewer) Anonymous() bool {
	return v.UserID == ""
}
