package models

import "time"

// Identity is the snapshot of a user captured into a session at login.
type Identity struct {
	UserID string   `json:"uid"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == UserRoleAdmin
}

type Session struct {
	Token     string    `json:"-"`
	Identity  Identity  `json:"identity"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
