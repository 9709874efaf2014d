package user

import "time"

type User struct {
	ID           uint
	Email        string
	Name         string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)
