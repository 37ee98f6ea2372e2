package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type User struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	DisplayName    string    `json:"display_name"`
	Handle         string    `json:"handle" gorm:"uniqueIndex"` // Ensure handle is unique across all users
	Email          string    `json:"email" gorm:"uniqueIndex"`
	Password       string    `json:"-"` // Store hashed password, ignore for JSON serialization
	AvatarURL      string    `json:"avatar_url"`
	FollowersCount int       `json:"followers_count" gorm:"default:0"`
	FollowingCount int       `json:"following_count" gorm:"default:0"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserCompact is the reduced user shape embedded in lists, notifications and
// conversation views.
type UserCompact struct {
	ID          uint   `json:"id"`
	DisplayName string `json:"display_name"`
	Handle      string `json:"handle"`
	AvatarURL   string `json:"avatar_url"`
}

// ToCompact converts a User to its compact representation
func (u *User) ToCompact() UserCompact {
	return UserCompact{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Handle:      u.Handle,
		AvatarURL:   u.AvatarURL,
	}
}

type CreateLocalUserRequest struct {
	DisplayName string `json:"display_name" validate:"required,min=2,max=50"`
	Handle      string `json:"handle" validate:"required,min=2,max=30"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
