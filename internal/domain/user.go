package domain

import (
	"errors"
	"strings"
	"time"
)

// Role is the closed set of user roles.
type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
)

// ErrUnknownRole is returned by ParseRole for anything but a known role.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole converts external input into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePassenger:
		return RolePassenger, nil
	case RoleDriver:
		return RoleDriver, nil
	default:
		return "", ErrUnknownRole
	}
}

// User represents a registered passenger or driver.
type User struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Actor is the authenticated principal invoking an operation.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsPassenger() bool { return a.Role == RolePassenger }

func (a Actor) IsDriver() bool { return a.Role == RoleDriver }
