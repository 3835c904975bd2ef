package auth

import (
	"context"
	"errors"
	"fmt"

	"notehub/internal/models"
	"notehub/internal/store"

	"golang.org/x/crypto/bcrypt"
)

// Credentials registers users and checks their passwords. Only bcrypt hashes
// reach the store.
type Credentials struct {
	users store.UserStore
	cost  int
}

func NewCredentials(users store.UserStore) *Credentials {
	return &Credentials{users: users, cost: bcrypt.DefaultCost}
}

func (c *Credentials) Register(ctx context.Context, username, password string) (int64, error) {
	if username == "" {
		return 0, models.Required("username")
	}
	if password == "" {
		return 0, models.Required("password")
	}
	hash, err := c.hash(password)
	if err != nil {
		return 0, err
	}

	id, err := c.users.CreateUser(ctx, username, hash)
	if errors.Is(err, store.ErrDuplicate) {
		return 0, ErrDuplicateUsername
	}
	return id, err
}

// Verify returns the user when password matches. An unknown username and a
// wrong password both yield ErrAuthFailure.
func (c *Credentials) Verify(ctx context.Context, username, password string) (*models.User, error) {
	u, err := c.users.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAuthFailure
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrAuthFailure
	}
	return u, nil
}

// Update replaces the username and/or password. Nil fields are left alone.
func (c *Credentials) Update(ctx context.Context, userID int64, newUsername, newPassword *string) error {
	if newUsername != nil && *newUsername == "" {
		return models.Required("username")
	}
	var hash *string
	if newPassword != nil {
		if *newPassword == "" {
			return models.Required("password")
		}
		h, err := c.hash(*newPassword)
		if err != nil {
			return err
		}
		hash = &h
	}

	err := c.users.UpdateUser(ctx, userID, newUsername, hash)
	if errors.Is(err, store.ErrDuplicate) {
		return ErrDuplicateUsername
	}
	return err
}

func (c *Credentials) Lookup(ctx context.Context, userID int64) (*models.User, error) {
	return c.users.GetUser(ctx, userID)
}

func (c *Credentials) hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", &models.ValidationError{Field: "password", Message: "must be at most 72 bytes"}
	}
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hashed), nil
}
