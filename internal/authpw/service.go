// Package authpw provides username/password authentication backed by bcrypt.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"gazette/api/internal/store"
)

// ErrInvalidCredentials is returned when the username/password pair does not match
var ErrInvalidCredentials = errors.New("invalid username or password")

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByName(ctx context.Context, userName string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
}

// Service provides username/password authentication
type Service struct {
	store UserStore
}

// NewService creates a new auth service
func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// RegisterRequest contains registration parameters
type RegisterRequest struct {
	UserName string
	Password string
}

// Register creates a new user account
func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.User, error) {
	name := strings.TrimSpace(req.UserName)
	if name == "" || req.Password == "" {
		return store.User{}, errors.New("username and password are required")
	}

	if len(req.Password) < 8 {
		return store.User{}, errors.New("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           generateID(),
		UserName:     name,
		PasswordHash: string(hash),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, err
	}

	return user, nil
}

// Authenticate checks a username/password pair and returns the matching user
func (s *Service) Authenticate(ctx context.Context, userName, password string) (store.User, error) {
	if userName == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByName(ctx, userName)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	return user, nil
}

// generateID creates a random user ID
func generateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
