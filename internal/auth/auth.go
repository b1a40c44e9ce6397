// Package auth handles login and JWT session tokens. There is no separate
// registration step: the first login with an email provisions the user,
// later logins must present the same password.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"papertrade/internal/models"
	"papertrade/internal/store"
)

// Service verifies credentials and issues JWTs.
type Service struct {
	kv     store.KV
	secret []byte
}

// NewService creates an auth service over the given KV and signing secret.
func NewService(kv store.KV, secret string) *Service {
	return &Service{kv: kv, secret: []byte(secret)}
}

// UserIDFromEmail derives the stable user id for an email address.
func UserIDFromEmail(email string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(email))
	var b strings.Builder
	for _, r := range encoded {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return "user-" + b.String()
}

// Login authenticates email+password, provisioning the user on first use,
// and returns a signed token plus the user profile.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	if email == "" || password == "" {
		return "", nil, &models.ValidationError{Message: "email and password are required"}
	}
	if len(email) > 254 || len(password) > 100 {
		return "", nil, &models.ValidationError{Message: "email or password too long"}
	}

	user, err := s.loadUser(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return "", nil, fmt.Errorf("failed to load user: %w", err)
		}
		user, err = s.createUser(ctx, email, password)
		if err != nil {
			return "", nil, err
		}
	} else {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
			return "", nil, models.ErrInvalidCredentials
		}
	}

	token, err := s.issueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *Service) loadUser(ctx context.Context, email string) (*models.User, error) {
	data, err := s.kv.Get(ctx, store.UserKey(email))
	if err != nil {
		return nil, err
	}
	var stored struct {
		models.User
		PasswordHash string `json:"passwordHash"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		// Unreadable profile: treat as absent so login re-provisions.
		return nil, store.ErrNotFound
	}
	user := stored.User
	user.PasswordHash = stored.PasswordHash
	return &user, nil
}

func (s *Service) createUser(ctx context.Context, email, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	name := email
	if i := strings.Index(email, "@"); i > 0 {
		name = email[:i]
	}
	user := &models.User{
		ID:           UserIDFromEmail(email),
		Email:        email,
		Name:         name,
		AvatarURL:    "https://i.pravatar.cc/150?u=" + email,
		PasswordHash: string(hash),
	}

	data, err := json.Marshal(struct {
		models.User
		PasswordHash string `json:"passwordHash"`
	}{User: *user, PasswordHash: user.PasswordHash})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := s.kv.Set(ctx, store.UserKey(email), data); err != nil {
		return nil, fmt.Errorf("failed to persist user: %w", err)
	}
	return user, nil
}

func (s *Service) issueToken(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// GetUserFromToken extracts the user id from a JWT.
func (s *Service) GetUserFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", models.ErrInvalidCredentials
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", models.ErrInvalidCredentials
	}
	return userID, nil
}
