package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-auth-service/internal/hasher"
	"go-auth-service/internal/model"
	"go-auth-service/internal/token"
	"go-auth-service/pkg/apierror"
)

// UserRepository is the credential store contract. Create must enforce
// username uniqueness atomically.
type UserRepository interface {
	Create(ctx context.Context, u model.User) error
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.PublicUser, error)
}

// TokenRepository persists refresh tokens so they can be rotated and revoked.
type TokenRepository interface {
	Store(ctx context.Context, token string, userID string, expiresAt time.Time) error
	Validate(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	CleanExpired(ctx context.Context) (int64, error)
}

var (
	errUnauthorized = apierror.New("UNAUTHORIZED", "invalid credentials", "", http.StatusUnauthorized)
	errBadToken     = apierror.New("UNAUTHORIZED", "invalid or expired token", "", http.StatusUnauthorized)
)

type AuthService struct {
	users      UserRepository
	tokens     TokenRepository
	hasher     hasher.PasswordHasher
	codec      *token.Codec
	refreshTTL time.Duration

	// dummyHash is verified against when a login names an unknown user, so
	// the unknown-user and wrong-password paths cost about the same.
	dummyHash string
}

func NewAuthService(users UserRepository, tokens TokenRepository, h hasher.PasswordHasher, codec *token.Codec, refreshTTL time.Duration) (*AuthService, error) {
	dummy, err := h.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &AuthService{
		users:      users,
		tokens:     tokens,
		hasher:     h,
		codec:      codec,
		refreshTTL: refreshTTL,
		dummyHash:  dummy,
	}, nil
}

// Register creates a new account. The response never carries the password or
// its hash.
func (s *AuthService) Register(ctx context.Context, username string, name string, password string) (model.PublicUser, error) {
	username = strings.TrimSpace(username)
	name = strings.TrimSpace(name)

	if username == "" || password == "" {
		return model.PublicUser{}, apierror.New("BAD_REQUEST", "username and password are required", "", http.StatusBadRequest)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return model.PublicUser{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrUserAlreadyExists) {
			return model.PublicUser{}, apierror.New("ALREADY_EXISTS", "username already exists", username, http.StatusConflict)
		}
		return model.PublicUser{}, fmt.Errorf("create user: %w", err)
	}

	return user.Public(), nil
}

// Login verifies credentials and issues a token pair. Unknown usernames and
// wrong passwords are externally indistinguishable.
func (s *AuthService) Login(ctx context.Context, username string, password string) (model.TokenPair, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.TokenPair{}, errUnauthorized
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			_, _ = s.hasher.Verify(password, s.dummyHash)
			return model.TokenPair{}, errUnauthorized
		}
		return model.TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		// Corrupt stored hash. Log server-side, stay opaque to the client.
		slog.Error("stored password hash unusable", "user_id", user.ID, "error", err)
		return model.TokenPair{}, errUnauthorized
	}
	if !ok {
		return model.TokenPair{}, errUnauthorized
	}

	return s.issueTokenPair(ctx, user)
}

// Refresh rotates a refresh token: the presented token must verify as a JWT
// and still exist server-side, and is revoked before the new pair is issued.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	claims, err := s.codec.Decode(refreshToken, token.TypeRefresh)
	if err != nil {
		return model.TokenPair{}, errBadToken
	}

	ownerID, err := s.tokens.Validate(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, model.ErrTokenNotFound) {
			return model.TokenPair{}, errBadToken
		}
		return model.TokenPair{}, fmt.Errorf("validate refresh token: %w", err)
	}
	if ownerID != claims.UserID {
		return model.TokenPair{}, errBadToken
	}

	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		return model.TokenPair{}, fmt.Errorf("revoke refresh token: %w", err)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.TokenPair{}, errBadToken
		}
		return model.TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}

	return s.issueTokenPair(ctx, user)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	return s.tokens.Revoke(ctx, refreshToken)
}

// ResolveAccessToken is the access-guard path: verify the token, then resolve
// the subject against the store. A subject deleted after issuance fails here.
func (s *AuthService) ResolveAccessToken(ctx context.Context, accessToken string) (model.PublicUser, error) {
	claims, err := s.codec.Decode(accessToken, token.TypeAccess)
	if err != nil {
		return model.PublicUser{}, errBadToken
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.PublicUser{}, errBadToken
		}
		return model.PublicUser{}, fmt.Errorf("lookup user: %w", err)
	}

	return user.Public(), nil
}

func (s *AuthService) GetUserByID(ctx context.Context, userID string) (model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.PublicUser{}, apierror.New("NOT_FOUND", "user not found", userID, http.StatusNotFound)
		}
		return model.PublicUser{}, fmt.Errorf("lookup user: %w", err)
	}
	return user.Public(), nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]model.PublicUser, error) {
	return s.users.List(ctx)
}

// ChangePassword re-verifies the current password before storing the new
// hash, then revokes every outstanding refresh token for the account.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, currentPassword string, newPassword string) error {
	if newPassword == "" {
		return apierror.New("BAD_REQUEST", "new password is required", "", http.StatusBadRequest)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return errUnauthorized
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil || !ok {
		return errUnauthorized
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return s.tokens.RevokeAllForUser(ctx, userID)
}

func (s *AuthService) DeleteUser(ctx context.Context, userID string, actorID string) error {
	if userID == actorID {
		return apierror.New("BAD_REQUEST", "cannot delete your own account", userID, http.StatusBadRequest)
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return apierror.New("NOT_FOUND", "user not found", userID, http.StatusNotFound)
		}
		return fmt.Errorf("delete user: %w", err)
	}

	return s.tokens.RevokeAllForUser(ctx, userID)
}

func (s *AuthService) issueTokenPair(ctx context.Context, user model.User) (model.TokenPair, error) {
	accessToken, err := s.codec.IssueAccess(user)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, err := s.codec.IssueRefresh(user)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	expiresAt := time.Now().UTC().Add(s.refreshTTL)
	if err := s.tokens.Store(ctx, refreshToken, user.ID, expiresAt); err != nil {
		return model.TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
		User:         user.Public(),
	}, nil
}
