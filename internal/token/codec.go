package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-auth-service/internal/model"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is the signed payload carried by every token. It never contains
// credentials, only the subject identity and validity bounds.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Type     string `json:"typ"`
}

// Codec signs and verifies HS256 JWTs under a single server secret.
// The signing algorithm is pinned: tokens declaring any other method are
// rejected before signature verification, closing the alg-substitution hole.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewCodec(secret string, accessTTL time.Duration, refreshTTL time.Duration) *Codec {
	return &Codec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

func (c *Codec) IssueAccess(user model.User) (string, error) {
	return c.sign(user, TypeAccess, c.accessTTL)
}

func (c *Codec) IssueRefresh(user model.User) (string, error) {
	return c.sign(user, TypeRefresh, c.refreshTTL)
}

func (c *Codec) sign(user model.User, typ string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: user.Username,
		Type:     typ,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Decode verifies the signature and validity window and returns the claims.
// Failures map onto the model sentinels: malformed input, expired token, or
// a signature that does not match the server secret. When expectedType is
// non-empty a structurally valid token of the wrong type is also rejected.
func (c *Codec) Decode(tokenString string, expectedType string) (*model.AuthClaims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, translateParseError(err)
	}
	if !parsed.Valid {
		return nil, model.ErrTokenSignature
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", model.ErrTokenMalformed)
	}
	if expectedType != "" && claims.Type != expectedType {
		return nil, fmt.Errorf("%w: unexpected token type %q", model.ErrTokenMalformed, claims.Type)
	}

	return &model.AuthClaims{
		UserID:   claims.Subject,
		Username: claims.Username,
		Type:     claims.Type,
		TokenID:  claims.ID,
	}, nil
}

func translateParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return model.ErrTokenSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return model.ErrTokenMalformed
	default:
		// Unknown verification failures are treated as bad signatures;
		// never let an unclassified token through.
		return model.ErrTokenSignature
	}
}
