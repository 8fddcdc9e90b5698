package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// DefaultIdentityTTL bounds how long a signed identity proof stays valid.
const DefaultIdentityTTL = 5 * time.Minute

// ErrInvalidIdentity is returned when an identity proof fails verification.
var ErrInvalidIdentity = errors.New("invalid identity token")

// IdentityClaims is the payload of the bearer token attached to admin calls.
type IdentityClaims struct {
	UserID  int64 `json:"uid"`
	IsAdmin bool  `json:"adm"`
	jwt.StandardClaims
}

// Signer issues and verifies short-lived HS256 identity tokens.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSigner returns a Signer using key. A non-positive ttl uses DefaultIdentityTTL.
func NewSigner(key []byte, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultIdentityTTL
	}
	return &Signer{key: key, ttl: ttl, now: time.Now}
}

// Sign returns a token asserting userID and the admin flag.
func (s *Signer) Sign(userID int64, isAdmin bool) (string, error) {
	now := s.now()
	claims := IdentityClaims{
		UserID:  userID,
		IsAdmin: isAdmin,
		StandardClaims: jwt.StandardClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Verify parses tokenString and returns its claims.
func (s *Signer) Verify(tokenString string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if !token.Valid {
		return nil, ErrInvalidIdentity
	}
	return claims, nil
}
