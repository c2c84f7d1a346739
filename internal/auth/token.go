// Package auth provides token issuance/validation and the Redis-backed
// user session cache.  Tokens are symmetric HS256 JWTs carrying a scope
// claim that pins each token to its single purpose.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Scope values distinguishing token purpose.  Validate rejects a token
// whose scope claim does not match the expected one, so an access token
// can never be replayed as a refresh token or vice versa.
const (
	ScopeAccess  = "access_token"
	ScopeRefresh = "refresh_token"
	ScopeEmail   = "email_token"
)

// Validation failure reasons.  Callers branch on these instead of parsing
// error strings.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrWrongScope   = errors.New("invalid scope for token")
)

// TokenService issues and validates the three token kinds.  It is
// constructed once with the signing secret and lifetimes and passed to
// handlers and middleware explicitly; nothing reads ambient configuration
// at call time.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	emailTTL   time.Duration
}

func NewTokenService(secret string, accessTTL, refreshTTL, emailTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	if emailTTL <= 0 {
		emailTTL = 24 * time.Hour
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		emailTTL:   emailTTL,
	}
}

// IssueAccess signs a short-lived access token for a user.  The role claim
// records the role at issue time for token introspection; authorization
// reads the role from the freshly resolved user, so a role change takes
// effect on the next request rather than at token expiry.
func (s *TokenService) IssueAccess(userID uint64, role string) (string, time.Time, error) {
	exp := time.Now().UTC().Add(s.accessTTL)
	return s.sign(jwt.MapClaims{
		"sub":   strconv.FormatUint(userID, 10),
		"role":  role,
		"scope": ScopeAccess,
		"iat":   time.Now().UTC().Unix(),
		"exp":   exp.Unix(),
	}, exp)
}

// IssueRefresh signs a long-lived refresh token.  The caller is expected to
// mirror it into the user row; only the stored value is accepted at refresh
// time.
func (s *TokenService) IssueRefresh(userID uint64) (string, time.Time, error) {
	exp := time.Now().UTC().Add(s.refreshTTL)
	return s.sign(jwt.MapClaims{
		"sub":   strconv.FormatUint(userID, 10),
		"scope": ScopeRefresh,
		"iat":   time.Now().UTC().Unix(),
		"exp":   exp.Unix(),
	}, exp)
}

// IssueEmailToken signs a confirmation token whose subject is the email
// address itself, so the confirmation link is self-contained.
func (s *TokenService) IssueEmailToken(email string) (string, error) {
	exp := time.Now().UTC().Add(s.emailTTL)
	t, _, err := s.sign(jwt.MapClaims{
		"sub":   email,
		"scope": ScopeEmail,
		"iat":   time.Now().UTC().Unix(),
		"exp":   exp.Unix(),
	}, exp)
	return t, err
}

func (s *TokenService) sign(claims jwt.MapClaims, exp time.Time) (string, time.Time, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Validate parses a token and returns its subject.  It fails with
// ErrTokenExpired when the token is past its exp claim, ErrWrongScope when
// the scope claim does not match the expected scope, and ErrInvalidToken
// for every other defect (bad signature, wrong algorithm, malformed
// claims).  Any ambiguity is a rejection; there is no anonymous fallback.
func (s *TokenService) Validate(raw, scope string) (string, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if !tok.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	if sc, _ := claims["scope"].(string); sc != scope {
		return "", ErrWrongScope
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
