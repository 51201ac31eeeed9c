package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	sessionAudience      = "session"
	verificationAudience = "email-verification"

	// VerificationTTL is how long an emailed verification link stays valid.
	VerificationTTL = 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

// SessionClaims is the payload of a session bearer token.
type SessionClaims struct {
	AccountAddress string `json:"accountAddress"`
	jwt.RegisteredClaims
}

// EmailClaims is the payload of an email verification token.
type EmailClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SessionManager mints and checks session bearer tokens.
type SessionManager struct {
	secretKey     string
	tokenDuration time.Duration
}

// NewSessionManager with duration 0 issues tokens without an expiry.
func NewSessionManager(secret string, duration time.Duration) *SessionManager {
	return &SessionManager{secretKey: secret, tokenDuration: duration}
}

// Generate создаёт JWT для accountAddress
func (m *SessionManager) Generate(accountAddress string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		AccountAddress: accountAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  accountAddress,
			Audience: jwt.ClaimStrings{sessionAudience},
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if m.tokenDuration > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.tokenDuration))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secretKey))
}

// Verify парсит и проверяет JWT
func (m *SessionManager) Verify(accessToken string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := parse(accessToken, claims, m.secretKey); err != nil {
		return nil, err
	}
	if !claims.VerifyAudience(sessionAudience, true) || claims.AccountAddress == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Expiry returns the token's expiry; the zero time means it never expires.
func (m *SessionManager) Expiry(accessToken string) (time.Time, error) {
	claims, err := m.Verify(accessToken)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// PeekExpiry reads a session token's expiry without checking its signature.
// Clients use it to drop a cached token that can no longer work.
func PeekExpiry(accessToken string) (time.Time, error) {
	var claims SessionClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// VerificationManager mints and checks email verification tokens.
type VerificationManager struct {
	secretKey string
}

func NewVerificationManager(secret string) *VerificationManager {
	return &VerificationManager{secretKey: secret}
}

func (m *VerificationManager) Generate(email string) (string, error) {
	now := time.Now()
	claims := EmailClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{verificationAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(VerificationTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secretKey))
}

func (m *VerificationManager) Verify(token string) (*EmailClaims, error) {
	claims := &EmailClaims{}
	if err := parse(token, claims, m.secretKey); err != nil {
		return nil, err
	}
	if !claims.VerifyAudience(verificationAudience, true) || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func parse(tokenString string, claims jwt.Claims, secret string) error {
	if tokenString == "" {
		return ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// ExtractTokenFromHeader извлекает токен из Authorization header
func ExtractTokenFromHeader(r *http.Request) (string, error) {
	hdr := r.Header.Get("Authorization")
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid Authorization header")
	}
	return parts[1], nil
}
