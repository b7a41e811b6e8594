// Package auth issues and checks the session cookie.
package auth

import (
	"chatly/internal/config"
	"chatly/internal/logger"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// UserContextKey is the gin context key holding the authenticated username.
const UserContextKey = "username"

// Claims is the payload of a session token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenManager signs session tokens and guards protected routes.
type TokenManager struct {
	secret     []byte
	expiration time.Duration
	cookieName string
	secure     bool
	now        func() time.Time
}

// NewTokenManager creates a TokenManager from the auth configuration.
func NewTokenManager(cfg config.AuthConfig) *TokenManager {
	expiration := cfg.TokenExpiration
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = "chatly_session"
	}
	return &TokenManager{
		secret:     cfg.JWTSecret,
		expiration: expiration,
		cookieName: cookieName,
		secure:     cfg.CookieSecure,
		now:        time.Now,
	}
}

// CookieName returns the name of the session cookie.
func (m *TokenManager) CookieName() string {
	return m.cookieName
}

func (m *TokenManager) GenerateToken(username string) (string, error) {
	now := m.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Username != "" {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// SetSessionCookie issues a token for username and stores it in an HttpOnly cookie.
func (m *TokenManager) SetSessionCookie(c *gin.Context, username string) error {
	token, err := m.GenerateToken(username)
	if err != nil {
		return fmt.Errorf("error generating token: %w", err)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, token, int(m.expiration.Seconds()), "/", "", m.secure, true)
	return nil
}

// ClearSessionCookie expires the session cookie.
func (m *TokenManager) ClearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
}

// Middleware rejects requests without a valid session cookie.
func (m *TokenManager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(m.cookieName)
		if err != nil || token == "" {
			abortUnauthenticated(c)
			return
		}

		claims, err := m.ValidateToken(token)
		if err != nil {
			if !errors.Is(err, jwt.ErrTokenExpired) {
				logger.Log.WithError(err).Warn("Rejected session token")
			}
			abortUnauthenticated(c)
			return
		}

		c.Set(UserContextKey, claims.Username)
		c.Next()
	}
}

// Username returns the authenticated username set by Middleware.
func Username(c *gin.Context) string {
	return c.GetString(UserContextKey)
}

func abortUnauthenticated(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": "Not logged in",
		"error":   "unauthenticated",
	})
}
