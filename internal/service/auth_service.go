package service

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hemidirasim/sahibparfum-sub001/internal/config"
	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
)

const tokenIssuer = "checkout-service"

// AuthService authenticates the back-office administrator.
type AuthService struct {
	config config.AuthConfig
	now    func() time.Time
	logger *logging.LoggerV2
}

func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		config: cfg,
		now:    time.Now,
		logger: logging.NewLoggerV2("auth-service"),
	}
}

// Login checks the admin credentials and returns a signed token with its expiry.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	if s.config.JWTSecret == "" || s.config.AdminEmail == "" || s.config.AdminPasswordHash == "" {
		s.logger.Error("Admin login attempted without admin credentials configured")
		return "", time.Time{}, errors.ErrUnauthorized
	}

	if !strings.EqualFold(strings.TrimSpace(email), s.config.AdminEmail) {
		return "", time.Time{}, errors.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.config.AdminPasswordHash), []byte(password)); err != nil {
		s.logger.Warn("Admin login failed", logging.Fields{"email": email})
		return "", time.Time{}, errors.ErrUnauthorized
	}

	now := s.now()
	expires := now.Add(s.config.TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   s.config.AdminEmail,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})

	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}

	s.logger.Info("Admin logged in", logging.Fields{"email": s.config.AdminEmail})
	return signed, expires, nil
}

// VerifyToken validates a bearer token and returns its subject.
func (s *AuthService) VerifyToken(tokenString string) (string, error) {
	if s.config.JWTSecret == "" {
		return "", errors.ErrUnauthorized
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.config.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", errors.ErrUnauthorized
	}
	return claims.Subject, nil
}
