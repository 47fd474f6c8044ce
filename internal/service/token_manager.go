package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/metrics"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
	"github.com/hemidirasim/sahibparfum-sub001/internal/repository"
)

// acquireTimeout bounds one shared refresh-then-login flight.
const acquireTimeout = 45 * time.Second

// TokenManager serves a valid gateway token, refreshing or logging in again
// when the stored one has expired. Concurrent callers share one acquisition.
type TokenManager struct {
	source  TokenSource
	store   repository.TokenStore
	group   singleflight.Group
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *logging.LoggerV2
}

func NewTokenManager(source TokenSource, store repository.TokenStore, m *metrics.Metrics) *TokenManager {
	return &TokenManager{
		source:  source,
		store:   store,
		now:     time.Now,
		metrics: m,
		logger:  logging.NewLoggerV2("token-manager"),
	}
}

// GetValidToken returns the cached token while it is valid. Otherwise it
// makes one refresh attempt and falls back to a fresh login.
func (m *TokenManager) GetValidToken(ctx context.Context) (string, error) {
	if tok := m.cached(ctx); tok.ValidAt(m.now()) {
		m.metrics.TokenAcquisition("cache", "hit")
		return tok.Value, nil
	}

	v, err, _ := m.group.Do("gateway-token", func() (interface{}, error) {
		// The flight is shared by every waiter, so it must outlive the caller that started it.
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), acquireTimeout)
		defer cancel()
		return m.acquire(actx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the stored token so the next call authenticates again.
func (m *TokenManager) Invalidate(ctx context.Context) {
	if err := m.store.Delete(ctx); err != nil {
		m.logger.Warn("Failed to invalidate gateway token", logging.Fields{"error": err.Error()})
	}
}

func (m *TokenManager) cached(ctx context.Context) *models.AuthToken {
	tok, err := m.store.Get(ctx)
	if err != nil {
		m.logger.Warn("Token store read failed", logging.Fields{"error": err.Error()})
		return nil
	}
	return tok
}

func (m *TokenManager) acquire(ctx context.Context) (string, error) {
	// Another flight may have stored a token since the first check.
	current := m.cached(ctx)
	if current.ValidAt(m.now()) {
		return current.Value, nil
	}

	if current != nil && current.RefreshToken != "" {
		tok, err := m.source.Refresh(ctx, current.RefreshToken)
		if err == nil {
			m.metrics.TokenAcquisition("refresh", "success")
			m.save(ctx, tok)
			return tok.Value, nil
		}
		m.metrics.TokenAcquisition("refresh", "failure")
		m.logger.Warn("Gateway token refresh failed, logging in", logging.Fields{"error": err.Error()})
	}

	tok, err := m.source.Login(ctx)
	if err != nil {
		m.metrics.TokenAcquisition("login", "failure")
		m.logger.Error("Gateway login failed", logging.Fields{"error": err.Error()})
		return "", fmt.Errorf("%w: %v", errors.ErrGatewayAuth, err)
	}

	m.metrics.TokenAcquisition("login", "success")
	m.save(ctx, tok)
	return tok.Value, nil
}

func (m *TokenManager) save(ctx context.Context, tok *models.AuthToken) {
	if err := m.store.Set(ctx, tok); err != nil {
		m.logger.Warn("Failed to store gateway token", logging.Fields{"error": err.Error()})
	}
}
