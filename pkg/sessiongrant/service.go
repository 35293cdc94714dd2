package sessiongrant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DEFAULT_GRANT_EXPIRY bounds how long a grant can be exchanged for a session.
const DEFAULT_GRANT_EXPIRY = 10 * time.Minute

// Grant is the capability handed back after a successful challenge. The
// holder exchanges it with the session layer; this package never mints
// sessions itself.
type Grant struct {
	Token     string    `json:"grant_token"`
	ExpiresAt time.Time `json:"expires_at"`
	Method    string    `json:"method"`
}

// GrantService issues and validates session grants
type GrantService struct {
	generator TokenGenerator
	expiry    time.Duration
}

// Option configures a GrantService
type Option func(*GrantService)

// WithExpiry overrides the grant lifetime
func WithExpiry(expiry time.Duration) Option {
	return func(s *GrantService) {
		s.expiry = expiry
	}
}

// NewGrantService creates a new grant service
func NewGrantService(generator TokenGenerator, opts ...Option) *GrantService {
	service := &GrantService{
		generator: generator,
		expiry:    DEFAULT_GRANT_EXPIRY,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// IssueGrant signs a grant for the user, naming the method that satisfied
// the challenge. Only the challenge orchestrator's success path calls this.
func (s *GrantService) IssueGrant(ctx context.Context, userID uuid.UUID, method string) (*Grant, error) {
	if method == "" {
		return nil, fmt.Errorf("grant method cannot be empty")
	}

	token, expiresAt, err := s.generator.GenerateToken(userID.String(), method, s.expiry)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session grant: %w", err)
	}

	slog.Info("session grant issued", "user_id", userID, "method", method, "expires_at", expiresAt)
	return &Grant{
		Token:     token,
		ExpiresAt: expiresAt,
		Method:    method,
	}, nil
}

// ValidateGrant parses a grant token and confirms it proves a completed
// second-factor verification.
func (s *GrantService) ValidateGrant(ctx context.Context, token string) (*GrantClaims, error) {
	claims, err := s.generator.ParseToken(token)
	if err != nil {
		return nil, err
	}
	if !claims.TwofaVerified {
		return nil, fmt.Errorf("token does not prove second-factor verification")
	}
	return claims, nil
}
