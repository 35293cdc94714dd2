package challenge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/licensemart/stepup-auth/pkg/audit"
)

// NoOpChallengeService is a no-op implementation of ChallengeService.
// This allows services that depend on ChallengeService to work without
// actual step-up verification when 2FA is not needed/configured.
//
// All methods return errors indicating step-up verification is not configured.
type NoOpChallengeService struct{}

// NewNoOpChallengeService creates a new no-op challenge service.
// Use this when you don't need step-up verification.
func NewNoOpChallengeService() ChallengeService {
	return &NoOpChallengeService{}
}

func (n *NoOpChallengeService) InitiateChallenge(ctx context.Context, userID uuid.UUID, info audit.RequestInfo) (*ChallengeInfo, error) {
	return nil, fmt.Errorf("step-up verification not configured")
}

func (n *NoOpChallengeService) VerifyChallenge(ctx context.Context, token, code string, info audit.RequestInfo) (*VerifyResult, error) {
	return nil, fmt.Errorf("step-up verification not configured")
}
