package settlement

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/cleared-dev/splitpay/internal/model"
	"github.com/cleared-dev/splitpay/internal/xerrors"
)

// ErrAlreadySubmitted is returned by a second Submit on the same Submitter.
var ErrAlreadySubmitted = errors.New("settlement already submitted")

// Service creates settlements and returns the new settlement id.
type Service interface {
	CreateSettlement(ctx context.Context, req model.SettlementRequest) (int64, error)
}

// Submitter posts one settlement request. It validates before any network
// call and refuses to post twice.
type Submitter struct {
	svc    Service
	logger *zap.Logger

	mu        sync.Mutex
	submitted bool
	id        int64
}

// NewSubmitter creates a Submitter for one settlement action.
func NewSubmitter(svc Service, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{svc: svc, logger: logger}
}

// Submit validates req and posts it. Validation failures are returned as
// xerrors.ValidationErrors and leave the Submitter usable; a service error is
// recoverable and also leaves it usable. Once a post succeeds every later
// call returns ErrAlreadySubmitted.
func (s *Submitter) Submit(ctx context.Context, req model.SettlementRequest) (int64, error) {
	if errs := Validate(req); len(errs) > 0 {
		return 0, errs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted {
		return s.id, ErrAlreadySubmitted
	}

	id, err := s.svc.CreateSettlement(ctx, req)
	if err != nil {
		s.logger.Warn("settlement request failed",
			zap.Int64("leader_id", req.LeaderID),
			zap.Int64("total", req.TotalAmount),
			zap.Error(err))
		return 0, xerrors.Recoverable("create settlement", "", err)
	}
	s.submitted = true
	s.id = id
	s.logger.Info("settlement created",
		zap.Int64("settlement_id", id),
		zap.String("mode", string(req.Mode)),
		zap.Int64("total", req.TotalAmount),
		zap.Int("members", len(req.MemberAmounts)))
	return id, nil
}
