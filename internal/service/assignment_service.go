package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
)

// Assignment is the resolved caller and group for a new ticket.
type Assignment struct {
	Caller         domain.UserRef
	Group          domain.GroupRef
	CallerFallback bool
	GroupFallback  bool
}

// AssignmentService resolves caller and assignment group with independent
// per-field fallback.
type AssignmentService struct {
	ticketing Ticketing
	fallback  domain.FallbackConfig
	timeout   time.Duration
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Ticketing Ticketing
	Fallback  domain.FallbackConfig
	Timeout   time.Duration
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		ticketing: deps.Ticketing,
		fallback:  deps.Fallback,
		timeout:   deps.Timeout,
		metrics:   deps.Metrics,
		logger:    logger.With(zap.String("component", "assignment")),
	}
}

// Resolve looks up the requester and the category's group. A miss or failure
// on one field substitutes that field's fallback only.
func (s *AssignmentService) Resolve(ctx context.Context, requesterEmail, category string) Assignment {
	var out Assignment

	caller, err := s.lookupUser(ctx, requesterEmail)
	if err != nil {
		s.logLookupFailure("caller", requesterEmail, err)
		out.Caller = s.fallback.DefaultCaller
		out.CallerFallback = true
	} else {
		out.Caller = caller
	}

	group, err := s.lookupGroup(ctx, category)
	if err != nil {
		s.logLookupFailure("group", category, err)
		out.Group = s.fallback.GroupFor(category)
		out.GroupFallback = true
	} else {
		out.Group = group
	}

	return out
}

func (s *AssignmentService) lookupUser(ctx context.Context, email string) (domain.UserRef, error) {
	if email == "" {
		return domain.UserRef{}, domain.ErrNotFound
	}
	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.ticketing.LookupUser(callCtx, email)
}

func (s *AssignmentService) lookupGroup(ctx context.Context, category string) (domain.GroupRef, error) {
	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.ticketing.LookupGroup(callCtx, category)
}

func (s *AssignmentService) logLookupFailure(field, key string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Info("lookup miss, using fallback", zap.String("field", field), zap.String("key", key))
		return
	}
	s.metrics.RecordAdapterFailure("ticketing", "lookup_"+field)
	s.logger.Warn("lookup failed, using fallback", zap.String("field", field), zap.String("key", key), zap.Error(err))
}
