package records

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/SooryaCodes/medchainx-sub000/internal/access"
	"github.com/SooryaCodes/medchainx-sub000/internal/ledger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/monitoring"
	"github.com/SooryaCodes/medchainx-sub000/pkg/types"
)

// Service exposes the ledger and the access token policy to the API layer
type Service struct {
	chain   *ledger.Chain
	policy  *access.Policy
	metrics *monitoring.MetricsCollector
	tracing *monitoring.TracingManager
	logger  *logger.Logger
}

// NewService creates a new records service around the process-wide chain
func NewService(
	chain *ledger.Chain,
	policy *access.Policy,
	metrics *monitoring.MetricsCollector,
	tracing *monitoring.TracingManager,
	log *logger.Logger,
) *Service {
	metrics.SetLedgerLength(chain.Len())
	return &Service{
		chain:   chain,
		policy:  policy,
		metrics: metrics,
		tracing: tracing,
		logger:  log,
	}
}

// AddRecord appends record to the ledger and returns the committed block
func (s *Service) AddRecord(ctx context.Context, record types.Record) (ledger.Block, error) {
	ctx, span := s.tracing.StartLedgerSpan(ctx, "append")
	defer span.End()
	span.SetAttributes(attribute.String("ledger.record_kind", string(record.Kind)))

	start := time.Now()
	block, err := s.chain.Append(ctx, record)
	duration := time.Since(start)

	s.metrics.RecordLedgerAppend(string(record.Kind), err == nil, duration, s.chain.Len())
	if err != nil {
		s.tracing.RecordError(span, err)
		if !errors.Is(err, types.ErrValidation) {
			s.metrics.RecordSystemError("ledger_append", "ledger")
		}
		return ledger.Block{}, err
	}

	span.SetAttributes(attribute.Int64("ledger.index", int64(block.Index)))
	s.logger.LedgerAppend(ctx, block.Index, string(record.Kind), record.RecordID(), block.Hash, duration.Milliseconds())
	return block, nil
}

// GetRecord returns the earliest block carrying the record id
func (s *Service) GetRecord(ctx context.Context, id string) (ledger.Block, error) {
	_, span := s.tracing.StartLedgerSpan(ctx, "lookup")
	defer span.End()

	block, ok := s.chain.FindByRecordID(id)
	if !ok {
		return ledger.Block{}, types.NewNotFoundError(types.ErrCodeRecordNotFound, "record not found")
	}
	return block, nil
}

// Blocks returns a snapshot of the whole chain
func (s *Service) Blocks(ctx context.Context) []ledger.Block {
	return s.chain.GetAll()
}

// VerifyChain walks the chain and raises an operator alert on any violation
func (s *Service) VerifyChain(ctx context.Context) ledger.IntegrityReport {
	ctx, span := s.tracing.StartLedgerSpan(ctx, "verify")
	defer span.End()

	report := s.chain.Verify()
	s.metrics.RecordVerification(report.Valid, len(report.Violations))
	span.SetAttributes(
		attribute.Bool("ledger.valid", report.Valid),
		attribute.Int("ledger.length", report.Length),
	)

	if first, found := report.FirstViolation(); found {
		s.tracing.RecordError(span, report.Err())
		s.logger.IntegrityViolation(ctx, first.Index, string(first.Reason), len(report.Violations))
	}
	return report
}

// IssueToken issues an access token over subjectID's records
func (s *Service) IssueToken(ctx context.Context, subjectID string, window time.Duration) (*types.AccessToken, error) {
	ctx, span := s.tracing.StartTokenSpan(ctx, "issue")
	defer span.End()

	token, err := s.policy.Issue(ctx, subjectID, window)
	s.recordTokenOperation(span, "issue", err)
	return token, err
}

// ValidateToken checks a presented token
func (s *Service) ValidateToken(ctx context.Context, value string) (*types.TokenGrant, error) {
	ctx, span := s.tracing.StartTokenSpan(ctx, "validate")
	defer span.End()

	grant, err := s.policy.Validate(ctx, value)
	s.recordTokenOperation(span, "validate", err)
	return grant, err
}

// RevokeToken revokes a live token
func (s *Service) RevokeToken(ctx context.Context, value string) error {
	ctx, span := s.tracing.StartTokenSpan(ctx, "revoke")
	defer span.End()

	err := s.policy.Revoke(ctx, value)
	s.recordTokenOperation(span, "revoke", err)
	return err
}

// PatientHistory returns every block referencing patientID, provided the token
// is live and was issued for that patient.
func (s *Service) PatientHistory(ctx context.Context, tokenValue, patientID string) ([]ledger.Block, error) {
	grant, err := s.ValidateToken(ctx, tokenValue)
	if err != nil {
		return nil, err
	}

	if grant.SubjectID != patientID {
		s.logger.Security(ctx, "token_subject_mismatch", map[string]interface{}{
			"token_id":   grant.TokenID,
			"subject_id": grant.SubjectID,
			"requested":  patientID,
		})
		return nil, types.NewForbiddenError(types.ErrCodeForbidden, "access token does not cover this patient")
	}

	blocks := s.chain.FindAll(func(b ledger.Block) bool {
		return b.Payload.PatientID() == patientID
	})
	s.logger.Audit(ctx, grant.TokenID, "read_patient_history", patientID, true, map[string]interface{}{
		"blocks": len(blocks),
	})
	return blocks, nil
}

func (s *Service) recordTokenOperation(span trace.Span, operation string, err error) {
	result := monitoring.ResultSuccess
	switch {
	case err == nil:
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrInvalidToken), errors.Is(err, types.ErrTokenNotFound):
		result = monitoring.ResultRejected
	default:
		result = monitoring.ResultError
		s.tracing.RecordError(span, err)
	}
	s.metrics.RecordTokenOperation(operation, result)
	span.SetAttributes(attribute.String("access_token.result", result))
}
