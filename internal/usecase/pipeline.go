package usecase

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/crypto"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/ethsig"

	"go.uber.org/zap"
)

// Pipeline gates proof issuance: caller authentication, auth type, the
// registered validators in order, the optional policy gate, then claim
// construction and signing.
type Pipeline struct {
	Registry *Registry
	Signers  *Signers
	// Policy runs after the registered validators for every auth type. Nil
	// disables the gate.
	Policy *PolicyValidator
	Audit  *AuditEmitter
	Clock  Clock
	// IssuedAtMillis stamps issuedAt in milliseconds instead of seconds.
	IssuedAtMillis bool
	Logger         *zap.Logger
}

// Issue runs one request to a terminal state. It never returns internal error
// detail in the result; that goes to the log.
func (p *Pipeline) Issue(ctx context.Context, subject string, req domain.ProofRequest) domain.Result {
	vc := domain.NewValidationContext(subject, req)
	result := p.run(ctx, vc)
	if p.Audit != nil {
		if err := p.Audit.EmitDecision(ctx, vc, result); err != nil {
			p.logger().Warn("audit emit failed", zap.String("request_id", req.RequestID), zap.Error(err))
		}
	}
	return result
}

func (p *Pipeline) run(ctx context.Context, vc *domain.ValidationContext) domain.Result {
	log := p.logger().With(
		zap.String("request_id", vc.Request.RequestID),
		zap.String("auth_type", string(vc.Request.AuthType)),
	)
	if vc.Subject == "" {
		return p.reject(vc, log, domain.Reject(http.StatusUnauthorized, domain.MsgUnauthorizedCall))
	}
	validators, ok := p.Registry.Lookup(vc.Request.AuthType)
	if !ok {
		return p.reject(vc, log, domain.Reject(http.StatusBadRequest, domain.MsgInvalidAuthType))
	}
	if rej := checkProofInput(vc.Request); rej != nil {
		return p.reject(vc, log, rej)
	}
	oracle, err := p.Signers.Get(vc.Request.KeyType)
	if err != nil {
		return p.reject(vc, log, domain.Reject(http.StatusBadRequest, domain.MsgInvalidKeyType))
	}

	for _, v := range validators {
		if s, ok := v.(skippable); ok && s.Skipped(vc) {
			continue
		}
		if res, done := p.gate(ctx, vc, log, v); done {
			return res
		}
	}
	if p.Policy != nil {
		if res, done := p.gate(ctx, vc, log, p.Policy); done {
			return res
		}
	}

	claim := domain.AuthProofClaim{
		Name:         vc.Request.Name,
		RequestID:    vc.Request.RequestID,
		AuthType:     vc.Request.AuthType,
		IdentityType: vc.Request.IdentityType,
		IssuedAt:     p.issuedAt(),
	}
	vc.State = domain.StateClaimBuilt
	proof, err := oracle.SignClaim(ctx, claim, vc.Request.ChainID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidClaim) {
			return p.reject(vc, log, domain.Reject(http.StatusBadRequest, domain.MsgInvalidProofInput))
		}
		return p.fail(vc, log, "sign claim", err)
	}
	vc.State = domain.StateSigned
	log.Info("auth proof issued", zap.Uint64("issued_at", claim.IssuedAt), zap.Uint64("v", proof.V))
	vc.State = domain.StateDone
	return domain.Result{Code: http.StatusOK, AuthProof: &proof}
}

// gate runs one validator. done is true when the pipeline must stop.
func (p *Pipeline) gate(ctx context.Context, vc *domain.ValidationContext, log *zap.Logger, v Validator) (domain.Result, bool) {
	verified, err := v.Validate(ctx, vc)
	if err != nil {
		if rej, ok := domain.AsRejection(err); ok {
			return p.reject(vc, log.With(zap.String("validator", v.Name())), rej), true
		}
		return p.fail(vc, log, v.Name(), err), true
	}
	vc.Verified = append(vc.Verified, verified)
	if socialValidator(v) {
		vc.State = domain.StateSocialChecked
	} else if vc.State == domain.StateStart {
		vc.State = domain.StateIdentityChecked
	}
	return domain.Result{}, false
}

func checkProofInput(req domain.ProofRequest) *domain.Rejection {
	if req.RequestID == "" || req.IdentityType == "" {
		return domain.Reject(http.StatusBadRequest, domain.MsgInvalidProofInput)
	}
	for _, field := range []string{req.Name, req.RequestID, req.IdentityType, string(req.AuthType)} {
		if _, err := crypto.Bytes32String(field); err != nil {
			return domain.Reject(http.StatusBadRequest, domain.MsgInvalidProofInput)
		}
	}
	if err := ethsig.CheckChainID(req.ChainID); err != nil {
		return domain.Reject(http.StatusBadRequest, domain.MsgInvalidChainID)
	}
	return nil
}

func (p *Pipeline) reject(vc *domain.ValidationContext, log *zap.Logger, rej *domain.Rejection) domain.Result {
	vc.State = domain.StateRejected
	log.Info("auth proof rejected", zap.Int("code", rej.Code), zap.String("message", rej.Message))
	return domain.Result{Code: rej.Code, Message: rej.Message}
}

func (p *Pipeline) fail(vc *domain.ValidationContext, log *zap.Logger, step string, err error) domain.Result {
	from := vc.State
	vc.State = domain.StateRejected
	log.Error("auth proof failed", zap.String("step", step), zap.String("state", string(from)), zap.Error(err))
	return domain.Result{Code: http.StatusInternalServerError, Message: domain.MsgInternalError}
}

func (p *Pipeline) issuedAt() uint64 {
	now := time.Now
	if p.Clock != nil {
		now = p.Clock
	}
	t := now()
	if p.IssuedAtMillis {
		return uint64(t.UnixMilli())
	}
	return uint64(t.Unix())
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
