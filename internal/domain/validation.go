package domain

type PipelineState string

const (
	StateStart           PipelineState = "start"
	StateIdentityChecked PipelineState = "identity_checked"
	StateSocialChecked   PipelineState = "social_checked"
	StateClaimBuilt      PipelineState = "claim_built"
	StateSigned          PipelineState = "signed"
	StateDone            PipelineState = "done"
	StateRejected        PipelineState = "rejected"
)

// VerifiedIdentity records what a single validator established.
type VerifiedIdentity struct {
	Kind    string         `json:"kind"`
	Subject string         `json:"subject,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ValidationContext is owned by exactly one request.
type ValidationContext struct {
	Subject  string
	Request  ProofRequest
	State    PipelineState
	Verified []VerifiedIdentity
}

func NewValidationContext(subject string, req ProofRequest) *ValidationContext {
	return &ValidationContext{
		Subject: subject,
		Request: req,
		State:   StateStart,
	}
}

func (vc *ValidationContext) StringParam(key string) string {
	if vc == nil || vc.Request.Params == nil {
		return ""
	}
	v, _ := vc.Request.Params[key].(string)
	return v
}

func (vc *ValidationContext) BoolParam(key string) bool {
	if vc == nil || vc.Request.Params == nil {
		return false
	}
	switch v := vc.Request.Params[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}
