package domain

import "errors"

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrMalformedSignature  = errors.New("malformed signature")
	ErrRecoveryImpossible  = errors.New("recovery impossible")
	ErrIntegrityViolation  = errors.New("integrity violation")
	ErrUnsupportedChainID  = errors.New("unsupported chain id")
	ErrInvalidPublicKey    = errors.New("invalid public key")
	ErrInvalidClaim        = errors.New("invalid claim")
	ErrInvalidDigest       = errors.New("invalid digest")
	ErrUnknownKeyType      = errors.New("unknown key type")
	ErrInvalidKeyReference = errors.New("invalid key reference")
	ErrVerifierUnavailable = errors.New("verifier unavailable")
)

// Rejection is a terminal, caller-visible pipeline outcome. Code is an
// HTTP-style status (400 or 401) and Message one of the fixed strings below.
type Rejection struct {
	Code    int
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

func Reject(code int, message string) *Rejection {
	return &Rejection{Code: code, Message: message}
}

func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

const (
	MsgUnauthorizedCall   = "Unauthorized Call"
	MsgInvalidAuthType    = "Invalid auth type"
	MsgInvalidOAuthInput  = "Invalid input for OAuth validation."
	MsgInvalidToken       = "Invalid Token."
	MsgInvalidFollowInput = "Invalid input for follow validation."
	MsgNotFollower        = "not a follower"
	MsgInvalidRepostInput = "Invalid input for repost validation."
	MsgNotReposted        = "hasn't reposted"
	MsgDeniedByPolicy     = "Denied by policy."
	MsgInvalidProofInput  = "Invalid input for auth proof."
	MsgInvalidKeyType     = "Invalid key type."
	MsgInvalidChainID     = "Invalid chain id."
	MsgInvalidMessage     = "Invalid message."
	MsgInternalError      = "Internal error."
)
