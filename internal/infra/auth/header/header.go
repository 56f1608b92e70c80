package header

import (
	"context"
	"strings"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
)

const DefaultHeader = "X-Principal-Subject"

// Authenticator trusts a subject header set by an upstream gateway that has
// already authenticated the caller. Only deploy it behind such a gateway.
type Authenticator struct {
	header string
}

func NewAuthenticator(header string) *Authenticator {
	header = strings.TrimSpace(header)
	if header == "" {
		header = DefaultHeader
	}
	return &Authenticator{header: header}
}

// Header names the request header the transport must read.
func (a *Authenticator) Header() string {
	return a.header
}

func (a *Authenticator) Authenticate(_ context.Context, value string) (domain.Principal, error) {
	subject := strings.TrimSpace(value)
	if subject == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	return domain.Principal{Subject: subject}, nil
}

var _ domain.Authenticator = (*Authenticator)(nil)
