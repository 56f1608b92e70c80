package usecase

import (
	"errors"
	"fmt"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
)

// Registry maps auth types to their ordered validators. Register during
// startup only; lookups are unsynchronized.
type Registry struct {
	validators map[domain.AuthType][]Validator
}

func NewRegistry() *Registry {
	return &Registry{validators: make(map[domain.AuthType][]Validator)}
}

func (r *Registry) Register(authType domain.AuthType, validators ...Validator) error {
	if authType == "" {
		return errors.New("auth type is required")
	}
	if _, exists := r.validators[authType]; exists {
		return fmt.Errorf("auth type %q already registered", authType)
	}
	for i, v := range validators {
		if v == nil {
			return fmt.Errorf("auth type %q: validator %d is nil", authType, i)
		}
	}
	r.validators[authType] = append([]Validator(nil), validators...)
	return nil
}

func (r *Registry) Lookup(authType domain.AuthType) ([]Validator, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.validators[authType]
	return v, ok
}
