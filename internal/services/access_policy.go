package services

import (
	"fmt"

	"bidding-engine/internal/domain"
)

// AccessPolicy maps an operation to the roles allowed to run it. An operation
// mapped to no roles is open to everyone, including anonymous callers.
type AccessPolicy struct {
	rules map[domain.Operation][]domain.Role
}

func NewAccessPolicy() *AccessPolicy {
	return &AccessPolicy{
		rules: map[domain.Operation][]domain.Role{
			domain.OpCreateAuction: {domain.RoleSeller},
			domain.OpPlaceBid:      {domain.RoleBuyer},
			domain.OpGetAuction:    nil,
			domain.OpListAuctions:  nil,
		},
	}
}

func (p *AccessPolicy) Authorize(identity domain.Identity, op domain.Operation) error {
	roles, known := p.rules[op]
	if !known {
		return fmt.Errorf("%w: unknown operation %q", domain.ErrForbidden, op)
	}
	if len(roles) == 0 {
		return nil
	}
	if identity.IsZero() {
		return fmt.Errorf("%w: %s requires an identity", domain.ErrForbidden, op)
	}
	for _, role := range roles {
		if identity.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q may not %s", domain.ErrForbidden, identity.Role, op)
}
