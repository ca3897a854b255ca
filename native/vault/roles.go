package vault

import (
	"sync"

	"fundvault/crypto"
)

// Role names a privilege class checked at engine entry points.
type Role string

const (
	// RoleAdmin may change vault parameters and sweep excess reserves.
	RoleAdmin Role = "admin"
	// RoleOperator may advance epochs, process the queue and claim fees.
	RoleOperator Role = "operator"
	// RoleOracle is the single identity allowed to fulfill requests.
	RoleOracle Role = "oracle"
)

// Roles maps each role to its granted principal set. Checks are pure
// predicates; there is no modifier chain behind them.
type Roles struct {
	mu     sync.RWMutex
	grants map[Role]map[string]struct{}
}

// NewRoles returns an empty role set.
func NewRoles() *Roles {
	return &Roles{grants: make(map[Role]map[string]struct{})}
}

// Grant adds the address to the role's principal set.
func (r *Roles) Grant(role Role, addr crypto.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.grants[role]
	if !ok {
		set = make(map[string]struct{})
		r.grants[role] = set
	}
	set[string(addr.Bytes())] = struct{}{}
}

// Revoke removes the address from the role's principal set.
func (r *Roles) Revoke(role Role, addr crypto.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.grants[role]; ok {
		delete(set, string(addr.Bytes()))
	}
}

// Has reports whether the address holds the role.
func (r *Roles) Has(role Role, addr crypto.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.grants[role]
	if !ok {
		return false
	}
	_, granted := set[string(addr.Bytes())]
	return granted
}
