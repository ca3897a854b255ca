package compliance

import (
	"fundvault/crypto"
)

// RestrictionCode is the gate verdict attached to every evaluated transfer.
// The triad of values and their messages is a stable contract consumed by
// downstream indexers and must not be renumbered.
type RestrictionCode uint8

const (
	// RestrictionSuccess allows the transfer.
	RestrictionSuccess RestrictionCode = iota
	// RestrictionNotEligible rejects the transfer because a party lacks the
	// required classification.
	RestrictionNotEligible
	// RestrictionBanned rejects the transfer because a party is banned.
	RestrictionBanned
)

// Message renders the fixed human-readable form of the code.
func (c RestrictionCode) Message() string {
	switch c {
	case RestrictionSuccess:
		return "SUCCESS"
	case RestrictionNotEligible:
		return "The transfer is restricted: party not eligible"
	case RestrictionBanned:
		return "The transfer is restricted: party banned"
	default:
		return "The transfer is restricted: unknown reason"
	}
}

// Gate evaluates the transfer restriction rules against the registry. It is
// consulted on every share transfer apart from mints, burns and
// vault-internal moves; those exemptions are applied by the share ledger,
// not here.
type Gate struct {
	registry *Registry
}

// NewGate binds a gate to the eligibility registry.
func NewGate(registry *Registry) *Gate {
	return &Gate{registry: registry}
}

// Detect applies the restriction rules in their fixed order: ban flags
// first, then strict-mode classification of both parties, then the
// restricted-sender rule. It errors only when the registry itself fails.
func (g *Gate) Detect(from, to crypto.Address) (RestrictionCode, error) {
	if g == nil || g.registry == nil {
		return RestrictionSuccess, nil
	}
	fromBanned, err := g.registry.IsBanned(from)
	if err != nil {
		return RestrictionNotEligible, err
	}
	toBanned, err := g.registry.IsBanned(to)
	if err != nil {
		return RestrictionNotEligible, err
	}
	if fromBanned || toBanned {
		return RestrictionBanned, nil
	}
	strict, err := g.registry.IsStrict()
	if err != nil {
		return RestrictionNotEligible, err
	}
	if strict {
		fromKyc, err := g.registry.IsKyc(from)
		if err != nil {
			return RestrictionNotEligible, err
		}
		toKyc, err := g.registry.IsKyc(to)
		if err != nil {
			return RestrictionNotEligible, err
		}
		if !fromKyc || !toKyc {
			return RestrictionNotEligible, nil
		}
		return RestrictionSuccess, nil
	}
	fromUS, err := g.registry.IsUSKyc(from)
	if err != nil {
		return RestrictionNotEligible, err
	}
	if fromUS {
		toKyc, err := g.registry.IsKyc(to)
		if err != nil {
			return RestrictionNotEligible, err
		}
		if !toKyc {
			return RestrictionNotEligible, nil
		}
	}
	return RestrictionSuccess, nil
}
