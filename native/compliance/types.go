package compliance

import "strings"

// KycType classifies an investor for transfer eligibility purposes.
type KycType uint8

const (
	// KycNone marks an address with no recorded classification.
	KycNone KycType = iota
	// KycGeneral marks a classified investor without jurisdiction
	// restrictions.
	KycGeneral
	// KycUS marks a jurisdiction-restricted investor whose counterparties
	// must themselves be classified.
	KycUS
)

func (t KycType) String() string {
	switch t {
	case KycGeneral:
		return "general"
	case KycUS:
		return "us"
	default:
		return "none"
	}
}

// ParseKycType resolves the canonical string form of a classification.
func ParseKycType(raw string) (KycType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none", "":
		return KycNone, true
	case "general":
		return KycGeneral, true
	case "us":
		return KycUS, true
	default:
		return KycNone, false
	}
}

// KycRecord captures the classification and ban flag held for an address.
type KycRecord struct {
	Type   KycType
	Banned bool
}

// Copy returns a defensive copy of the record.
func (r *KycRecord) Copy() *KycRecord {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}
