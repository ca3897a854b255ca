package events

import (
	"fundvault/core/types"
	"fundvault/crypto"
)

const (
	TypeComplianceKycUpdated       = "compliance.kyc.updated"
	TypeComplianceStrictModeSet    = "compliance.strict.set"
	TypeComplianceTransferRejected = "compliance.transfer.rejected"
)

// KycUpdated is emitted whenever an address classification or ban flag
// changes.
type KycUpdated struct {
	Address crypto.Address
	KycType string
	Banned  bool
}

func (KycUpdated) EventType() string { return TypeComplianceKycUpdated }

func (e KycUpdated) Event() *types.Event {
	banned := "false"
	if e.Banned {
		banned = "true"
	}
	return &types.Event{
		Type: TypeComplianceKycUpdated,
		Attributes: map[string]string{
			"address": e.Address.String(),
			"kycType": e.KycType,
			"banned":  banned,
		},
	}
}

// StrictModeSet is emitted when the global strict-mode toggle changes.
type StrictModeSet struct {
	Enabled bool
}

func (StrictModeSet) EventType() string { return TypeComplianceStrictModeSet }

func (e StrictModeSet) Event() *types.Event {
	enabled := "false"
	if e.Enabled {
		enabled = "true"
	}
	return &types.Event{
		Type:       TypeComplianceStrictModeSet,
		Attributes: map[string]string{"enabled": enabled},
	}
}

// TransferRejected is emitted when the restriction gate blocks a share
// transfer. Code carries the gate's restriction code.
type TransferRejected struct {
	From crypto.Address
	To   crypto.Address
	Code uint8
}

func (TransferRejected) EventType() string { return TypeComplianceTransferRejected }

func (e TransferRejected) Event() *types.Event {
	return &types.Event{
		Type: TypeComplianceTransferRejected,
		Attributes: map[string]string{
			"from": e.From.String(),
			"to":   e.To.String(),
			"code": uintToString(uint64(e.Code)),
		},
	}
}
