package compliance

import (
	"errors"
	"fmt"

	"fundvault/core/events"
	"fundvault/crypto"
)

var (
	// ErrBanned is returned when an address carries the ban flag.
	ErrBanned = errors.New("compliance: address is banned")
	// ErrNotKyc is returned when an address has no classification.
	ErrNotKyc = errors.New("compliance: address is not KYC classified")

	errNilState = errors.New("compliance registry: state not configured")
)

type registryState interface {
	KycRecord(addr crypto.Address) (*KycRecord, bool, error)
	PutKycRecord(addr crypto.Address, record *KycRecord) error
	StrictMode() (bool, error)
	SetStrictMode(enabled bool) error
}

// Registry owns the per-address eligibility records consulted by the vault
// and the share transfer gate. It is mutated only through the admin setters;
// every read is side-effect free.
type Registry struct {
	state   registryState
	emitter events.Emitter
}

// NewRegistry creates a registry with a no-op emitter.
func NewRegistry() *Registry {
	return &Registry{emitter: events.NoopEmitter{}}
}

// SetState wires the registry to the external persistence layer.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) record(addr crypto.Address) (*KycRecord, error) {
	if r.state == nil {
		return nil, errNilState
	}
	record, ok, err := r.state.KycRecord(addr)
	if err != nil {
		return nil, fmt.Errorf("compliance: load record: %w", err)
	}
	if !ok || record == nil {
		return &KycRecord{}, nil
	}
	return record, nil
}

// Record returns a copy of the address's eligibility record. Unclassified
// addresses read as a zero record rather than an error.
func (r *Registry) Record(addr crypto.Address) (*KycRecord, error) {
	record, err := r.record(addr)
	if err != nil {
		return nil, err
	}
	return record.Copy(), nil
}

// IsBanned reports whether the address carries the ban flag.
func (r *Registry) IsBanned(addr crypto.Address) (bool, error) {
	record, err := r.record(addr)
	if err != nil {
		return false, err
	}
	return record.Banned, nil
}

// IsKyc reports whether the address holds any non-none classification.
func (r *Registry) IsKyc(addr crypto.Address) (bool, error) {
	record, err := r.record(addr)
	if err != nil {
		return false, err
	}
	return record.Type != KycNone, nil
}

// IsUSKyc reports whether the address is jurisdiction-restricted.
func (r *Registry) IsUSKyc(addr crypto.Address) (bool, error) {
	record, err := r.record(addr)
	if err != nil {
		return false, err
	}
	return record.Type == KycUS, nil
}

// IsStrict reports the global strict-mode toggle.
func (r *Registry) IsStrict() (bool, error) {
	if r.state == nil {
		return false, errNilState
	}
	return r.state.StrictMode()
}

// CheckNotBanned returns ErrBanned when the address carries the ban flag.
func (r *Registry) CheckNotBanned(addr crypto.Address) error {
	banned, err := r.IsBanned(addr)
	if err != nil {
		return err
	}
	if banned {
		return fmt.Errorf("%w: %s", ErrBanned, addr.String())
	}
	return nil
}

// CheckKyc returns ErrNotKyc when the address has no classification.
func (r *Registry) CheckKyc(addr crypto.Address) error {
	classified, err := r.IsKyc(addr)
	if err != nil {
		return err
	}
	if !classified {
		return fmt.Errorf("%w: %s", ErrNotKyc, addr.String())
	}
	return nil
}

// SetKyc records the classification and ban flag for an address.
func (r *Registry) SetKyc(addr crypto.Address, kycType KycType, banned bool) error {
	if r.state == nil {
		return errNilState
	}
	record := &KycRecord{Type: kycType, Banned: banned}
	if err := r.state.PutKycRecord(addr, record); err != nil {
		return fmt.Errorf("compliance: store record: %w", err)
	}
	r.emitter.Emit(events.KycUpdated{Address: addr, KycType: kycType.String(), Banned: banned})
	return nil
}

// SetStrict flips the global strict-mode toggle.
func (r *Registry) SetStrict(enabled bool) error {
	if r.state == nil {
		return errNilState
	}
	if err := r.state.SetStrictMode(enabled); err != nil {
		return fmt.Errorf("compliance: store strict mode: %w", err)
	}
	r.emitter.Emit(events.StrictModeSet{Enabled: enabled})
	return nil
}
