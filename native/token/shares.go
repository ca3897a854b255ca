package token

import (
	"errors"
	"fmt"
	"math/big"

	"fundvault/core/events"
	"fundvault/crypto"
	"fundvault/native/compliance"
)

var (
	// ErrTransferRestricted rejects transfers blocked by the restriction
	// gate. The wrapped message carries the gate's fixed restriction text.
	ErrTransferRestricted = errors.New("token: transfer restricted")

	errNilShareState = errors.New("token: share state not configured")
)

type shareState interface {
	ShareBalance(addr crypto.Address) (*big.Int, error)
	SetShareBalance(addr crypto.Address, balance *big.Int) error
	ShareTotalSupply() (*big.Int, error)
	SetShareTotalSupply(supply *big.Int) error
}

// ShareLedger tracks fund share balances. Every balance-changing transfer
// between distinct non-vault parties passes through the restriction gate;
// mints, burns, self moves and vault-custody moves are exempt.
type ShareLedger struct {
	state   shareState
	gate    *compliance.Gate
	vault   crypto.Address
	emitter events.Emitter
}

// NewShareLedger constructs a share ledger. The vault address identifies
// custody moves exempt from gating.
func NewShareLedger(state shareState, gate *compliance.Gate, vault crypto.Address) *ShareLedger {
	return &ShareLedger{state: state, gate: gate, vault: vault, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *ShareLedger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *ShareLedger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	if l.state == nil {
		return nil, errNilShareState
	}
	balance, err := l.state.ShareBalance(addr)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (l *ShareLedger) TotalSupply() (*big.Int, error) {
	if l.state == nil {
		return nil, errNilShareState
	}
	supply, err := l.state.ShareTotalSupply()
	if err != nil {
		return nil, err
	}
	if supply == nil {
		return big.NewInt(0), nil
	}
	return supply, nil
}

// Mint issues new shares to an address, growing total supply in lockstep.
func (l *ShareLedger) Mint(to crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilShareState
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	if err := l.state.SetShareBalance(to, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	return l.state.SetShareTotalSupply(new(big.Int).Add(supply, amount))
}

// Burn destroys shares held by an address, shrinking total supply in
// lockstep.
func (l *ShareLedger) Burn(from crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilShareState
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s shares, burning %s", ErrInsufficientFunds, from.String(), balance, amount)
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	if err := l.state.SetShareBalance(from, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	return l.state.SetShareTotalSupply(new(big.Int).Sub(supply, amount))
}

func (l *ShareLedger) gateExempt(from, to crypto.Address) bool {
	if from.Equal(to) {
		return true
	}
	if !l.vault.IsZero() && (from.Equal(l.vault) || to.Equal(l.vault)) {
		return true
	}
	return false
}

// Transfer moves shares between two holders, consulting the restriction
// gate unless the move is exempt.
func (l *ShareLedger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilShareState
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if l.gate != nil && !l.gateExempt(from, to) {
		code, err := l.gate.Detect(from, to)
		if err != nil {
			return err
		}
		if code != compliance.RestrictionSuccess {
			l.emitter.Emit(events.TransferRejected{From: from, To: to, Code: uint8(code)})
			return fmt.Errorf("%w: %s", ErrTransferRestricted, code.Message())
		}
	}
	fromBalance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s shares, sending %s", ErrInsufficientFunds, from.String(), fromBalance, amount)
	}
	if from.Equal(to) {
		return nil
	}
	toBalance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	if err := l.state.SetShareBalance(from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.state.SetShareBalance(to, new(big.Int).Add(toBalance, amount))
}
