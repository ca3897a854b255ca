package token

import (
	"errors"
	"fmt"
	"math/big"

	"fundvault/crypto"
)

var (
	// ErrInvalidAmount rejects nil, zero or negative transfer amounts.
	ErrInvalidAmount = errors.New("token: amount must be positive")
	// ErrInsufficientFunds rejects transfers exceeding the sender balance.
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	// ErrInsufficientAllowance rejects pulls exceeding the approved amount.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")

	errNilReserveState = errors.New("token: reserve state not configured")
)

// Reserve is the narrow view of the fund's backing asset consumed by the
// vault engine. The asset itself is an external collaborator; the engine
// only needs balance reads, allowance reads and the two transfer forms.
type Reserve interface {
	BalanceOf(addr crypto.Address) (*big.Int, error)
	Allowance(owner, spender crypto.Address) (*big.Int, error)
	Transfer(from, to crypto.Address, amount *big.Int) error
	TransferFrom(spender, owner, to crypto.Address, amount *big.Int) error
}

type reserveState interface {
	ReserveBalance(addr crypto.Address) (*big.Int, error)
	SetReserveBalance(addr crypto.Address, balance *big.Int) error
	ReserveAllowance(owner, spender crypto.Address) (*big.Int, error)
	SetReserveAllowance(owner, spender crypto.Address, amount *big.Int) error
}

// ReserveLedger is a storage-backed implementation of Reserve with standard
// transfer/transferFrom/approve semantics. The daemon wires it over the
// shared state store; tests run it over a mock.
type ReserveLedger struct {
	state reserveState
}

// NewReserveLedger constructs a reserve ledger bound to the given state.
func NewReserveLedger(state reserveState) *ReserveLedger {
	return &ReserveLedger{state: state}
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (l *ReserveLedger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	if l.state == nil {
		return nil, errNilReserveState
	}
	balance, err := l.state.ReserveBalance(addr)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (l *ReserveLedger) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	if l.state == nil {
		return nil, errNilReserveState
	}
	allowance, err := l.state.ReserveAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	if allowance == nil {
		return big.NewInt(0), nil
	}
	return allowance, nil
}

// Approve sets the spender's allowance over the owner's reserve balance.
func (l *ReserveLedger) Approve(owner, spender crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilReserveState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return l.state.SetReserveAllowance(owner, spender, new(big.Int).Set(amount))
}

// Mint credits freshly issued reserve units to an address. Exposed for
// bootstrap and tests; a production deployment tracks an external asset.
func (l *ReserveLedger) Mint(to crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilReserveState
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	return l.state.SetReserveBalance(to, new(big.Int).Add(balance, amount))
}

func (l *ReserveLedger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilReserveState
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	fromBalance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.String(), fromBalance, amount)
	}
	if from.Equal(to) {
		return nil
	}
	toBalance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	if err := l.state.SetReserveBalance(from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.state.SetReserveBalance(to, new(big.Int).Add(toBalance, amount))
}

func (l *ReserveLedger) TransferFrom(spender, owner, to crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilReserveState
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	allowance, err := l.Allowance(owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s approved %s, needs %s", ErrInsufficientAllowance, owner.String(), allowance, amount)
	}
	if err := l.Transfer(owner, to, amount); err != nil {
		return err
	}
	return l.state.SetReserveAllowance(owner, spender, new(big.Int).Sub(allowance, amount))
}
