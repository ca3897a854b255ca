package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"fundvault/crypto"
	"fundvault/native/compliance"
	"fundvault/native/vault"
)

// Key prefixes. Fixed-width big-endian suffixes keep numeric keys sortable.
var (
	keyVaultState  = []byte("vault/state")
	keyQueueHead   = []byte("vault/queue/head")
	keyQueueTail   = []byte("vault/queue/tail")
	prefPending    = []byte("vault/pending/")
	prefFlow       = []byte("vault/flow/")
	prefDeposited  = []byte("vault/deposited/")
	prefQueueEntry = []byte("vault/queue/entry/")
	prefReserveBal = []byte("reserve/balance/")
	prefReserveAlw = []byte("reserve/allowance/")
	prefShareBal   = []byte("shares/balance/")
	keyShareSupply = []byte("shares/supply")
	prefKycRecord  = []byte("compliance/kyc/")
	keyStrictMode  = []byte("compliance/strict")
)

// Store is the typed persistence layer shared by the vault engine, the
// token ledgers and the compliance registry. It speaks RLP over a plain
// key-value Database so every backend behaves identically.
type Store struct {
	db Database
}

func NewStore(db Database) *Store {
	return &Store{db: db}
}

func appendKey(prefix []byte, parts ...[]byte) []byte {
	key := make([]byte, 0, len(prefix)+20*len(parts))
	key = append(key, prefix...)
	for _, part := range parts {
		key = append(key, part...)
	}
	return key
}

func uint64Key(prefix []byte, parts [][]byte, index uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	key := appendKey(prefix, parts...)
	return append(key, buf[:]...)
}

func (s *Store) getRLP(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("storage: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) putRLP(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}
	return s.db.Put(key, raw)
}

func (s *Store) getUint64(key []byte) (uint64, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("storage: malformed counter %q", key)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (s *Store) putUint64(key []byte, value uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], value)
	return s.db.Put(key, buf[:])
}

func (s *Store) getBig(key []byte) (*big.Int, error) {
	var value big.Int
	ok, err := s.getRLP(key, &value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return &value, nil
}

func (s *Store) putBig(key []byte, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	return s.putRLP(key, value)
}

func decodeAddr(raw []byte) crypto.Address {
	return crypto.NewAddress(crypto.FundPrefix, raw)
}

// --- vault state ---

type storedVaultState struct {
	LatestOffchainNav  *big.Int
	TotalReserveHeld   *big.Int
	OnchainFeeAccrued  *big.Int
	OffchainFeeAccrued *big.Int
	Epoch              uint64
	MinTxFee           *big.Int
	RequestNonce       uint64
}

func (s *Store) VaultState() (*vault.VaultState, error) {
	var rec storedVaultState
	ok, err := s.getRLP(keyVaultState, &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.VaultState{
		LatestOffchainNav:  rec.LatestOffchainNav,
		TotalReserveHeld:   rec.TotalReserveHeld,
		OnchainFeeAccrued:  rec.OnchainFeeAccrued,
		OffchainFeeAccrued: rec.OffchainFeeAccrued,
		Epoch:              rec.Epoch,
		MinTxFee:           rec.MinTxFee,
		RequestNonce:       rec.RequestNonce,
	}, nil
}

func (s *Store) PutVaultState(state *vault.VaultState) error {
	if state == nil {
		return fmt.Errorf("storage: nil vault state")
	}
	return s.putRLP(keyVaultState, &storedVaultState{
		LatestOffchainNav:  state.LatestOffchainNav,
		TotalReserveHeld:   state.TotalReserveHeld,
		OnchainFeeAccrued:  state.OnchainFeeAccrued,
		OffchainFeeAccrued: state.OffchainFeeAccrued,
		Epoch:              state.Epoch,
		MinTxFee:           state.MinTxFee,
		RequestNonce:       state.RequestNonce,
	})
}

// --- pending requests ---

type storedPendingRequest struct {
	Investor []byte
	Amount   *big.Int
	Action   uint8
}

func (s *Store) PendingRequest(id vault.RequestID) (*vault.PendingRequest, bool, error) {
	var rec storedPendingRequest
	ok, err := s.getRLP(appendKey(prefPending, id[:]), &rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return &vault.PendingRequest{
		Investor: decodeAddr(rec.Investor),
		Amount:   rec.Amount,
		Action:   vault.ActionKind(rec.Action),
	}, true, nil
}

func (s *Store) PutPendingRequest(id vault.RequestID, req *vault.PendingRequest) error {
	if req == nil {
		return fmt.Errorf("storage: nil pending request")
	}
	return s.putRLP(appendKey(prefPending, id[:]), &storedPendingRequest{
		Investor: req.Investor.Bytes(),
		Amount:   req.Amount,
		Action:   uint8(req.Action),
	})
}

func (s *Store) DeletePendingRequest(id vault.RequestID) error {
	return s.db.Delete(appendKey(prefPending, id[:]))
}

// --- epoch flows ---

type storedEpochFlow struct {
	DepositAmount  *big.Int
	WithdrawAmount *big.Int
}

func (s *Store) EpochFlow(addr crypto.Address, epoch uint64) (*vault.EpochFlow, error) {
	var rec storedEpochFlow
	ok, err := s.getRLP(uint64Key(prefFlow, [][]byte{addr.Bytes()}, epoch), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &vault.EpochFlow{
		DepositAmount:  rec.DepositAmount,
		WithdrawAmount: rec.WithdrawAmount,
	}, nil
}

func (s *Store) PutEpochFlow(addr crypto.Address, epoch uint64, flow *vault.EpochFlow) error {
	if flow == nil {
		return fmt.Errorf("storage: nil epoch flow")
	}
	return s.putRLP(uint64Key(prefFlow, [][]byte{addr.Bytes()}, epoch), &storedEpochFlow{
		DepositAmount:  flow.DepositAmount,
		WithdrawAmount: flow.WithdrawAmount,
	})
}

func (s *Store) HasDeposited(addr crypto.Address) (bool, error) {
	return s.db.Has(appendKey(prefDeposited, addr.Bytes()))
}

func (s *Store) SetHasDeposited(addr crypto.Address) error {
	return s.db.Put(appendKey(prefDeposited, addr.Bytes()), []byte{1})
}

// --- redemption queue ---

type storedQueueEntry struct {
	Investor []byte
	Shares   *big.Int
	Origin   [32]byte
}

func (s *Store) QueueHead() (uint64, error) {
	return s.getUint64(keyQueueHead)
}

func (s *Store) QueueTail() (uint64, error) {
	return s.getUint64(keyQueueTail)
}

func (s *Store) SetQueueHead(head uint64) error {
	return s.putUint64(keyQueueHead, head)
}

func (s *Store) SetQueueTail(tail uint64) error {
	return s.putUint64(keyQueueTail, tail)
}

func (s *Store) QueueEntry(index uint64) (*vault.QueueEntry, bool, error) {
	var rec storedQueueEntry
	ok, err := s.getRLP(uint64Key(prefQueueEntry, nil, index), &rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return &vault.QueueEntry{
		Investor:        decodeAddr(rec.Investor),
		Shares:          rec.Shares,
		OriginRequestID: rec.Origin,
	}, true, nil
}

func (s *Store) PutQueueEntry(index uint64, entry *vault.QueueEntry) error {
	if entry == nil {
		return fmt.Errorf("storage: nil queue entry")
	}
	return s.putRLP(uint64Key(prefQueueEntry, nil, index), &storedQueueEntry{
		Investor: entry.Investor.Bytes(),
		Shares:   entry.Shares,
		Origin:   entry.OriginRequestID,
	})
}

func (s *Store) DeleteQueueEntry(index uint64) error {
	return s.db.Delete(uint64Key(prefQueueEntry, nil, index))
}

// --- reserve ledger ---

func (s *Store) ReserveBalance(addr crypto.Address) (*big.Int, error) {
	return s.getBig(appendKey(prefReserveBal, addr.Bytes()))
}

func (s *Store) SetReserveBalance(addr crypto.Address, balance *big.Int) error {
	return s.putBig(appendKey(prefReserveBal, addr.Bytes()), balance)
}

func (s *Store) ReserveAllowance(owner, spender crypto.Address) (*big.Int, error) {
	return s.getBig(appendKey(prefReserveAlw, owner.Bytes(), spender.Bytes()))
}

func (s *Store) SetReserveAllowance(owner, spender crypto.Address, amount *big.Int) error {
	return s.putBig(appendKey(prefReserveAlw, owner.Bytes(), spender.Bytes()), amount)
}

// --- share ledger ---

func (s *Store) ShareBalance(addr crypto.Address) (*big.Int, error) {
	return s.getBig(appendKey(prefShareBal, addr.Bytes()))
}

func (s *Store) SetShareBalance(addr crypto.Address, balance *big.Int) error {
	return s.putBig(appendKey(prefShareBal, addr.Bytes()), balance)
}

func (s *Store) ShareTotalSupply() (*big.Int, error) {
	return s.getBig(keyShareSupply)
}

func (s *Store) SetShareTotalSupply(supply *big.Int) error {
	return s.putBig(keyShareSupply, supply)
}

// --- compliance registry ---

type storedKycRecord struct {
	Type   uint8
	Banned bool
}

func (s *Store) KycRecord(addr crypto.Address) (*compliance.KycRecord, bool, error) {
	var rec storedKycRecord
	ok, err := s.getRLP(appendKey(prefKycRecord, addr.Bytes()), &rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return &compliance.KycRecord{
		Type:   compliance.KycType(rec.Type),
		Banned: rec.Banned,
	}, true, nil
}

func (s *Store) PutKycRecord(addr crypto.Address, record *compliance.KycRecord) error {
	if record == nil {
		return fmt.Errorf("storage: nil kyc record")
	}
	return s.putRLP(appendKey(prefKycRecord, addr.Bytes()), &storedKycRecord{
		Type:   uint8(record.Type),
		Banned: record.Banned,
	})
}

func (s *Store) StrictMode() (bool, error) {
	return s.db.Has(keyStrictMode)
}

func (s *Store) SetStrictMode(enabled bool) error {
	if enabled {
		return s.db.Put(keyStrictMode, []byte{1})
	}
	return s.db.Delete(keyStrictMode)
}
