package vault

import (
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fundvault/crypto"
)

// RequestID uniquely names one NAV round trip for the lifetime of the
// vault. Derivation mixes the monotonic nonce with the investor and action
// so ids stay unique even across restarts replaying the same nonce space.
type RequestID = [32]byte

func deriveRequestID(nonce uint64, investor crypto.Address, action ActionKind) RequestID {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	digest := ethcrypto.Keccak256(nonceBytes[:], investor.Bytes(), []byte{byte(action)})
	var id RequestID
	copy(id[:], digest)
	return id
}

// NavRequest is the payload handed to the oracle bridge when a round trip
// opens. Decimals tells the off-chain reporter the fixed-point scale the
// vault accounts in.
type NavRequest struct {
	RequestID RequestID
	Investor  crypto.Address
	Amount    *big.Int
	Action    ActionKind
	Decimals  uint8
}

// OracleBridge is the transport seam to the off-chain NAV reporter. The
// engine only submits; the fulfillment arrives later as a call to
// Engine.Fulfill from the designated oracle identity.
type OracleBridge interface {
	SubmitNavRequest(req NavRequest) error
}

// NoopBridge accepts every submission without transporting it. Deployments
// where the oracle operator polls pending requests over RPC use this.
type NoopBridge struct{}

// SubmitNavRequest implements OracleBridge.
func (NoopBridge) SubmitNavRequest(NavRequest) error { return nil }
