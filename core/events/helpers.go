package events

import (
	"encoding/hex"
	"math/big"
	"strconv"
)

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func intToString(v int64) string {
	return strconv.FormatInt(v, 10)
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func requestIDToString(id [32]byte) string {
	return hex.EncodeToString(id[:])
}
