package vault

import "errors"

// Validation errors reject a request synchronously with no state change.
var (
	ErrAmountZero            = errors.New("vault engine: amount must be positive")
	ErrInsufficientBalance   = errors.New("vault engine: insufficient balance")
	ErrInsufficientAllowance = errors.New("vault engine: insufficient allowance")
	ErrBelowMinimum          = errors.New("vault engine: amount below minimum")
	ErrEpochCapExceeded      = errors.New("vault engine: epoch net flow cap exceeded")
	ErrInvalidNav            = errors.New("vault engine: reported NAV must be non-negative")
)

// Authorization errors reject a caller before any mutation.
var (
	ErrNotAdmin    = errors.New("vault engine: caller lacks admin role")
	ErrNotOperator = errors.New("vault engine: caller lacks operator role")
	ErrNotOracle   = errors.New("vault engine: caller is not the oracle identity")
)

// Invariant errors signal operational misuse rather than bad data.
var (
	ErrQueueEmpty       = errors.New("vault engine: redemption queue is empty")
	ErrUnknownRequest   = errors.New("vault engine: unknown request id")
	ErrNoExcessReserves = errors.New("vault engine: no excess reserves to sweep")
)

var (
	errNilState       = errors.New("vault engine: state not configured")
	errNilReserve     = errors.New("vault engine: reserve asset not configured")
	errNilShares      = errors.New("vault engine: share ledger not configured")
	errNilFeeReceiver = errors.New("vault engine: fee receiver not configured")
	errQueueIndex     = errors.New("vault engine: queue index out of range")
	errQueueCorrupt   = errors.New("vault engine: queue entry missing")
)
