package vault

import (
	"fmt"
	"math/big"
	"sync"

	"fundvault/core/events"
	"fundvault/crypto"
	"fundvault/native/token"
)

type engineState interface {
	VaultState() (*VaultState, error)
	PutVaultState(state *VaultState) error
	PendingRequest(id RequestID) (*PendingRequest, bool, error)
	PutPendingRequest(id RequestID, req *PendingRequest) error
	DeletePendingRequest(id RequestID) error
	EpochFlow(addr crypto.Address, epoch uint64) (*EpochFlow, error)
	PutEpochFlow(addr crypto.Address, epoch uint64, flow *EpochFlow) error
	HasDeposited(addr crypto.Address) (bool, error)
	SetHasDeposited(addr crypto.Address) error
	queueStore
}

type shareLedger interface {
	BalanceOf(addr crypto.Address) (*big.Int, error)
	TotalSupply() (*big.Int, error)
	Mint(to crypto.Address, amount *big.Int) error
	Burn(from crypto.Address, amount *big.Int) error
	Transfer(from, to crypto.Address, amount *big.Int) error
}

type eligibilityGate interface {
	CheckNotBanned(addr crypto.Address) error
	CheckKyc(addr crypto.Address) error
}

// Engine orchestrates the vault's request/fulfill lifecycle: synchronous
// validation at the entry points, pending-request bookkeeping, and the
// settlement routines dispatched when the oracle reports a NAV. Each entry
// point runs under the engine mutex, so in-progress state is never visible
// to another call; the only suspension point is the gap between request
// creation and fulfillment, during which no lock is held.
type Engine struct {
	mu sync.Mutex

	state       engineState
	emitter     events.Emitter
	bridge      OracleBridge
	reserve     token.Reserve
	shares      shareLedger
	eligibility eligibilityGate
	roles       *Roles
	params      Params

	vaultAddr   crypto.Address
	feeReceiver crypto.Address
}

// NewEngine constructs a vault engine holding custody at vaultAddr. The
// state backend, ledgers and collaborators are wired via the setters.
func NewEngine(vaultAddr crypto.Address, params Params) *Engine {
	return &Engine{
		emitter:   events.NoopEmitter{},
		bridge:    NoopBridge{},
		roles:     NewRoles(),
		params:    params.Normalise(),
		vaultAddr: vaultAddr,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetReserve wires the reserve asset view.
func (e *Engine) SetReserve(reserve token.Reserve) { e.reserve = reserve }

// SetShares wires the fund share ledger.
func (e *Engine) SetShares(shares shareLedger) { e.shares = shares }

// SetEligibility wires the external eligibility gate consulted at entry
// validation. Passing nil disables the checks.
func (e *Engine) SetEligibility(gate eligibilityGate) { e.eligibility = gate }

// SetFeeReceiver configures the address receiving transaction and accrued
// fees.
func (e *Engine) SetFeeReceiver(addr crypto.Address) { e.feeReceiver = addr }

// SetBridge configures the oracle transport. Passing nil resets it to the
// no-op bridge.
func (e *Engine) SetBridge(bridge OracleBridge) {
	if bridge == nil {
		e.bridge = NoopBridge{}
		return
	}
	e.bridge = bridge
}

// SetEmitter configures the event emitter. Passing nil resets it to a
// no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Roles exposes the engine's role set for grants at wiring time.
func (e *Engine) Roles() *Roles { return e.roles }

// VaultAddress returns the custody address.
func (e *Engine) VaultAddress() crypto.Address { return e.vaultAddr }

func (e *Engine) emit(event events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}

func (e *Engine) ready() error {
	if e.state == nil {
		return errNilState
	}
	if e.reserve == nil {
		return errNilReserve
	}
	if e.shares == nil {
		return errNilShares
	}
	return nil
}

func (e *Engine) loadState() (*VaultState, error) {
	st, err := e.state.VaultState()
	if err != nil {
		return nil, fmt.Errorf("vault engine: load state: %w", err)
	}
	if st == nil {
		st = NewVaultState()
	}
	st.normalise()
	return st, nil
}

func (e *Engine) loadFlow(addr crypto.Address, epoch uint64) (*EpochFlow, error) {
	flow, err := e.state.EpochFlow(addr, epoch)
	if err != nil {
		return nil, fmt.Errorf("vault engine: load epoch flow: %w", err)
	}
	if flow == nil {
		flow = NewEpochFlow()
	}
	flow.normalise()
	return flow, nil
}

func (e *Engine) checkEligible(addr crypto.Address) error {
	if e.eligibility == nil {
		return nil
	}
	if err := e.eligibility.CheckNotBanned(addr); err != nil {
		return err
	}
	return e.eligibility.CheckKyc(addr)
}

func (e *Engine) openRequest(st *VaultState, investor crypto.Address, amount *big.Int, action ActionKind) (RequestID, error) {
	id := deriveRequestID(st.RequestNonce, investor, action)
	st.RequestNonce++
	if err := e.state.PutVaultState(st); err != nil {
		return RequestID{}, fmt.Errorf("vault engine: store state: %w", err)
	}
	req := &PendingRequest{Investor: investor, Amount: new(big.Int).Set(amount), Action: action}
	if err := e.state.PutPendingRequest(id, req); err != nil {
		return RequestID{}, fmt.Errorf("vault engine: store pending request: %w", err)
	}
	if err := e.bridge.SubmitNavRequest(NavRequest{
		RequestID: id,
		Investor:  investor,
		Amount:    new(big.Int).Set(amount),
		Action:    action,
		Decimals:  ReserveDecimals,
	}); err != nil {
		return RequestID{}, fmt.Errorf("vault engine: submit nav request: %w", err)
	}
	return id, nil
}

// RequestDeposit validates a deposit synchronously and opens a NAV round
// trip for it. No assets move until fulfillment.
func (e *Engine) RequestDeposit(investor crypto.Address, amount *big.Int) (RequestID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return RequestID{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return RequestID{}, ErrAmountZero
	}
	if err := e.checkEligible(investor); err != nil {
		return RequestID{}, err
	}
	st, err := e.loadState()
	if err != nil {
		return RequestID{}, err
	}
	if err := e.validateDeposit(st, investor, amount); err != nil {
		return RequestID{}, err
	}
	id, err := e.openRequest(st, investor, amount, ActionDeposit)
	if err != nil {
		return RequestID{}, err
	}
	e.emit(events.DepositRequested{Investor: investor, Amount: amount, RequestID: id})
	return id, nil
}

func (e *Engine) validateDeposit(st *VaultState, investor crypto.Address, amount *big.Int) error {
	balance, err := e.reserve.BalanceOf(investor)
	if err != nil {
		return err
	}
	if amount.Cmp(balance) > 0 {
		return fmt.Errorf("%w: reserve balance %s, depositing %s", ErrInsufficientBalance, balance, amount)
	}
	allowance, err := e.reserve.Allowance(investor, e.vaultAddr)
	if err != nil {
		return err
	}
	if amount.Cmp(allowance) > 0 {
		return fmt.Errorf("%w: approved %s, depositing %s", ErrInsufficientAllowance, allowance, amount)
	}
	if amount.Cmp(e.params.MinDeposit) < 0 {
		return fmt.Errorf("%w: minimum deposit is %s", ErrBelowMinimum, e.params.MinDeposit)
	}
	deposited, err := e.state.HasDeposited(investor)
	if err != nil {
		return err
	}
	if !deposited && amount.Cmp(e.params.MinInitialDeposit) < 0 {
		return fmt.Errorf("%w: minimum initial deposit is %s", ErrBelowMinimum, e.params.MinInitialDeposit)
	}
	if e.params.MaxDepositPerEpoch != nil {
		flow, err := e.loadFlow(investor, st.Epoch)
		if err != nil {
			return err
		}
		// Net flow bound: the cap applies to the epoch's net deposited
		// amount, so prior withdrawals buy headroom back.
		headroom := new(big.Int).Sub(e.params.MaxDepositPerEpoch, flow.DepositAmount)
		headroom.Add(headroom, flow.WithdrawAmount)
		if headroom.Sign() < 0 {
			headroom.SetInt64(0)
		}
		if amount.Cmp(headroom) > 0 {
			return fmt.Errorf("%w: epoch deposit headroom %s, depositing %s", ErrEpochCapExceeded, headroom, amount)
		}
	}
	return nil
}

// RequestRedeem validates a redemption synchronously and opens a NAV round
// trip for it. Shares stay with the investor until fulfillment.
func (e *Engine) RequestRedeem(investor crypto.Address, shares *big.Int) (RequestID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return RequestID{}, err
	}
	if shares == nil || shares.Sign() <= 0 {
		return RequestID{}, ErrAmountZero
	}
	if err := e.checkEligible(investor); err != nil {
		return RequestID{}, err
	}
	st, err := e.loadState()
	if err != nil {
		return RequestID{}, err
	}
	if err := e.validateRedeem(st, investor, shares); err != nil {
		return RequestID{}, err
	}
	id, err := e.openRequest(st, investor, shares, ActionRedeem)
	if err != nil {
		return RequestID{}, err
	}
	e.emit(events.RedeemRequested{Investor: investor, Shares: shares, RequestID: id})
	return id, nil
}

func (e *Engine) validateRedeem(st *VaultState, investor crypto.Address, shares *big.Int) error {
	balance, err := e.shares.BalanceOf(investor)
	if err != nil {
		return err
	}
	if shares.Cmp(balance) > 0 {
		return fmt.Errorf("%w: share balance %s, redeeming %s", ErrInsufficientBalance, balance, shares)
	}
	supply, err := e.shares.TotalSupply()
	if err != nil {
		return err
	}
	assets := convertToAssets(shares, supply, st.CombinedNetAssets())
	if assets.Cmp(e.params.MinWithdraw) < 0 {
		return fmt.Errorf("%w: minimum withdrawal is %s", ErrBelowMinimum, e.params.MinWithdraw)
	}
	if e.params.MaxWithdrawPerEpoch != nil {
		flow, err := e.loadFlow(investor, st.Epoch)
		if err != nil {
			return err
		}
		headroom := new(big.Int).Sub(e.params.MaxWithdrawPerEpoch, flow.WithdrawAmount)
		headroom.Add(headroom, flow.DepositAmount)
		if headroom.Sign() < 0 {
			headroom.SetInt64(0)
		}
		if assets.Cmp(headroom) > 0 {
			return fmt.Errorf("%w: epoch withdrawal headroom %s, withdrawing %s", ErrEpochCapExceeded, headroom, assets)
		}
	}
	return nil
}

// RequestAdvanceEpoch opens an operator round trip that, once fulfilled,
// increments the epoch and accrues both fee pots.
func (e *Engine) RequestAdvanceEpoch(caller crypto.Address) (RequestID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return RequestID{}, err
	}
	if !e.roles.Has(RoleOperator, caller) {
		return RequestID{}, ErrNotOperator
	}
	st, err := e.loadState()
	if err != nil {
		return RequestID{}, err
	}
	id, err := e.openRequest(st, caller, big.NewInt(0), ActionAdvanceEpoch)
	if err != nil {
		return RequestID{}, err
	}
	e.emit(events.EpochAdvanceRequested{Caller: caller, RequestID: id})
	return id, nil
}

// RequestProcessQueue opens an operator round trip to drain the redemption
// queue. An empty queue is an operational misuse rejected immediately.
func (e *Engine) RequestProcessQueue(caller crypto.Address) (RequestID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return RequestID{}, err
	}
	if !e.roles.Has(RoleOperator, caller) {
		return RequestID{}, ErrNotOperator
	}
	empty, err := NewRedemptionQueue(e.state).Empty()
	if err != nil {
		return RequestID{}, err
	}
	if empty {
		return RequestID{}, ErrQueueEmpty
	}
	st, err := e.loadState()
	if err != nil {
		return RequestID{}, err
	}
	id, err := e.openRequest(st, caller, big.NewInt(0), ActionProcessQueue)
	if err != nil {
		return RequestID{}, err
	}
	e.emit(events.QueueProcessRequested{Caller: caller, RequestID: id})
	return id, nil
}

// Fulfill closes a NAV round trip. Only the designated oracle identity may
// call it; presenting an unknown request id is an invariant error. The
// reported NAV is recorded before dispatch so the settlement prices
// against the value just reported for it, and every fulfillment ends with
// a completion event. A settlement failure leaves the request open, so the
// oracle can re-send the same id with corrected data.
func (e *Engine) Fulfill(caller crypto.Address, requestID RequestID, reportedNav *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if !e.roles.Has(RoleOracle, caller) {
		return ErrNotOracle
	}
	if reportedNav == nil || reportedNav.Sign() < 0 {
		return ErrInvalidNav
	}
	req, ok, err := e.state.PendingRequest(requestID)
	if err != nil {
		return fmt.Errorf("vault engine: load pending request: %w", err)
	}
	if !ok || req == nil {
		return fmt.Errorf("%w: %x", ErrUnknownRequest, requestID)
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	st.LatestOffchainNav = new(big.Int).Set(reportedNav)

	switch req.Action {
	case ActionDeposit:
		err = e.settleDeposit(st, requestID, req)
	case ActionRedeem:
		err = e.settleRedeem(st, requestID, req)
	case ActionAdvanceEpoch:
		err = e.settleAdvanceEpoch(st)
	case ActionProcessQueue:
		err = e.settleProcessQueue(st)
	default:
		err = fmt.Errorf("%w: action %d", ErrUnknownRequest, req.Action)
	}
	if err != nil {
		return err
	}
	// Consume the request only once settlement has succeeded: a failed
	// fulfillment leaves it open so the oracle can re-send with corrected
	// data.
	if err := e.state.DeletePendingRequest(requestID); err != nil {
		return fmt.Errorf("vault engine: consume pending request: %w", err)
	}
	if err := e.state.PutVaultState(st); err != nil {
		return fmt.Errorf("vault engine: store state: %w", err)
	}
	e.emit(events.RequestFulfilled{
		Investor:  req.Investor,
		RequestID: requestID,
		Nav:       reportedNav,
		Amount:    req.Amount,
		Action:    req.Action.String(),
	})
	return nil
}

func (e *Engine) settleDeposit(st *VaultState, id RequestID, req *PendingRequest) error {
	amount := req.Amount
	fee := depositFee(amount, st.MinTxFee, e.params.FeeRateBps)
	net := new(big.Int).Sub(amount, fee)
	if net.Sign() < 0 {
		return fmt.Errorf("%w: fee %s exceeds deposit %s", ErrBelowMinimum, fee, amount)
	}
	// The investor's external balance may have moved since the request;
	// fail loudly rather than mint against assets that cannot be pulled.
	balance, err := e.reserve.BalanceOf(req.Investor)
	if err != nil {
		return err
	}
	if amount.Cmp(balance) > 0 {
		return fmt.Errorf("%w: reserve balance %s at fulfillment, depositing %s", ErrInsufficientBalance, balance, amount)
	}
	allowance, err := e.reserve.Allowance(req.Investor, e.vaultAddr)
	if err != nil {
		return err
	}
	if amount.Cmp(allowance) > 0 {
		return fmt.Errorf("%w: approved %s at fulfillment, depositing %s", ErrInsufficientAllowance, allowance, amount)
	}
	supply, err := e.shares.TotalSupply()
	if err != nil {
		return err
	}
	minted := convertToShares(net, supply, st.CombinedNetAssets())
	if fee.Sign() > 0 {
		if e.feeReceiver.IsZero() {
			return errNilFeeReceiver
		}
		if err := e.reserve.TransferFrom(e.vaultAddr, req.Investor, e.feeReceiver, fee); err != nil {
			return err
		}
	}
	if net.Sign() > 0 {
		if err := e.reserve.TransferFrom(e.vaultAddr, req.Investor, e.vaultAddr, net); err != nil {
			return err
		}
	}
	st.TotalReserveHeld.Add(st.TotalReserveHeld, net)
	if minted.Sign() > 0 {
		if err := e.shares.Mint(req.Investor, minted); err != nil {
			return err
		}
	}
	flow, err := e.loadFlow(req.Investor, st.Epoch)
	if err != nil {
		return err
	}
	flow.DepositAmount.Add(flow.DepositAmount, net)
	if err := e.state.PutEpochFlow(req.Investor, st.Epoch, flow); err != nil {
		return err
	}
	if err := e.state.SetHasDeposited(req.Investor); err != nil {
		return err
	}
	e.emit(events.DepositSettled{
		Investor:  req.Investor,
		RequestID: id,
		Amount:    amount,
		Fee:       fee,
		NetAssets: net,
		Shares:    minted,
	})
	return nil
}

func (e *Engine) settleRedeem(st *VaultState, id RequestID, req *PendingRequest) error {
	requestedShares := req.Amount
	balance, err := e.shares.BalanceOf(req.Investor)
	if err != nil {
		return err
	}
	if requestedShares.Cmp(balance) > 0 {
		return fmt.Errorf("%w: share balance %s at fulfillment, redeeming %s", ErrInsufficientBalance, balance, requestedShares)
	}
	supply, err := e.shares.TotalSupply()
	if err != nil {
		return err
	}
	combined := st.CombinedNetAssets()
	requestedAssets := convertToAssets(requestedShares, supply, combined)
	liquidity := st.VaultNetAssets()

	if requestedAssets.Cmp(liquidity) <= 0 {
		if err := e.payRedemption(st, req.Investor, requestedShares, requestedAssets); err != nil {
			return err
		}
		e.emit(events.RedeemSettled{Investor: req.Investor, RequestID: id, Shares: requestedShares, Assets: requestedAssets})
	} else {
		actualAssets := liquidity
		actualShares := sharesForAssets(actualAssets, supply, combined)
		if actualShares.Cmp(requestedShares) > 0 {
			actualShares = new(big.Int).Set(requestedShares)
		}
		if actualShares.Sign() > 0 {
			if err := e.payRedemption(st, req.Investor, actualShares, actualAssets); err != nil {
				return err
			}
			e.emit(events.RedeemSettled{Investor: req.Investor, RequestID: id, Shares: actualShares, Assets: actualAssets})
		}
		remainder := new(big.Int).Sub(requestedShares, actualShares)
		if remainder.Sign() > 0 {
			// Escrow the unpaid shares at the vault so they cannot be
			// spent while the entry waits in the queue.
			if err := e.shares.Transfer(req.Investor, e.vaultAddr, remainder); err != nil {
				return err
			}
			entry := &QueueEntry{Investor: req.Investor, Shares: remainder, OriginRequestID: id}
			if err := NewRedemptionQueue(e.state).PushBack(entry); err != nil {
				return err
			}
			e.emit(events.RedemptionQueued{Investor: req.Investor, RequestID: id, Shares: remainder})
		}
	}

	// Queued remainders already count against the epoch cap: the flow
	// records the requested amount, not the paid one.
	flow, err := e.loadFlow(req.Investor, st.Epoch)
	if err != nil {
		return err
	}
	flow.WithdrawAmount.Add(flow.WithdrawAmount, requestedAssets)
	return e.state.PutEpochFlow(req.Investor, st.Epoch, flow)
}

// payRedemption burns shares and releases assets to the holder, keeping
// the internal reserve counter in step.
func (e *Engine) payRedemption(st *VaultState, holder crypto.Address, shares, assets *big.Int) error {
	if err := e.shares.Burn(holder, shares); err != nil {
		return err
	}
	if assets.Sign() > 0 {
		if err := e.reserve.Transfer(e.vaultAddr, holder, assets); err != nil {
			return err
		}
		st.TotalReserveHeld.Sub(st.TotalReserveHeld, assets)
	}
	return nil
}

func (e *Engine) settleAdvanceEpoch(st *VaultState) error {
	st.Epoch++
	onchain := accrualAmount(st.VaultNetAssets(), e.params.OnchainRateBps)
	offchain := accrualAmount(st.LatestOffchainNav, e.params.OffchainRateBps)
	st.OnchainFeeAccrued.Add(st.OnchainFeeAccrued, onchain)
	st.OffchainFeeAccrued.Add(st.OffchainFeeAccrued, offchain)
	e.emit(events.EpochAdvanced{
		Epoch:           st.Epoch,
		OnchainAccrued:  onchain,
		OffchainAccrued: offchain,
		Nav:             st.LatestOffchainNav,
	})
	return nil
}

func (e *Engine) settleProcessQueue(st *VaultState) error {
	queue := NewRedemptionQueue(e.state)
	for {
		empty, err := queue.Empty()
		if err != nil {
			return err
		}
		if empty {
			return nil
		}
		entry, err := queue.Front()
		if err != nil {
			return err
		}
		supply, err := e.shares.TotalSupply()
		if err != nil {
			return err
		}
		assets := convertToAssets(entry.Shares, supply, st.CombinedNetAssets())
		// Strict FIFO: when the head cannot be paid in full, stop. Later
		// entries are never paid ahead of it.
		if assets.Cmp(st.VaultNetAssets()) > 0 {
			return nil
		}
		if _, err := queue.PopFront(); err != nil {
			return err
		}
		if err := e.payEscrowedRedemption(st, entry, assets); err != nil {
			return err
		}
		e.emit(events.QueueEntryPaid{
			Investor:        entry.Investor,
			OriginRequestID: entry.OriginRequestID,
			Shares:          entry.Shares,
			Assets:          assets,
		})
	}
}

// payEscrowedRedemption settles a queued entry: the shares were moved into
// vault custody when the entry was created, so the burn comes from the
// vault's own balance.
func (e *Engine) payEscrowedRedemption(st *VaultState, entry *QueueEntry, assets *big.Int) error {
	if err := e.shares.Burn(e.vaultAddr, entry.Shares); err != nil {
		return err
	}
	if assets.Sign() > 0 {
		if err := e.reserve.Transfer(e.vaultAddr, entry.Investor, assets); err != nil {
			return err
		}
		st.TotalReserveHeld.Sub(st.TotalReserveHeld, assets)
	}
	return nil
}

// ClaimOnchainFees drains up to the requested amount from the on-reserve
// fee pot to the fee receiver. Over-asking clamps to the pot.
func (e *Engine) ClaimOnchainFees(caller crypto.Address, amount *big.Int) (*big.Int, error) {
	return e.claimFees(caller, amount, "onchain")
}

// ClaimOffchainFees drains up to the requested amount from the off-reserve
// fee pot to the fee receiver. Over-asking clamps to the pot.
func (e *Engine) ClaimOffchainFees(caller crypto.Address, amount *big.Int) (*big.Int, error) {
	return e.claimFees(caller, amount, "offchain")
}

func (e *Engine) claimFees(caller crypto.Address, amount *big.Int, pot string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !e.roles.Has(RoleOperator, caller) {
		return nil, ErrNotOperator
	}
	if e.feeReceiver.IsZero() {
		return nil, errNilFeeReceiver
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	var accrued *big.Int
	if pot == "onchain" {
		accrued = st.OnchainFeeAccrued
	} else {
		accrued = st.OffchainFeeAccrued
	}
	claimed := clampClaim(amount, accrued)
	if claimed.Sign() == 0 {
		return claimed, nil
	}
	if err := e.reserve.Transfer(e.vaultAddr, e.feeReceiver, claimed); err != nil {
		return nil, err
	}
	accrued.Sub(accrued, claimed)
	st.TotalReserveHeld.Sub(st.TotalReserveHeld, claimed)
	if err := e.state.PutVaultState(st); err != nil {
		return nil, fmt.Errorf("vault engine: store state: %w", err)
	}
	e.emit(events.FeesClaimed{Pot: pot, Amount: claimed, Receiver: e.feeReceiver})
	return claimed, nil
}

// SweepExcess moves reserve balance the vault holds beyond its internal
// accounting (e.g. direct donations) to the given receiver.
func (e *Engine) SweepExcess(caller, to crypto.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !e.roles.Has(RoleAdmin, caller) {
		return nil, ErrNotAdmin
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	held, err := e.reserve.BalanceOf(e.vaultAddr)
	if err != nil {
		return nil, err
	}
	excess := new(big.Int).Sub(held, st.TotalReserveHeld)
	if excess.Sign() <= 0 {
		return nil, ErrNoExcessReserves
	}
	if err := e.reserve.Transfer(e.vaultAddr, to, excess); err != nil {
		return nil, err
	}
	e.emit(events.ExcessSwept{Amount: excess, Receiver: to})
	return excess, nil
}

// SetMinTxFee updates the minimum per-transaction fee floor.
func (e *Engine) SetMinTxFee(caller crypto.Address, fee *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return errNilState
	}
	if !e.roles.Has(RoleAdmin, caller) {
		return ErrNotAdmin
	}
	if fee == nil || fee.Sign() < 0 {
		return ErrAmountZero
	}
	st, err := e.loadState()
	if err != nil {
		return err
	}
	st.MinTxFee = new(big.Int).Set(fee)
	if err := e.state.PutVaultState(st); err != nil {
		return fmt.Errorf("vault engine: store state: %w", err)
	}
	return nil
}

// State returns a copy of the current vault state.
func (e *Engine) State() (*VaultState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	return st.Copy(), nil
}

// PendingRequestByID returns a copy of an open pending request.
func (e *Engine) PendingRequestByID(id RequestID) (*PendingRequest, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, false, errNilState
	}
	req, ok, err := e.state.PendingRequest(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return req.Copy(), true, nil
}

// QueueSnapshot returns up to max entries from the head of the redemption
// queue along with its total length.
func (e *Engine) QueueSnapshot(max uint64) ([]*QueueEntry, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, 0, errNilState
	}
	queue := NewRedemptionQueue(e.state)
	length, err := queue.Len()
	if err != nil {
		return nil, 0, err
	}
	count := length
	if max > 0 && max < count {
		count = max
	}
	entries := make([]*QueueEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		entry, err := queue.At(i)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry.Copy())
	}
	return entries, length, nil
}

// EpochFlowOf returns a copy of the investor's flow record for an epoch.
func (e *Engine) EpochFlowOf(addr crypto.Address, epoch uint64) (*EpochFlow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	flow, err := e.loadFlow(addr, epoch)
	if err != nil {
		return nil, err
	}
	return flow.Copy(), nil
}

// PreviewDeposit quotes the shares a net deposit would mint right now.
func (e *Engine) PreviewDeposit(assets *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	supply, err := e.shares.TotalSupply()
	if err != nil {
		return nil, err
	}
	return convertToShares(assets, supply, st.CombinedNetAssets()), nil
}

// PreviewRedeem quotes the assets a share redemption would pay right now.
func (e *Engine) PreviewRedeem(shares *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	supply, err := e.shares.TotalSupply()
	if err != nil {
		return nil, err
	}
	return convertToAssets(shares, supply, st.CombinedNetAssets()), nil
}
