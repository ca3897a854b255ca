package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"fundvault/crypto"
	"fundvault/native/compliance"
	"fundvault/native/vault"
)

// --- shared plumbing ---

func jsonUnmarshalStrict(raw json.RawMessage, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single params object"}
	}
	if err := jsonUnmarshalStrict(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid params", Data: err.Error()}
	}
	return nil
}

func parseAddressParam(name, raw string) (crypto.Address, *RPCError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return crypto.Address{}, &RPCError{Code: codeInvalidParams, Message: name + " is required"}
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, &RPCError{Code: codeInvalidParams, Message: "invalid " + name, Data: err.Error()}
	}
	return addr, nil
}

func parseAmountParam(name, raw string) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &RPCError{Code: codeInvalidParams, Message: name + " is required"}
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid " + name, Data: raw}
	}
	return value, nil
}

func parseRequestIDParam(raw string) (vault.RequestID, *RPCError) {
	var id vault.RequestID
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != len(id) {
		return id, &RPCError{Code: codeInvalidParams, Message: "requestId must be 32 hex-encoded bytes"}
	}
	copy(id[:], decoded)
	return id, nil
}

func formatRequestID(id vault.RequestID) string {
	return "0x" + hex.EncodeToString(id[:])
}

// engineError maps engine sentinels onto RPC error codes so clients can
// distinguish caller mistakes from authorization failures.
func engineError(err error) *RPCError {
	switch {
	case errors.Is(err, vault.ErrNotAdmin),
		errors.Is(err, vault.ErrNotOperator),
		errors.Is(err, vault.ErrNotOracle):
		return &RPCError{Code: codeForbidden, Message: err.Error()}
	case errors.Is(err, vault.ErrUnknownRequest):
		return &RPCError{Code: codeUnknownRequest, Message: err.Error()}
	case errors.Is(err, vault.ErrAmountZero),
		errors.Is(err, vault.ErrInsufficientBalance),
		errors.Is(err, vault.ErrInsufficientAllowance),
		errors.Is(err, vault.ErrBelowMinimum),
		errors.Is(err, vault.ErrEpochCapExceeded),
		errors.Is(err, vault.ErrInvalidNav),
		errors.Is(err, vault.ErrQueueEmpty),
		errors.Is(err, vault.ErrNoExcessReserves),
		errors.Is(err, compliance.ErrBanned),
		errors.Is(err, compliance.ErrNotKyc):
		return &RPCError{Code: codeValidationFailed, Message: err.Error()}
	default:
		return &RPCError{Code: codeServerError, Message: err.Error()}
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	rpcErr := engineError(err)
	status := http.StatusInternalServerError
	switch rpcErr.Code {
	case codeForbidden:
		status = http.StatusForbidden
	case codeValidationFailed, codeUnknownRequest:
		status = http.StatusBadRequest
	}
	writeError(w, status, id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
}

// --- read methods ---

type VaultStateResponse struct {
	LatestOffchainNav  string `json:"latestOffchainNav"`
	TotalReserveHeld   string `json:"totalReserveHeld"`
	OnchainFeeAccrued  string `json:"onchainFeeAccrued"`
	OffchainFeeAccrued string `json:"offchainFeeAccrued"`
	VaultNetAssets     string `json:"vaultNetAssets"`
	CombinedNetAssets  string `json:"combinedNetAssets"`
	Epoch              uint64 `json:"epoch"`
	MinTxFee           string `json:"minTxFee"`
}

func (s *Server) handleGetState(w http.ResponseWriter, req *RPCRequest) {
	st, err := s.engine.State()
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, VaultStateResponse{
		LatestOffchainNav:  st.LatestOffchainNav.String(),
		TotalReserveHeld:   st.TotalReserveHeld.String(),
		OnchainFeeAccrued:  st.OnchainFeeAccrued.String(),
		OffchainFeeAccrued: st.OffchainFeeAccrued.String(),
		VaultNetAssets:     st.VaultNetAssets().String(),
		CombinedNetAssets:  st.CombinedNetAssets().String(),
		Epoch:              st.Epoch,
		MinTxFee:           st.MinTxFee.String(),
	})
}

type QueueEntryResponse struct {
	Investor        string `json:"investor"`
	Shares          string `json:"shares"`
	OriginRequestID string `json:"originRequestId"`
}

type QueueResponse struct {
	Length  uint64               `json:"length"`
	Entries []QueueEntryResponse `json:"entries"`
}

func (s *Server) handleGetQueue(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Max uint64 `json:"max"`
	}
	if len(req.Params) > 0 {
		if rpcErr := decodeParams(req, &params); rpcErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
			return
		}
	}
	entries, length, err := s.engine.QueueSnapshot(params.Max)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	resp := QueueResponse{Length: length, Entries: make([]QueueEntryResponse, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, QueueEntryResponse{
			Investor:        entry.Investor.String(),
			Shares:          entry.Shares.String(),
			OriginRequestID: formatRequestID(entry.OriginRequestID),
		})
	}
	writeResult(w, req.ID, resp)
}

type PendingRequestResponse struct {
	RequestID string `json:"requestId"`
	Investor  string `json:"investor"`
	Amount    string `json:"amount"`
	Action    string `json:"action"`
}

func (s *Server) handleGetPendingRequest(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		RequestID string `json:"requestId"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, rpcErr := parseRequestIDParam(params.RequestID)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	pending, found, err := s.engine.PendingRequestByID(id)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, req.ID, codeUnknownRequest, "no pending request with that id", nil)
		return
	}
	writeResult(w, req.ID, PendingRequestResponse{
		RequestID: formatRequestID(id),
		Investor:  pending.Investor.String(),
		Amount:    pending.Amount.String(),
		Action:    pending.Action.String(),
	})
}

type EpochFlowResponse struct {
	Address        string `json:"address"`
	Epoch          uint64 `json:"epoch"`
	DepositAmount  string `json:"depositAmount"`
	WithdrawAmount string `json:"withdrawAmount"`
}

func (s *Server) handleGetEpochFlow(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string  `json:"address"`
		Epoch   *uint64 `json:"epoch"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	addr, rpcErr := parseAddressParam("address", params.Address)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	epoch := uint64(0)
	if params.Epoch != nil {
		epoch = *params.Epoch
	} else {
		st, err := s.engine.State()
		if err != nil {
			s.writeEngineError(w, req.ID, err)
			return
		}
		epoch = st.Epoch
	}
	flow, err := s.engine.EpochFlowOf(addr, epoch)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, EpochFlowResponse{
		Address:        addr.String(),
		Epoch:          epoch,
		DepositAmount:  flow.DepositAmount.String(),
		WithdrawAmount: flow.WithdrawAmount.String(),
	})
}

type BalanceResponse struct {
	Address        string `json:"address"`
	ReserveBalance string `json:"reserveBalance"`
	ShareBalance   string `json:"shareBalance"`
}

func (s *Server) handleGetBalance(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	addr, rpcErr := parseAddressParam("address", params.Address)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	reserveBalance, err := s.reserve.BalanceOf(addr)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	shareBalance, err := s.shares.BalanceOf(addr)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, BalanceResponse{
		Address:        addr.String(),
		ReserveBalance: reserveBalance.String(),
		ShareBalance:   shareBalance.String(),
	})
}

func (s *Server) handlePreviewDeposit(w http.ResponseWriter, req *RPCRequest) {
	s.handlePreview(w, req, s.engine.PreviewDeposit, "shares")
}

func (s *Server) handlePreviewRedeem(w http.ResponseWriter, req *RPCRequest) {
	s.handlePreview(w, req, s.engine.PreviewRedeem, "assets")
}

func (s *Server) handlePreview(w http.ResponseWriter, req *RPCRequest, preview func(*big.Int) (*big.Int, error), field string) {
	var params struct {
		Amount string `json:"amount"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	quoted, err := preview(amount)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{field: quoted.String()})
}

type KycResponse struct {
	Address string `json:"address"`
	KycType string `json:"kycType"`
	Banned  bool   `json:"banned"`
	Strict  bool   `json:"strictMode"`
}

func (s *Server) handleGetKyc(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	addr, rpcErr := parseAddressParam("address", params.Address)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	record, err := s.registry.Record(addr)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	strict, err := s.registry.IsStrict()
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, KycResponse{
		Address: addr.String(),
		KycType: record.Type.String(),
		Banned:  record.Banned,
		Strict:  strict,
	})
}

type RestrictionResponse struct {
	Code    uint8  `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleDetectRestriction(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	from, rpcErr := parseAddressParam("from", params.From)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	to, rpcErr := parseAddressParam("to", params.To)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	code, err := s.gate.Detect(from, to)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, RestrictionResponse{Code: uint8(code), Message: code.Message()})
}

// --- mutating methods ---

type RequestOpenedResponse struct {
	RequestID string `json:"requestId"`
}

func (s *Server) handleRequestDeposit(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Investor string `json:"investor"`
		Amount   string `json:"amount"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	investor, rpcErr := parseAddressParam("investor", params.Investor)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, err := s.engine.RequestDeposit(investor, amount)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, RequestOpenedResponse{RequestID: formatRequestID(id)})
}

func (s *Server) handleRequestRedeem(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Investor string `json:"investor"`
		Shares   string `json:"shares"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	investor, rpcErr := parseAddressParam("investor", params.Investor)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	shares, rpcErr := parseAmountParam("shares", params.Shares)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, err := s.engine.RequestRedeem(investor, shares)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, RequestOpenedResponse{RequestID: formatRequestID(id)})
}

func (s *Server) handleRequestAdvanceEpoch(w http.ResponseWriter, req *RPCRequest) {
	s.handleOperatorRequest(w, req, s.engine.RequestAdvanceEpoch)
}

func (s *Server) handleRequestProcessQueue(w http.ResponseWriter, req *RPCRequest) {
	s.handleOperatorRequest(w, req, s.engine.RequestProcessQueue)
}

func (s *Server) handleOperatorRequest(w http.ResponseWriter, req *RPCRequest, open func(crypto.Address) (vault.RequestID, error)) {
	var params struct {
		Caller string `json:"caller"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, err := open(caller)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, RequestOpenedResponse{RequestID: formatRequestID(id)})
}

func (s *Server) handleFulfillRequest(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller    string `json:"caller"`
		RequestID string `json:"requestId"`
		Nav       string `json:"nav"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, rpcErr := parseRequestIDParam(params.RequestID)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	nav, rpcErr := parseAmountParam("nav", params.Nav)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.engine.Fulfill(caller, id, nav); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	s.refreshGauges()
	writeResult(w, req.ID, map[string]bool{"fulfilled": true})
}

func (s *Server) handleClaimFees(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		Pot    string `json:"pot"`
		Amount string `json:"amount"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	var claimed *big.Int
	var err error
	switch strings.ToLower(strings.TrimSpace(params.Pot)) {
	case "onchain":
		claimed, err = s.engine.ClaimOnchainFees(caller, amount)
	case "offchain":
		claimed, err = s.engine.ClaimOffchainFees(caller, amount)
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "pot must be onchain or offchain", params.Pot)
		return
	}
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	s.refreshGauges()
	writeResult(w, req.ID, map[string]string{"claimed": claimed.String()})
}

func (s *Server) handleSweepExcess(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller   string `json:"caller"`
		Receiver string `json:"receiver"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	receiver, rpcErr := parseAddressParam("receiver", params.Receiver)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	swept, err := s.engine.SweepExcess(caller, receiver)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	s.refreshGauges()
	writeResult(w, req.ID, map[string]string{"swept": swept.String()})
}

func (s *Server) handleSetMinTxFee(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		Fee    string `json:"fee"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, rpcErr := parseAddressParam("caller", params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	fee, rpcErr := parseAmountParam("fee", params.Fee)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.engine.SetMinTxFee(caller, fee); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleSetKyc(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
		KycType string `json:"kycType"`
		Banned  bool   `json:"banned"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	addr, rpcErr := parseAddressParam("address", params.Address)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	kycType, ok := compliance.ParseKycType(params.KycType)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid kycType", params.KycType)
		return
	}
	if err := s.registry.SetKyc(addr, kycType, params.Banned); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleSetStrictMode(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Enabled bool `json:"enabled"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.registry.SetStrict(params.Enabled); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}
