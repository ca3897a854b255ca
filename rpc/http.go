package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"fundvault/native/compliance"
	"fundvault/native/token"
	"fundvault/native/vault"
	"fundvault/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError       = -32700
	codeInvalidRequest   = -32600
	codeMethodNotFound   = -32601
	codeInvalidParams    = -32602
	codeServerError      = -32000
	codeUnauthorized     = -32001
	codeForbidden        = -32002
	codeRateLimited      = -32020
	codeValidationFailed = -32030
	codeUnknownRequest   = -32031
)

// Server exposes the vault engine and compliance registry over JSON-RPC 2.0.
// Mutating methods require the configured bearer token; read methods are
// open. Each inbound request gets a correlation id carried through the logs.
type Server struct {
	engine   *vault.Engine
	registry *compliance.Registry
	gate     *compliance.Gate
	reserve  token.Reserve
	shares   *token.ShareLedger
	logger   *slog.Logger

	authToken string

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	limitPerSec rate.Limit
	limitBurst  int
}

// Options bundles the server collaborators.
type Options struct {
	Engine   *vault.Engine
	Registry *compliance.Registry
	Gate     *compliance.Gate
	Reserve  token.Reserve
	Shares   *token.ShareLedger
	Logger   *slog.Logger

	// AuthToken guards mutating methods. Empty disables them entirely.
	AuthToken string
	// RatePerSecond and Burst bound per-source request rates.
	RatePerSecond float64
	Burst         int
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	perSec := rate.Limit(opts.RatePerSecond)
	if perSec <= 0 {
		perSec = 50
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 100
	}
	return &Server{
		engine:      opts.Engine,
		registry:    opts.Registry,
		gate:        opts.Gate,
		reserve:     opts.Reserve,
		shares:      opts.Shares,
		logger:      logger,
		authToken:   strings.TrimSpace(opts.AuthToken),
		limiters:    make(map[string]*rate.Limiter),
		limitPerSec: perSec,
		limitBurst:  burst,
	}
}

// Handler returns the HTTP handler serving the RPC endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return mux
}

// Start serves the RPC endpoint on addr until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	correlationID := uuid.NewString()
	logger := s.logger.With("correlationId", correlationID, "source", clientSource(r))
	w.Header().Set("X-Correlation-Id", correlationID)

	if !s.allowSource(clientSource(r)) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "request rate exceeded", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	logger.Debug("rpc request", "method", req.Method)

	switch req.Method {
	case "vault_getState":
		s.handleGetState(w, req)
	case "vault_getQueue":
		s.handleGetQueue(w, req)
	case "vault_getPendingRequest":
		s.handleGetPendingRequest(w, req)
	case "vault_getEpochFlow":
		s.handleGetEpochFlow(w, req)
	case "vault_getBalance":
		s.handleGetBalance(w, req)
	case "vault_previewDeposit":
		s.handlePreviewDeposit(w, req)
	case "vault_previewRedeem":
		s.handlePreviewRedeem(w, req)
	case "compliance_getKyc":
		s.handleGetKyc(w, req)
	case "compliance_detectTransferRestriction":
		s.handleDetectRestriction(w, req)
	case "vault_requestDeposit":
		s.authed(w, r, req, s.handleRequestDeposit)
	case "vault_requestRedeem":
		s.authed(w, r, req, s.handleRequestRedeem)
	case "vault_requestAdvanceEpoch":
		s.authed(w, r, req, s.handleRequestAdvanceEpoch)
	case "vault_requestProcessQueue":
		s.authed(w, r, req, s.handleRequestProcessQueue)
	case "vault_fulfillRequest":
		s.authed(w, r, req, s.handleFulfillRequest)
	case "vault_claimFees":
		s.authed(w, r, req, s.handleClaimFees)
	case "vault_sweepExcess":
		s.authed(w, r, req, s.handleSweepExcess)
	case "vault_setMinTxFee":
		s.authed(w, r, req, s.handleSetMinTxFee)
	case "compliance_setKyc":
		s.authed(w, r, req, s.handleSetKyc)
	case "compliance_setStrictMode":
		s.authed(w, r, req, s.handleSetStrictMode)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

func (s *Server) authed(w http.ResponseWriter, r *http.Request, req *RPCRequest, next func(http.ResponseWriter, *RPCRequest)) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	next(w, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(s.limitPerSec, s.limitBurst)
		s.limiters[source] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// refreshGauges pushes the post-call state into the slow-moving gauges that
// the event stream alone cannot keep current.
func (s *Server) refreshGauges() {
	st, err := s.engine.State()
	if err != nil {
		return
	}
	m := metrics.Vault()
	held, _ := new(big.Float).SetInt(st.TotalReserveHeld).Float64()
	m.SetReserveHeld(held)
	if _, length, err := s.engine.QueueSnapshot(0); err == nil {
		m.SetQueueLength(float64(length))
	}
}
