// Package rpc implements the JSON-RPC 2.0 API server.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Klingon-tech/klingvault/config"
	klog "github.com/Klingon-tech/klingvault/internal/log"
	"github.com/Klingon-tech/klingvault/internal/metrics"
	"github.com/Klingon-tech/klingvault/internal/storage"
	"github.com/Klingon-tech/klingvault/internal/vault"
	"github.com/rs/zerolog"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr        string
	chainID     string
	vault       *vault.Vault
	tokens      map[string][]byte // symbol -> ledger namespace
	nonces      *NonceStore
	metrics     *metrics.Registry // nil = no /metrics and no request counts
	server      *http.Server
	mux         *http.ServeMux
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// Backend is the state the server reads and mutates. DB is the database
// the vault was opened on; Tokens maps each ledger symbol to its namespace
// inside DB. Signed calls are only accepted for ChainID.
type Backend struct {
	ChainID string
	Vault   *vault.Vault
	DB      storage.DB
	Tokens  map[string]string
}

// New creates a new RPC server. The rpcCfg parameter controls IP filtering
// and CORS. A zero-value RPCConfig allows all IPs and disables CORS.
func New(addr string, b Backend, rpcCfg ...config.RPCConfig) *Server {
	s := &Server{
		addr:    addr,
		chainID: b.ChainID,
		vault:   b.Vault,
		tokens:  make(map[string][]byte, len(b.Tokens)),
		nonces:  NewNonceStore(b.DB),
		logger:  klog.WithComponent("rpc"),
	}
	for sym, ns := range b.Tokens {
		s.tokens[sym] = []byte(ns)
	}

	if len(rpcCfg) > 0 {
		s.allowedNets = parseAllowedIPs(rpcCfg[0].AllowedIPs)
		s.corsOrigins = rpcCfg[0].CORSOrigins
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/", s.handleRequest)

	s.server = &http.Server{
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// SetMetrics enables request counting and serves reg at /metrics. Call
// before Start.
func (s *Server) SetMetrics(reg *metrics.Registry) {
	s.metrics = reg
	s.mux.Handle("/metrics", s.filtered(reg.Handler()))
}

// Handler returns the HTTP handler, for tests that use httptest.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("RPC server listening")
	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// filtered wraps h with the IP allow-list.
func (s *Server) filtered(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.remoteAllowed(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (s *Server) remoteAllowed(r *http.Request) bool {
	if len(s.allowedNets) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && s.isIPAllowed(ip)
}

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if !s.remoteAllowed(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	s.setCORSHeaders(w, r)

	// Handle CORS preflight.
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}

	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	result, rpcErr := s.dispatch(r.Context(), &req)
	if rpcErr != nil {
		s.observe(req.Method, rpcErr.Code)
		s.logger.Debug().Str("method", req.Method).Int("code", rpcErr.Code).Str("error", rpcErr.Message).Msg("RPC error")
		writeJSON(w, Response{
			JSONRPC: "2.0",
			Error:   rpcErr,
			ID:      req.ID,
		})
		return
	}

	s.observe(req.Method, 0)
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, *Error) {
	switch req.Method {
	// Vault reads
	case "vault_getStats":
		return s.handleVaultGetStats(ctx, req)
	case "vault_getPosition":
		return s.handleVaultGetPosition(ctx, req)
	case "vault_pendingReward":
		return s.handleVaultPendingReward(ctx, req)
	case "vault_hasRole":
		return s.handleVaultHasRole(ctx, req)
	case "vault_roleMembers":
		return s.handleVaultRoleMembers(ctx, req)
	case "vault_events":
		return s.handleVaultEvents(ctx, req)
	case "vault_audit":
		return s.handleVaultAudit(ctx, req)

	// Vault user calls
	case "vault_deposit":
		return s.signed(ctx, req, s.callDeposit)
	case "vault_withdraw":
		return s.signed(ctx, req, s.callWithdraw)
	case "vault_claim":
		return s.signed(ctx, req, s.callClaim)
	case "vault_exit":
		return s.signed(ctx, req, s.callExit)
	case "vault_emergencyWithdraw":
		return s.signed(ctx, req, s.callEmergencyWithdraw)

	// Vault admin calls
	case "vault_fundRewards":
		return s.signed(ctx, req, s.callFundRewards)
	case "vault_setRewardRate":
		return s.signed(ctx, req, s.callSetRewardRate)
	case "vault_setLockPeriod":
		return s.signed(ctx, req, s.callSetLockPeriod)
	case "vault_setStakeLimits":
		return s.signed(ctx, req, s.callSetStakeLimits)
	case "vault_setEmergencyFee":
		return s.signed(ctx, req, s.callSetEmergencyFee)
	case "vault_pause":
		return s.signed(ctx, req, s.callPause)
	case "vault_unpause":
		return s.signed(ctx, req, s.callUnpause)
	case "vault_grantRole":
		return s.signed(ctx, req, s.callGrantRole)
	case "vault_revokeRole":
		return s.signed(ctx, req, s.callRevokeRole)
	case "vault_collectFees":
		return s.signed(ctx, req, s.callCollectFees)

	// Token ledgers
	case "token_info":
		return s.handleTokenInfo(ctx, req)
	case "token_balanceOf":
		return s.handleTokenBalanceOf(ctx, req)
	case "token_allowance":
		return s.handleTokenAllowance(ctx, req)
	case "token_approve":
		return s.signed(ctx, req, s.callTokenApprove)
	case "token_transfer":
		return s.signed(ctx, req, s.callTokenTransfer)
	case "token_mint":
		return s.signed(ctx, req, s.callTokenMint)
	case "token_burn":
		return s.signed(ctx, req, s.callTokenBurn)

	// Accounts
	case "account_getNonce":
		return s.handleAccountGetNonce(ctx, req)

	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

// observe counts a request. Unknown methods share one label value.
func (s *Server) observe(method string, code int) {
	if s.metrics == nil {
		return
	}
	if code == CodeMethodNotFound {
		method = "unknown"
	}
	s.metrics.RPC.ObserveRequest(method, code)
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	})
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			allowed = true
			break
		}
	}

	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

// parseParams unmarshals the request params into the given target.
func parseParams(req *Request, target interface{}) *Error {
	if len(req.Params) == 0 || string(req.Params) == "null" {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}
	if err := json.Unmarshal(req.Params, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}
