// Package api exposes the presale engine over HTTP and streams committed
// journal entries to websocket subscribers.
//
// The server does not authenticate callers. Every request acts as the
// principal named in the X-Presale-Caller header, including the owner, so the
// server must only be reachable through a gateway that authenticates the
// principal and sets the header, dropping any value sent by the client.
// Payments are still pulled through allowances the payer granted to the
// custody account on the asset ledger.
package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"presale-ledger/internal/observability"
	"presale-ledger/internal/presale"
	"presale-ledger/internal/storage"
)

// CallerHeader carries the principal of the request. Authenticating it is
// left to the gateway in front of the server.
const CallerHeader = "X-Presale-Caller"

// RequestIDHeader carries the request id, generated when absent.
const RequestIDHeader = "X-Request-Id"

const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	Engine  *presale.Engine
	Journal storage.JournalStore

	// Inflows serves /v1/stats/inflows. Defaults to Journal when it
	// implements storage.InflowStore.
	Inflows storage.InflowStore

	// Hub serves /ws/journal. Nil disables the route.
	Hub *Hub

	Logger *zap.Logger
}

// Server serves the presale HTTP API.
type Server struct {
	engine  *presale.Engine
	journal storage.JournalStore
	inflows storage.InflowStore
	hub     *Hub
	logger  *zap.Logger
	started time.Time
}

// New creates a Server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	inflows := opts.Inflows
	if inflows == nil {
		inflows, _ = opts.Journal.(storage.InflowStore)
	}
	return &Server{
		engine:  opts.Engine,
		journal: opts.Journal,
		inflows: inflows,
		hub:     opts.Hub,
		logger:  logger.Named("api"),
		started: time.Now(),
	}
}

// Handler returns the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("GET /v1/presale", s.handlePresale)
	mux.HandleFunc("POST /v1/presale/fund", s.handleFund)
	mux.HandleFunc("POST /v1/presale/fund-bonus", s.handleFundBonus)
	mux.HandleFunc("POST /v1/presale/buy/{asset}", s.handleBuy)
	mux.HandleFunc("POST /v1/presale/claim", s.handleClaim)

	mux.HandleFunc("POST /v1/admin/claim-time", s.handleSetClaimTime)
	mux.HandleFunc("POST /v1/admin/wallet", s.handleSetWallet)
	mux.HandleFunc("POST /v1/admin/withdraw", s.handleWithdraw)
	mux.HandleFunc("POST /v1/admin/refund", s.handleRefund)

	mux.HandleFunc("GET /v1/investors/{address}", s.handleInvestor)
	mux.HandleFunc("GET /v1/estimate/coin", s.handleEstimateCoin)
	mux.HandleFunc("GET /v1/estimate/native", s.handleEstimateNative)
	mux.HandleFunc("GET /v1/journal", s.handleJournal)
	mux.HandleFunc("GET /v1/stats/inflows", s.handleInflows)

	if s.hub != nil {
		mux.Handle("GET /ws/journal", s.hub)
	}

	return s.instrument(mux)
}

// instrument assigns request ids, logs every request and counts it by route.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		observability.RecordHTTPRequest(route, rec.status)

		s.logger.Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("caller", r.Header.Get(CallerHeader)),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(started)),
		)
	})
}

// statusRecorder captures the response status. It forwards hijacking so the
// websocket upgrade keeps working behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	r.wroteHeader = true
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
