// Package http exposes the settlement engine over a thin JSON API. Handlers
// decode requests, call the engine, and map its errors to status codes; all
// splits, authorization checks, and timeouts live in the engine.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/brojonat/beat-the-guardian/engine"
	"github.com/brojonat/beat-the-guardian/http/api"
	"github.com/brojonat/beat-the-guardian/internal/stools"
	solanautil "github.com/brojonat/beat-the-guardian/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gorilla/handlers"
)

// Environment Variable Keys
const (
	EnvServerSecretKey       = "BTG_SECRET_KEY"
	EnvCORSOrigins           = "CORS_ORIGINS"
	EnvCORSMethods           = "CORS_METHODS"
	EnvCORSHeaders           = "CORS_HEADERS"
	EnvSolanaRPCEndpoint     = "SOLANA_RPC_ENDPOINT"
	EnvSolanaPoolWallet      = "SOLANA_POOL_WALLET"
	EnvSolanaSidePocket      = "SOLANA_SIDE_POCKET_WALLET"
	EnvSolanaUSDCMintAddress = "SOLANA_USDC_MINT_ADDRESS"
	EnvDatabaseURL           = "BTG_DATABASE_URL"
	EnvLedgerSeed            = "BTG_LEDGER_SEED"
)

func writeOK(w http.ResponseWriter) {
	writeJSONResponse(w, api.DefaultJSONResponse{Message: "ok"}, http.StatusOK)
}

func writeInternalError(l *slog.Logger, w http.ResponseWriter, e error) {
	l.Error("internal error", "error", e.Error())
	writeJSONResponse(w, api.DefaultJSONResponse{Error: "internal error"}, http.StatusInternalServerError)
}

func writeBadRequestError(w http.ResponseWriter, err error) {
	writeJSONResponse(w, api.DefaultJSONResponse{Error: err.Error()}, http.StatusBadRequest)
}

func writeNotFoundError(w http.ResponseWriter) {
	writeJSONResponse(w, api.DefaultJSONResponse{Error: "not found"}, http.StatusNotFound)
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSONResponse(w, api.DefaultJSONResponse{Error: "unauthorized"}, http.StatusUnauthorized)
}

func writeJSONResponse(w http.ResponseWriter, resp interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

// writeEngineError maps the engine's error taxonomy onto HTTP status codes.
// Validation problems are the client's fault, state conflicts are 409, and
// anything unrecognized is an internal error.
func writeEngineError(l *slog.Logger, w http.ResponseWriter, err error) {
	var decodeErr *stools.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		code := http.StatusBadRequest
		if decodeErr.TooLarge {
			code = http.StatusRequestEntityTooLarge
		}
		writeJSONResponse(w, api.DefaultJSONResponse{Error: decodeErr.Message}, code)
	case errors.Is(err, engine.ErrLedgerNotFound), errors.Is(err, engine.ErrEntryNotFound):
		writeNotFoundError(w)
	case errors.Is(err, engine.ErrUnauthorized):
		writeJSONResponse(w, api.DefaultJSONResponse{Error: err.Error()}, http.StatusForbidden)
	case errors.Is(err, engine.ErrLedgerExists),
		errors.Is(err, engine.ErrDuplicateEntry),
		errors.Is(err, engine.ErrOperationInProgress),
		errors.Is(err, engine.ErrEscapePlanNotReady),
		errors.Is(err, engine.ErrNoParticipants),
		errors.Is(err, engine.ErrRecoveryCooldownActive),
		errors.Is(err, engine.ErrRecoveryExceedsLimit),
		errors.Is(err, engine.ErrInsufficientFunds):
		writeJSONResponse(w, api.DefaultJSONResponse{Error: err.Error()}, http.StatusConflict)
	case errors.Is(err, engine.ErrInvalidInput),
		errors.Is(err, engine.ErrInputTooLong),
		errors.Is(err, engine.ErrInvalidSessionID),
		errors.Is(err, engine.ErrInvalidIdentity),
		errors.Is(err, engine.ErrUnauthorizedJudge),
		errors.Is(err, engine.ErrInvalidSignature),
		errors.Is(err, engine.ErrInvalidDecisionHash),
		errors.Is(err, engine.ErrInvalidTimestamp),
		errors.Is(err, engine.ErrTimestampOutOfRange),
		errors.Is(err, engine.ErrArithmeticOverflow):
		writeBadRequestError(w, err)
	default:
		writeInternalError(l, w, err)
	}
}

// corsFromEnv reads the CORS allowlists from the environment with permissive
// defaults for methods and headers and no default origins.
func corsFromEnv(logger *slog.Logger) (headersList, methods, origins []string) {
	if v := os.Getenv(EnvCORSOrigins); v == "*" {
		origins = []string{"*"}
		logger.Warn("CORS configured to allow all origins (*)")
	} else if v != "" {
		origins = strings.Split(v, ",")
	} else {
		logger.Warn("CORS_ORIGINS not set, cross-origin requests will be refused")
	}
	if v := os.Getenv(EnvCORSMethods); v != "" {
		methods = strings.Split(v, ",")
	} else {
		methods = []string{"GET", "POST", "OPTIONS"}
	}
	if v := os.Getenv(EnvCORSHeaders); v != "" {
		headersList = strings.Split(v, ",")
	} else {
		headersList = []string{"Authorization", "Content-Type", "X-Requested-With"}
	}
	return headersList, methods, origins
}

// RunServer starts the HTTP server and blocks until ctx is cancelled. The
// metrics sink is optional; when nil the /metrics route is not registered.
func RunServer(ctx context.Context, logger *slog.Logger, eng *engine.Engine, metrics *Metrics, port string) error {
	mux := http.NewServeMux()
	allowedHeaders, allowedMethods, allowedOrigins := corsFromEnv(logger)

	// Participant-facing endpoints share one IP rate limiter; the decision
	// endpoint gets a tighter one since each call does signature work.
	entryLimiter := NewRateLimiter(1*time.Minute, 60)
	decisionLimiter := NewRateLimiter(1*time.Minute, 20)

	// The invoice route and on-chain payment verification need the custody
	// wallets; without them entries fall back to mover-pulled transfers and
	// invoices are disabled rather than failing startup.
	var poolWallet, usdcMint solanago.PublicKey
	custodyConfigured := false
	if poolStr, mintStr := os.Getenv(EnvSolanaPoolWallet), os.Getenv(EnvSolanaUSDCMintAddress); poolStr != "" && mintStr != "" {
		var err error
		poolWallet, err = solanago.PublicKeyFromBase58(poolStr)
		if err != nil {
			return fmt.Errorf("server startup error: invalid %s: %w", EnvSolanaPoolWallet, err)
		}
		usdcMint, err = solanago.PublicKeyFromBase58(mintStr)
		if err != nil {
			return fmt.Errorf("server startup error: invalid %s: %w", EnvSolanaUSDCMintAddress, err)
		}
		custodyConfigured = true
	}

	var entryVerifier InboundPaymentVerifier
	if rpcEndpoint := os.Getenv(EnvSolanaRPCEndpoint); custodyConfigured && rpcEndpoint != "" {
		entryVerifier = solanautil.NewEntryVerifier(
			solanautil.NewRPCClient(rpcEndpoint), usdcMint, poolWallet, logger)
	} else {
		logger.Warn("on-chain payment verification disabled, entries use mover-pulled transfers")
	}

	mux.HandleFunc("GET /healthz", stools.AdaptHandler(
		handleHealthz(),
		withLogging(logger),
	))

	mux.HandleFunc("POST /token", stools.AdaptHandler(
		handleIssueSudoToken(logger),
		withLogging(logger),
		atLeastOneAuth(oauthAuthorizerForm(getSecretKey)),
	))

	mux.HandleFunc("GET /ledger", stools.AdaptHandler(
		handleGetLedger(logger, eng),
		withLogging(logger),
	))

	mux.HandleFunc("POST /ledger", stools.AdaptHandler(
		handleInitializeLedger(logger, eng),
		withLogging(logger),
		atLeastOneAuth(bearerAuthorizerCtxSetToken(getSecretKey)),
		requireStatus(UserStatusSudo),
	))

	mux.HandleFunc("POST /entries", stools.AdaptHandler(
		handleProcessEntry(logger, eng, entryVerifier),
		withLogging(logger),
		rateLimitMiddleware(entryLimiter),
	))

	mux.HandleFunc("POST /decisions", stools.AdaptHandler(
		handleProcessDecision(logger, eng),
		withLogging(logger),
		rateLimitMiddleware(decisionLimiter),
	))

	mux.HandleFunc("POST /escape-plan", stools.AdaptHandler(
		handleEscapePlan(logger, eng),
		withLogging(logger),
		rateLimitMiddleware(entryLimiter),
	))

	mux.HandleFunc("POST /recovery", stools.AdaptHandler(
		handleRecovery(logger, eng),
		withLogging(logger),
		atLeastOneAuth(bearerAuthorizerCtxSetToken(getSecretKey)),
		requireStatus(UserStatusSudo),
	))

	// The wire path dispatches administrative instructions too, so it runs
	// the bearer authorizer for whoever presents credentials; the handler
	// requires sudo for the admin discriminators.
	mux.HandleFunc("POST /instructions", stools.AdaptHandler(
		handleSubmitInstruction(logger, eng),
		withLogging(logger),
		rateLimitMiddleware(entryLimiter),
		optionalAuth(bearerAuthorizerCtxSetToken(getSecretKey)),
	))

	if custodyConfigured {
		mux.HandleFunc("GET /entries/invoice", stools.AdaptHandler(
			handleEntryInvoice(logger, poolWallet, usdcMint),
			withLogging(logger),
			rateLimitMiddleware(entryLimiter),
		))
	} else {
		logger.Warn("pool wallet or USDC mint not configured, entry invoices disabled")
	}

	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	corsHandler := handlers.CORS(
		handlers.AllowedHeaders(allowedHeaders),
		handlers.AllowedMethods(allowedMethods),
		handlers.AllowedOrigins(allowedOrigins),
		handlers.AllowCredentials(),
	)(mux)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: corsHandler,
	}

	go func() {
		logger.Info("http server listening", "port", port, "ledger", eng.Address().String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down http server")
	return server.Shutdown(context.Background())
}

// withLogging wraps a handler with request logging.
func withLogging(logger *slog.Logger) stools.Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next(w, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
			)
		}
	}
}

func handleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeOK(w)
	}
}
