package http

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/beat-the-guardian/engine"
	"github.com/brojonat/beat-the-guardian/http/api"
	"github.com/brojonat/beat-the-guardian/internal/stools"
	solanago "github.com/gagliardetto/solana-go"
)

// InboundPaymentVerifier confirms a participant's invoice payment landed in
// the pool wallet before the entry is recorded.
type InboundPaymentVerifier interface {
	VerifyEntryPayment(ctx context.Context, owner solanago.PublicKey, amount, nonce uint64) error
}

// entryVerifyTimeout bounds how long an entry request waits for its payment
// to finalize on chain.
const entryVerifyTimeout = 2 * time.Minute

// handleProcessEntry records a paid attempt and runs the pool/side-pocket
// split. With a verifier configured the participant pays the invoice
// directly into the pool wallet and the payment is confirmed on chain
// before anything is recorded; without one (dry runs, tests) the funds
// mover pulls both shares from the owner.
func handleProcessEntry(l *slog.Logger, eng *engine.Engine, verifier InboundPaymentVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.EntryRequest
		if err := stools.DecodeJSONBody(r, &req); err != nil {
			writeEngineError(l, w, err)
			return
		}
		owner, err := solanago.PublicKeyFromBase58(req.Owner)
		if err != nil {
			writeBadRequestError(w, fmt.Errorf("invalid owner wallet: %w", err))
			return
		}
		fundsReceived := false
		if verifier != nil {
			vctx, cancel := context.WithTimeout(r.Context(), entryVerifyTimeout)
			defer cancel()
			if err := verifier.VerifyEntryPayment(vctx, owner, req.Amount, req.Nonce); err != nil {
				l.Warn("entry payment not observed on chain",
					"owner", req.Owner, "amount", req.Amount, "nonce", req.Nonce, "error", err)
				writeJSONResponse(w, api.DefaultJSONResponse{
					Error: "payment not observed on chain",
				}, http.StatusPaymentRequired)
				return
			}
			fundsReceived = true
		}
		entry, err := eng.ProcessEntryPayment(r.Context(), engine.EntryParams{
			Owner:         owner,
			Amount:        req.Amount,
			Nonce:         req.Nonce,
			FundsReceived: fundsReceived,
		})
		if err != nil {
			writeEngineError(l, w, err)
			return
		}
		writeJSONResponse(w, api.EntryResponse{
			Owner:           entry.Owner.String(),
			AmountPaid:      entry.AmountPaid,
			PoolShare:       entry.PoolShare,
			SidePocketShare: entry.SidePocketShare,
			Nonce:           entry.Nonce,
			CreatedAt:       entry.CreatedAt,
		}, http.StatusCreated)
	}
}

// decisionFromRequest parses the wire encodings of a decision request: hex
// content hash, base58 signature, base58 winner wallet.
func decisionFromRequest(req api.DecisionRequest) (*engine.Decision, solanago.PublicKey, error) {
	d := &engine.Decision{
		ParticipantMessage: req.ParticipantMessage,
		JudgeResponse:      req.JudgeResponse,
		IsWin:              req.IsWin,
		ParticipantID:      req.ParticipantID,
		SessionID:          req.SessionID,
		Timestamp:          req.Timestamp,
	}
	hashBytes, err := hex.DecodeString(req.ContentHash)
	if err != nil || len(hashBytes) != len(d.ContentHash) {
		return nil, solanago.PublicKey{}, fmt.Errorf("content_hash must be %d hex bytes", len(d.ContentHash))
	}
	copy(d.ContentHash[:], hashBytes)

	sig, err := solanago.SignatureFromBase58(req.Signature)
	if err != nil {
		return nil, solanago.PublicKey{}, fmt.Errorf("invalid signature: %w", err)
	}
	d.Signature = [64]byte(sig)

	var winner solanago.PublicKey
	if req.WinnerWallet != "" {
		winner, err = solanago.PublicKeyFromBase58(req.WinnerWallet)
		if err != nil {
			return nil, solanago.PublicKey{}, fmt.Errorf("invalid winner wallet: %w", err)
		}
	}
	return d, winner, nil
}

// handleProcessDecision verifies a judge decision and settles it. Wins pay
// the full pool; authorized declines are recorded no-ops.
func handleProcessDecision(l *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.DecisionRequest
		if err := stools.DecodeJSONBody(r, &req); err != nil {
			writeEngineError(l, w, err)
			return
		}
		d, winner, err := decisionFromRequest(req)
		if err != nil {
			writeBadRequestError(w, err)
			return
		}
		res, err := eng.ProcessDecision(r.Context(), d, winner)
		if err != nil {
			writeEngineError(l, w, err)
			return
		}
		resp := api.DecisionResponse{IsWin: res.IsWin, Payout: res.Payout}
		if !res.Winner.IsZero() {
			resp.Winner = res.Winner.String()
		}
		writeJSONResponse(w, resp, http.StatusOK)
	}
}

// handleEscapePlan triggers the timeout fallback. Anyone may call it; the
// engine enforces the idle window.
func handleEscapePlan(l *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := eng.ExecuteEscapePlan(r.Context())
		if err != nil {
			writeEngineError(l, w, err)
			return
		}
		writeJSONResponse(w, api.EscapePlanResponse{
			LastParticipant:      res.LastParticipant.String(),
			LastParticipantShare: res.LastParticipantShare,
			RetainedShare:        res.RetainedShare,
		}, http.StatusOK)
	}
}

// handleRecovery executes an emergency recovery for the ledger authority.
func handleRecovery(l *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.RecoveryRequest
		if err := stools.DecodeJSONBody(r, &req); err != nil {
			writeEngineError(l, w, err)
			return
		}
		caller, err := solanago.PublicKeyFromBase58(req.Caller)
		if err != nil {
			writeBadRequestError(w, fmt.Errorf("invalid caller wallet: %w", err))
			return
		}
		res, err := eng.EmergencyRecovery(r.Context(), caller, req.Amount)
		if err != nil {
			writeEngineError(l, w, err)
			return
		}
		writeJSONResponse(w, api.RecoveryResponse{
			Amount:             res.Amount,
			RemainingBalance:   res.RemainingBalance,
			MaxRecoveryAllowed: res.MaxRecoveryAllowed,
		}, http.StatusOK)
	}
}

// handleSubmitInstruction accepts a raw wire-encoded instruction and
// dispatches it to the matching operation. This is the path program clients
// use; the JSON endpoints above are conveniences over the same operations.
func handleSubmitInstruction(l *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.InstructionRequest
		if err := stools.DecodeJSONBody(r, &req); err != nil {
			writeEngineError(l, w, err)
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			writeBadRequestError(w, fmt.Errorf("data must be base64: %w", err))
			return
		}
		kind, args, err := engine.DecodeInstruction(data)
		if err != nil {
			writeEngineError(l, w, err)
			return
		}

		// Initialization and recovery are administrative on the JSON routes;
		// the wire path holds them to the same credential.
		switch kind {
		case engine.InstructionInitialize, engine.InstructionEmergencyRecovery:
			if !hasStatus(r, UserStatusSudo) {
				writeUnauthorized(w)
				return
			}
		}

		var result any
		switch a := args.(type) {
		case *engine.InitializeArgs:
			result, err = eng.Initialize(r.Context(), engine.InitializeParams{
				Authority:      a.Authority,
				JudgeAuthority: a.JudgeAuthority,
				FloorAmount:    a.FloorAmount,
				EntryFee:       a.EntryFee,
			})
		case *engine.EntryPaymentArgs:
			result, err = eng.ProcessEntryPayment(r.Context(), engine.EntryParams{
				Owner:  a.Owner,
				Amount: a.Amount,
				Nonce:  a.Nonce,
			})
		case *engine.DecisionArgs:
			result, err = eng.ProcessDecision(r.Context(), a.Decision(), a.WinnerWallet)
		case *engine.EscapePlanArgs:
			result, err = eng.ExecuteEscapePlan(r.Context())
		case *engine.RecoveryArgs:
			result, err = eng.EmergencyRecovery(r.Context(), a.Caller, a.Amount)
		default:
			writeBadRequestError(w, fmt.Errorf("unsupported instruction %s", kind))
			return
		}
		if err != nil {
			writeEngineError(l, w, err)
			return
		}
		writeJSONResponse(w, api.InstructionResponse{Kind: kind.String(), Result: result}, http.StatusOK)
	}
}
