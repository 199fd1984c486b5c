package http

import (
	"log/slog"
	"net/http"

	"github.com/brojonat/beat-the-guardian/engine"
	"github.com/brojonat/beat-the-guardian/http/api"
	"github.com/brojonat/beat-the-guardian/internal/stools"
	solanago "github.com/gagliardetto/solana-go"
)

func ledgerResponse(addr engine.Address, l *engine.Ledger) api.LedgerResponse {
	resp := api.LedgerResponse{
		Address:          addr.String(),
		Authority:        l.Authority.String(),
		JudgeAuthority:   l.JudgeAuthority.String(),
		Balance:          l.Balance,
		FloorAmount:      l.FloorAmount,
		EntryFee:         l.EntryFee,
		EntryCount:       l.EntryCount,
		LastActivityTime: l.LastActivityTime,
		ProcessingLock:   l.ProcessingLock,
		LastRecoveryTime: l.LastRecoveryTime,
	}
	if !l.LastParticipant.IsZero() {
		resp.LastParticipant = l.LastParticipant.String()
	}
	return resp
}

// handleGetLedger returns the current state of the pool ledger.
func handleGetLedger(l *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ledger, err := eng.Ledger(r.Context())
		if err != nil {
			writeEngineError(l, w, err)
			return
		}
		writeJSONResponse(w, ledgerResponse(eng.Address(), ledger), http.StatusOK)
	}
}

// handleInitializeLedger creates the pool ledger. Admin only; the authority
// wallet funds the floor.
func handleInitializeLedger(l *slog.Logger, eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.CreateLedgerRequest
		if err := stools.DecodeJSONBody(r, &req); err != nil {
			writeEngineError(l, w, err)
			return
		}
		authority, err := solanago.PublicKeyFromBase58(req.Authority)
		if err != nil {
			writeBadRequestError(w, err)
			return
		}
		judge, err := solanago.PublicKeyFromBase58(req.JudgeAuthority)
		if err != nil {
			writeBadRequestError(w, err)
			return
		}
		params := engine.InitializeParams{
			Authority:      authority,
			JudgeAuthority: judge,
			FloorAmount:    req.FloorAmount,
		}
		if req.EntryFee != nil {
			params.EntryFee = *req.EntryFee
		}
		ledger, err := eng.Initialize(r.Context(), params)
		if err != nil {
			writeEngineError(l, w, err)
			return
		}
		writeJSONResponse(w, ledgerResponse(eng.Address(), ledger), http.StatusCreated)
	}
}
