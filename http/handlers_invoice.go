package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	solanago "github.com/gagliardetto/solana-go"
)

const defaultInvoiceTimeout = 30 * time.Minute

// handleEntryInvoice returns a Solana Pay invoice for funding an attempt.
// The caller pays the pool wallet directly; the memo carries the (owner,
// nonce) reference so the payment can be verified before the entry is
// recorded.
func handleEntryInvoice(l *slog.Logger, poolWallet, usdcMint solanago.PublicKey) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		owner, err := solanago.PublicKeyFromBase58(q.Get("owner"))
		if err != nil {
			writeBadRequestError(w, fmt.Errorf("invalid owner wallet: %w", err))
			return
		}
		amount, err := strconv.ParseUint(q.Get("amount"), 10, 64)
		if err != nil || amount == 0 {
			writeBadRequestError(w, fmt.Errorf("amount must be a positive integer"))
			return
		}
		nonce, err := strconv.ParseUint(q.Get("nonce"), 10, 64)
		if err != nil || nonce == 0 {
			writeBadRequestError(w, fmt.Errorf("nonce must be a positive integer"))
			return
		}
		invoice, err := generateEntryInvoice(poolWallet, usdcMint, amount, entryMemo(owner, nonce), defaultInvoiceTimeout)
		if err != nil {
			writeInternalError(l, w, err)
			return
		}
		writeJSONResponse(w, invoice, http.StatusOK)
	}
}
