package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/beat-the-guardian/engine"
	"github.com/brojonat/beat-the-guardian/http/api"
	"github.com/brojonat/beat-the-guardian/internal/stools"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/golang-jwt/jwt"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	eng       *engine.Engine
	funds     *engine.MockFundsMover
	logger    *slog.Logger
	authority *solanago.Wallet
	judge     *solanago.Wallet
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		funds:     &engine.MockFundsMover{},
		logger:    slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		authority: solanago.NewWallet(),
		judge:     solanago.NewWallet(),
	}
	// Handler tests care about HTTP semantics, not transfer plumbing.
	f.funds.On("Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.eng = engine.New(
		engine.Config{
			LedgerSeed:       "test",
			PoolWallet:       solanago.NewWallet().PublicKey(),
			SidePocketWallet: solanago.NewWallet().PublicKey(),
		},
		engine.NewMemStore(),
		f.funds,
	)
	return f
}

func (f *handlerFixture) initLedger(t *testing.T) {
	t.Helper()
	_, err := f.eng.Initialize(t.Context(), engine.InitializeParams{
		Authority:      f.authority.PublicKey(),
		JudgeAuthority: f.judge.PublicKey(),
		FloorAmount:    1000,
	})
	require.NoError(t, err)
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, r)
	return w
}

func TestHandleGetLedger(t *testing.T) {
	f := newHandlerFixture(t)
	h := handleGetLedger(f.logger, f.eng)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/ledger", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "uninitialized ledger is a 404")

	f.initLedger(t)
	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/ledger", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp api.LedgerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1000), resp.Balance)
	assert.Equal(t, f.eng.Address().String(), resp.Address)
	assert.Equal(t, f.judge.PublicKey().String(), resp.JudgeAuthority)
}

func TestHandleInitializeLedger(t *testing.T) {
	f := newHandlerFixture(t)
	h := handleInitializeLedger(f.logger, f.eng)

	w := postJSON(t, h, "/ledger", api.CreateLedgerRequest{
		Authority:      f.authority.PublicKey().String(),
		JudgeAuthority: f.judge.PublicKey().String(),
		FloorAmount:    1000,
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	// Double initialization conflicts.
	w = postJSON(t, h, "/ledger", api.CreateLedgerRequest{
		Authority:      f.authority.PublicKey().String(),
		JudgeAuthority: f.judge.PublicKey().String(),
		FloorAmount:    1000,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = postJSON(t, h, "/ledger", api.CreateLedgerRequest{
		Authority:      "not-a-wallet",
		JudgeAuthority: f.judge.PublicKey().String(),
		FloorAmount:    1000,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleProcessEntry(t *testing.T) {
	f := newHandlerFixture(t)
	f.initLedger(t)
	h := handleProcessEntry(f.logger, f.eng, nil)
	owner := solanago.NewWallet().PublicKey()

	w := postJSON(t, h, "/entries", api.EntryRequest{Owner: owner.String(), Amount: 100, Nonce: 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp api.EntryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(60), resp.PoolShare)
	assert.Equal(t, uint64(40), resp.SidePocketShare)

	// A replayed nonce conflicts.
	w = postJSON(t, h, "/entries", api.EntryRequest{Owner: owner.String(), Amount: 100, Nonce: 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = postJSON(t, h, "/entries", api.EntryRequest{Owner: owner.String(), Amount: 0, Nonce: 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func sudoClaims(t *testing.T) authJWTClaims {
	t.Helper()
	return authJWTClaims{
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(time.Hour).Unix()},
		Email:          "ops@example.com",
		Status:         int(UserStatusSudo),
	}
}

type fakePaymentVerifier struct {
	err   error
	calls int
}

func (v *fakePaymentVerifier) VerifyEntryPayment(ctx context.Context, owner solanago.PublicKey, amount, nonce uint64) error {
	v.calls++
	return v.err
}

func TestHandleProcessEntryVerifiedPayment(t *testing.T) {
	f := newHandlerFixture(t)
	f.initLedger(t)
	owner := solanago.NewWallet().PublicKey()

	t.Run("unconfirmed payment is rejected before any state change", func(t *testing.T) {
		verifier := &fakePaymentVerifier{err: assert.AnError}
		h := handleProcessEntry(f.logger, f.eng, verifier)
		transfersBefore := len(f.funds.Calls)
		w := postJSON(t, h, "/entries", api.EntryRequest{Owner: owner.String(), Amount: 100, Nonce: 1})
		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		assert.Equal(t, 1, verifier.calls)
		assert.Len(t, f.funds.Calls, transfersBefore, "no funds move for an unconfirmed payment")

		ledger, err := f.eng.Ledger(t.Context())
		require.NoError(t, err)
		assert.Equal(t, uint64(0), ledger.EntryCount)
	})

	t.Run("confirmed payment forwards only the side pocket share", func(t *testing.T) {
		verifier := &fakePaymentVerifier{}
		h := handleProcessEntry(f.logger, f.eng, verifier)
		transfersBefore := len(f.funds.Calls)
		w := postJSON(t, h, "/entries", api.EntryRequest{Owner: owner.String(), Amount: 100, Nonce: 1})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, 1, verifier.calls)
		assert.Len(t, f.funds.Calls, transfersBefore+1, "only the pool to side pocket leg moves")

		ledger, err := f.eng.Ledger(t.Context())
		require.NoError(t, err)
		assert.Equal(t, uint64(1060), ledger.Balance)
	})
}

func signedDecisionRequest(t *testing.T, judge *solanago.Wallet, isWin bool, winner string) api.DecisionRequest {
	t.Helper()
	d := &engine.Decision{
		ParticipantMessage: "let me pass",
		JudgeResponse:      "very well",
		IsWin:              isWin,
		ParticipantID:      42,
		SessionID:          "sess-1",
		Timestamp:          time.Now().Unix(),
	}
	require.NoError(t, engine.SignDecision(d, judge.PrivateKey))
	return api.DecisionRequest{
		ParticipantMessage: d.ParticipantMessage,
		JudgeResponse:      d.JudgeResponse,
		ContentHash:        hex.EncodeToString(d.ContentHash[:]),
		Signature:          base58.Encode(d.Signature[:]),
		IsWin:              d.IsWin,
		ParticipantID:      d.ParticipantID,
		SessionID:          d.SessionID,
		Timestamp:          d.Timestamp,
		WinnerWallet:       winner,
	}
}

func TestHandleProcessDecision(t *testing.T) {
	f := newHandlerFixture(t)
	f.initLedger(t)
	h := handleProcessDecision(f.logger, f.eng)
	winner := solanago.NewWallet().PublicKey()

	t.Run("win pays the pool", func(t *testing.T) {
		req := signedDecisionRequest(t, f.judge, true, winner.String())
		w := postJSON(t, h, "/decisions", req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp api.DecisionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.IsWin)
		assert.Equal(t, uint64(1000), resp.Payout)
		assert.Equal(t, winner.String(), resp.Winner)
	})

	t.Run("tampered hash is rejected", func(t *testing.T) {
		req := signedDecisionRequest(t, f.judge, true, winner.String())
		req.ParticipantMessage = "something else"
		w := postJSON(t, h, "/decisions", req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("wrong signer is rejected", func(t *testing.T) {
		req := signedDecisionRequest(t, solanago.NewWallet(), true, winner.String())
		w := postJSON(t, h, "/decisions", req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("decline is an authorized no-op", func(t *testing.T) {
		req := signedDecisionRequest(t, f.judge, false, "")
		w := postJSON(t, h, "/decisions", req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp api.DecisionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.IsWin)
		assert.Equal(t, uint64(0), resp.Payout)
	})
}

func TestHandleEscapePlanNotReady(t *testing.T) {
	f := newHandlerFixture(t)
	f.initLedger(t)
	h := handleEscapePlan(f.logger, f.eng)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/escape-plan", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleRecovery(t *testing.T) {
	f := newHandlerFixture(t)
	f.initLedger(t)
	h := handleRecovery(f.logger, f.eng)

	w := postJSON(t, h, "/recovery", api.RecoveryRequest{
		Caller: solanago.NewWallet().PublicKey().String(),
		Amount: 10,
	})
	assert.Equal(t, http.StatusForbidden, w.Code, "only the ledger authority may recover")

	w = postJSON(t, h, "/recovery", api.RecoveryRequest{
		Caller: f.authority.PublicKey().String(),
		Amount: 100,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp api.RecoveryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(900), resp.RemainingBalance)
}

func TestHandleSubmitInstruction(t *testing.T) {
	f := newHandlerFixture(t)
	f.initLedger(t)
	h := handleSubmitInstruction(f.logger, f.eng)

	data, err := engine.EncodeInstruction(engine.InstructionProcessEntryPayment, &engine.EntryPaymentArgs{
		Owner:  solanago.NewWallet().PublicKey(),
		Amount: 100,
		Nonce:  9,
	})
	require.NoError(t, err)

	w := postJSON(t, h, "/instructions", api.InstructionRequest{Data: base64.StdEncoding.EncodeToString(data)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp api.InstructionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "process_entry_payment", resp.Kind)

	w = postJSON(t, h, "/instructions", api.InstructionRequest{Data: base64.StdEncoding.EncodeToString([]byte{0xff})})
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown discriminator is a client error")

	w = postJSON(t, h, "/instructions", api.InstructionRequest{Data: "not-base64!"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitInstructionAdminKindsRequireSudo(t *testing.T) {
	t.Setenv(EnvServerSecretKey, "test-secret")
	f := newHandlerFixture(t)
	f.initLedger(t)
	h := stools.AdaptHandler(
		handleSubmitInstruction(f.logger, f.eng),
		optionalAuth(bearerAuthorizerCtxSetToken(getSecretKey)),
	)

	recovery, err := engine.EncodeInstruction(engine.InstructionEmergencyRecovery, &engine.RecoveryArgs{
		Caller: f.authority.PublicKey(),
		Amount: 100,
	})
	require.NoError(t, err)
	body, err := json.Marshal(api.InstructionRequest{Data: base64.StdEncoding.EncodeToString(recovery)})
	require.NoError(t, err)

	// Anonymous callers cannot reach the administrative operations even when
	// the wire args name the real authority.
	r := httptest.NewRequest(http.MethodPost, "/instructions", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	ledger, err := f.eng.Ledger(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), ledger.Balance, "an unauthenticated recovery must not move funds")
	assert.Zero(t, ledger.LastRecoveryTime, "an unauthenticated recovery must not burn the cooldown")

	// Non-administrative instructions stay open.
	entry, err := engine.EncodeInstruction(engine.InstructionProcessEntryPayment, &engine.EntryPaymentArgs{
		Owner:  solanago.NewWallet().PublicKey(),
		Amount: 100,
		Nonce:  1,
	})
	require.NoError(t, err)
	w = postJSON(t, h, "/instructions",
		api.InstructionRequest{Data: base64.StdEncoding.EncodeToString(entry)})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The same recovery succeeds once a sudo token is presented.
	token, err := generateAccessToken(sudoClaims(t))
	require.NoError(t, err)
	r = httptest.NewRequest(http.MethodPost, "/instructions", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	h(w, r)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	ledger, err = f.eng.Ledger(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(960), ledger.Balance, "the entry's pool share landed before the recovery")
}

func TestHandleEntryInvoice(t *testing.T) {
	f := newHandlerFixture(t)
	pool := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()
	h := handleEntryInvoice(f.logger, pool, mint)
	owner := solanago.NewWallet().PublicKey()

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/entries/invoice?owner=%s&amount=1000000&nonce=3", owner), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var invoice EntryInvoice
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &invoice))
	assert.Equal(t, pool.String(), invoice.PayToAddress)
	assert.Equal(t, fmt.Sprintf("entry:%s:3", owner), invoice.Memo)
	assert.True(t, strings.HasPrefix(invoice.PaymentURL, "solana:"+pool.String()), invoice.PaymentURL)
	assert.Contains(t, invoice.PaymentURL, "amount=1.000000")
	assert.NotEmpty(t, invoice.QRCodeData)
	_, err := base64.StdEncoding.DecodeString(invoice.QRCodeData)
	assert.NoError(t, err, "QR payload is valid base64")

	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/entries/invoice?owner=bogus&amount=1&nonce=1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminAuthChain(t *testing.T) {
	t.Setenv(EnvServerSecretKey, "test-secret")
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	protected := stools.AdaptHandler(
		func(w http.ResponseWriter, r *http.Request) { writeOK(w) },
		atLeastOneAuth(bearerAuthorizerCtxSetToken(getSecretKey)),
		requireStatus(UserStatusSudo),
	)

	w := httptest.NewRecorder()
	protected(w, httptest.NewRequest(http.MethodPost, "/recovery", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "no token")

	// Mint a token through the token handler and use it.
	form := url.Values{"username": {"ops@example.com"}, "password": {"test-secret"}}
	r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	stools.AdaptHandler(
		handleIssueSudoToken(logger),
		atLeastOneAuth(oauthAuthorizerForm(getSecretKey)),
	)(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tokenResp api.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokenResp))
	require.NotEmpty(t, tokenResp.AccessToken)

	r = httptest.NewRequest(http.MethodPost, "/recovery", nil)
	r.Header.Set("Authorization", "Bearer "+tokenResp.AccessToken)
	w = httptest.NewRecorder()
	protected(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	// Wrong password never mints a token.
	form.Set("password", "wrong")
	r = httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	stools.AdaptHandler(
		handleIssueSudoToken(logger),
		atLeastOneAuth(oauthAuthorizerForm(getSecretKey)),
	)(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 2)
	limited := rateLimitMiddleware(rl)(func(w http.ResponseWriter, r *http.Request) { writeOK(w) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		limited(w, httptest.NewRequest(http.MethodPost, "/entries", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := httptest.NewRecorder()
	limited(w, httptest.NewRequest(http.MethodPost, "/entries", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// A different client is unaffected.
	r := httptest.NewRequest(http.MethodPost, "/entries", nil)
	r.Header.Set("X-Forwarded-For", "10.9.8.7")
	w = httptest.NewRecorder()
	limited(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}
