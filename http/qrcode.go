package http

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/skip2/go-qrcode"

	solanautil "github.com/brojonat/beat-the-guardian/solana"
)

// EntryInvoice is the payment information for funding an attempt: a Solana
// Pay URL targeting the pool wallet plus a scannable QR rendering of it. The
// memo ties the on-chain payment back to the (owner, nonce) entry.
type EntryInvoice struct {
	PayToAddress string    `json:"pay_to_address"`
	USDCMint     string    `json:"usdc_mint"`
	Amount       float64   `json:"amount"`
	Memo         string    `json:"memo"`
	ExpiresAt    time.Time `json:"expires_at"`
	PaymentURL   string    `json:"payment_url"`
	QRCodeData   string    `json:"qr_code_data"`
}

// entryMemo is the reference attached to an entry payment transaction; it
// must match what the payment verifier looks for.
func entryMemo(owner solanago.PublicKey, nonce uint64) string {
	return solanautil.EntryReference(owner, nonce)
}

func generateEntryInvoice(
	poolWallet solanago.PublicKey,
	usdcMint solanago.PublicKey,
	amount uint64,
	memo string,
	paymentTimeout time.Duration,
) (EntryInvoice, error) {
	displayAmount := solanautil.FromSmallestUnit(amount).ToUSDC()
	paymentURL := buildSolanaPayURL(poolWallet.String(), displayAmount, usdcMint.String(), memo)
	qrCodeData, err := generateQRCode(paymentURL)
	if err != nil {
		return EntryInvoice{}, fmt.Errorf("failed to generate QR code: %w", err)
	}
	return EntryInvoice{
		PayToAddress: poolWallet.String(),
		USDCMint:     usdcMint.String(),
		Amount:       displayAmount,
		Memo:         memo,
		ExpiresAt:    time.Now().UTC().Add(paymentTimeout),
		PaymentURL:   paymentURL,
		QRCodeData:   qrCodeData,
	}, nil
}

// buildSolanaPayURL creates a Solana Pay-compatible URL for a USDC payment.
// Format: solana:{recipient}?amount={amount}&spl-token={mint}&memo={memo}&...
func buildSolanaPayURL(recipient string, amount float64, usdcMint, memo string) string {
	params := url.Values{}
	params.Set("amount", fmt.Sprintf("%.6f", amount))
	params.Set("spl-token", usdcMint)
	params.Set("memo", memo)
	params.Set("label", "Beat the Guardian")
	params.Set("message", "Entry payment for your attempt")
	return fmt.Sprintf("solana:%s?%s", recipient, params.Encode())
}

// generateQRCode renders data as a base64-encoded 256x256 PNG QR code.
func generateQRCode(data string) (string, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}
	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code as PNG: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
