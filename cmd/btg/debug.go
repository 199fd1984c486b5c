package main

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brojonat/beat-the-guardian/engine"
	"github.com/brojonat/beat-the-guardian/http/api"
	solanautil "github.com/brojonat/beat-the-guardian/solana"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/urfave/cli/v2"
)

func debugCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "health",
			Usage: "Check server health",
			Flags: []cli.Flag{endpointFlag()},
			Action: func(c *cli.Context) error {
				res, err := http.Get(c.String("endpoint") + "/healthz")
				if err != nil {
					return fmt.Errorf("could not do server request: %w", err)
				}
				return printServerResponse(res)
			},
		},
		{
			Name:  "sign-decision",
			Usage: "Sign a judge decision and print the request payload",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "judge-key",
					Usage:    "Judge private key in base58",
					EnvVars:  []string{"BTG_JUDGE_PRIVATE_KEY"},
					Required: true,
				},
				&cli.StringFlag{Name: "message", Required: true, Usage: "Participant message"},
				&cli.StringFlag{Name: "response", Required: true, Usage: "Judge response text"},
				&cli.BoolFlag{Name: "win", Usage: "Mark the decision as a win"},
				&cli.Uint64Flag{Name: "participant-id", Usage: "Numeric participant identifier"},
				&cli.StringFlag{Name: "session-id", Usage: "Session identifier; generated when omitted"},
				&cli.StringFlag{Name: "winner-wallet", Usage: "Payout wallet for a win"},
			},
			Action: signDecision,
		},
		{
			Name:  "encode-entry",
			Usage: "Encode an entry payment instruction as base64 wire data",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "owner", Required: true, Usage: "Entry owner wallet"},
				&cli.Uint64Flag{Name: "amount", Required: true, Usage: "Payment amount in USDC smallest units"},
				&cli.Uint64Flag{Name: "nonce", Required: true, Usage: "Per-owner entry nonce"},
			},
			Action: encodeEntry,
		},
	}
}

func signDecision(c *cli.Context) error {
	key, err := solanautil.LoadPrivateKeyFromBase58(c.String("judge-key"))
	if err != nil {
		return fmt.Errorf("invalid judge key: %w", err)
	}
	sessionID := c.String("session-id")
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%s", uuid.New().String())
	}

	d := &engine.Decision{
		ParticipantMessage: c.String("message"),
		JudgeResponse:      c.String("response"),
		IsWin:              c.Bool("win"),
		ParticipantID:      c.Uint64("participant-id"),
		SessionID:          sessionID,
		Timestamp:          time.Now().Unix(),
	}
	if err := engine.SignDecision(d, key); err != nil {
		return fmt.Errorf("could not sign decision: %w", err)
	}

	out, err := json.MarshalIndent(api.DecisionRequest{
		ParticipantMessage: d.ParticipantMessage,
		JudgeResponse:      d.JudgeResponse,
		ContentHash:        hex.EncodeToString(d.ContentHash[:]),
		Signature:          base58.Encode(d.Signature[:]),
		IsWin:              d.IsWin,
		ParticipantID:      d.ParticipantID,
		SessionID:          d.SessionID,
		Timestamp:          d.Timestamp,
		WinnerWallet:       c.String("winner-wallet"),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", out)
	return nil
}

func encodeEntry(c *cli.Context) error {
	owner, err := solanautil.PublicKeyFromBase58(c.String("owner"))
	if err != nil {
		return fmt.Errorf("invalid owner wallet: %w", err)
	}
	data, err := engine.EncodeInstruction(engine.InstructionProcessEntryPayment, &engine.EntryPaymentArgs{
		Owner:  owner,
		Amount: c.Uint64("amount"),
		Nonce:  c.Uint64("nonce"),
	})
	if err != nil {
		return fmt.Errorf("could not encode instruction: %w", err)
	}
	fmt.Println(base64.StdEncoding.EncodeToString(data))
	return nil
}
