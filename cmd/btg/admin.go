package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/brojonat/beat-the-guardian/http/api"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

var (
	EnvServerEndpoint  = "SERVER_ENDPOINT"
	EnvServerSecretKey = "BTG_SECRET_KEY"
	EnvAuthToken       = "AUTH_TOKEN"
)

func endpointFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "endpoint",
		Aliases: []string{"e"},
		Value:   "http://localhost:8080",
		Usage:   "Server endpoint",
		EnvVars: []string{EnvServerEndpoint},
	}
}

func tokenFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "token",
		Usage:   "Bearer token for privileged endpoints",
		EnvVars: []string{EnvAuthToken},
	}
}

func adminCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "get-token",
			Usage: "Obtain a sudo bearer token from the server",
			Flags: []cli.Flag{
				endpointFlag(),
				&cli.StringFlag{
					Name:  "email",
					Value: "admin@localhost",
					Usage: "Email to embed in the token",
				},
				&cli.StringFlag{
					Name:     "secret-key",
					Usage:    "Server secret key",
					EnvVars:  []string{EnvServerSecretKey},
					Required: true,
				},
			},
			Action: getAuthToken,
		},
		{
			Name:  "generate-wallet",
			Usage: "Generate a new Solana keypair and print it",
			Action: func(c *cli.Context) error {
				w := solanago.NewWallet()
				out, err := json.Marshal(map[string]string{
					"public_key":  w.PublicKey().String(),
					"private_key": w.PrivateKey.String(),
				})
				if err != nil {
					return err
				}
				fmt.Printf("%s\n", out)
				return nil
			},
		},
		{
			Name:  "get-ledger",
			Usage: "Fetch the current ledger state",
			Flags: []cli.Flag{endpointFlag()},
			Action: func(c *cli.Context) error {
				res, err := http.Get(c.String("endpoint") + "/ledger")
				if err != nil {
					return fmt.Errorf("could not do server request: %w", err)
				}
				return printServerResponse(res)
			},
		},
		{
			Name:  "initialize-ledger",
			Usage: "Initialize the ledger with its authorities and floor",
			Flags: []cli.Flag{
				endpointFlag(),
				tokenFlag(),
				&cli.StringFlag{Name: "authority", Required: true, Usage: "Ledger authority wallet"},
				&cli.StringFlag{Name: "judge-authority", Required: true, Usage: "Judge signing wallet"},
				&cli.Uint64Flag{Name: "floor-amount", Required: true, Usage: "Floor amount in USDC smallest units"},
				&cli.Uint64Flag{Name: "entry-fee", Usage: "Minimum entry fee in USDC smallest units"},
			},
			Action: initializeLedger,
		},
		{
			Name:  "emergency-recovery",
			Usage: "Recover funds from the pool as the ledger authority",
			Flags: []cli.Flag{
				endpointFlag(),
				tokenFlag(),
				&cli.StringFlag{Name: "caller", Required: true, Usage: "Ledger authority wallet"},
				&cli.Uint64Flag{Name: "amount", Required: true, Usage: "Amount to recover in USDC smallest units"},
			},
			Action: emergencyRecovery,
		},
		{
			Name:  "escape-plan",
			Usage: "Trigger the idle-timeout escape plan",
			Flags: []cli.Flag{endpointFlag()},
			Action: func(c *cli.Context) error {
				res, err := http.Post(c.String("endpoint")+"/escape-plan", "application/json", nil)
				if err != nil {
					return fmt.Errorf("could not do server request: %w", err)
				}
				return printServerResponse(res)
			},
		},
	}
}

func getAuthToken(c *cli.Context) error {
	form := url.Values{
		"username": {c.String("email")},
		"password": {c.String("secret-key")},
	}
	res, err := http.Post(
		c.String("endpoint")+"/token",
		"application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return fmt.Errorf("could not do server request: %w", err)
	}
	return printServerResponse(res)
}

func postAuthedJSON(c *cli.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("could not serialize request: %w", err)
	}
	r, err := http.NewRequest(http.MethodPost, c.String("endpoint")+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/json")
	if token := c.String("token"); token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(r)
	if err != nil {
		return fmt.Errorf("could not do server request: %w", err)
	}
	return printServerResponse(res)
}

func initializeLedger(c *cli.Context) error {
	req := api.CreateLedgerRequest{
		Authority:      c.String("authority"),
		JudgeAuthority: c.String("judge-authority"),
		FloorAmount:    c.Uint64("floor-amount"),
	}
	if c.IsSet("entry-fee") {
		fee := c.Uint64("entry-fee")
		req.EntryFee = &fee
	}
	return postAuthedJSON(c, "/ledger", req)
}

func emergencyRecovery(c *cli.Context) error {
	return postAuthedJSON(c, "/recovery", api.RecoveryRequest{
		Caller: c.String("caller"),
		Amount: c.Uint64("amount"),
	})
}
