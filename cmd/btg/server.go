package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/brojonat/beat-the-guardian/engine"
	btghttp "github.com/brojonat/beat-the-guardian/http"
	solanautil "github.com/brojonat/beat-the-guardian/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func serverCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "http-server",
			Usage: "Run the HTTP server",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "port",
					Aliases: []string{"p"},
					Usage:   "Port to listen on",
					EnvVars: []string{"SERVER_PORT"},
					Value:   "8080",
				},
				&cli.StringFlag{
					Name:    "ledger-seed",
					Usage:   "Seed naming the ledger this server settles",
					EnvVars: []string{btghttp.EnvLedgerSeed},
					Value:   "beat-the-guardian",
				},
				&cli.StringFlag{
					Name:     "pool-wallet",
					Usage:    "Prize pool wallet address",
					EnvVars:  []string{btghttp.EnvSolanaPoolWallet},
					Required: true,
				},
				&cli.StringFlag{
					Name:     "side-pocket-wallet",
					Usage:    "Side pocket wallet address",
					EnvVars:  []string{btghttp.EnvSolanaSidePocket},
					Required: true,
				},
				&cli.StringFlag{
					Name:    "database-url",
					Usage:   "Postgres connection string; omit to run with in-memory state",
					EnvVars: []string{btghttp.EnvDatabaseURL},
				},
				&cli.StringFlag{
					Name:    "rpc-endpoint",
					Usage:   "Solana RPC endpoint",
					EnvVars: []string{btghttp.EnvSolanaRPCEndpoint},
				},
				&cli.StringFlag{
					Name:    "usdc-mint",
					Usage:   "USDC mint address",
					EnvVars: []string{btghttp.EnvSolanaUSDCMintAddress},
				},
				&cli.StringSliceFlag{
					Name:    "custody-key",
					Usage:   "Base58 private key for a wallet this server moves funds from; repeatable",
					EnvVars: []string{"SOLANA_CUSTODY_KEYS"},
				},
			},
			Action: runServer,
		},
	}
}

func runServer(c *cli.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	logger := getDefaultLogger(slog.LevelInfo)

	poolWallet, err := solanautil.PublicKeyFromBase58(c.String("pool-wallet"))
	if err != nil {
		return fmt.Errorf("invalid pool wallet: %w", err)
	}
	sidePocket, err := solanautil.PublicKeyFromBase58(c.String("side-pocket-wallet"))
	if err != nil {
		return fmt.Errorf("invalid side pocket wallet: %w", err)
	}

	var store engine.Store
	if connStr := c.String("database-url"); connStr != "" {
		pg, err := engine.NewPGStore(ctx, connStr)
		if err != nil {
			return fmt.Errorf("could not connect to postgres: %w", err)
		}
		defer pg.Close()
		store = pg
	} else {
		logger.Warn("no database configured, ledger state is in-memory only")
		store = engine.NewMemStore()
	}

	funds, err := buildFundsMover(ctx, c, logger)
	if err != nil {
		return err
	}

	metrics := btghttp.NewMetrics()
	eng := engine.New(
		engine.Config{
			LedgerSeed:       c.String("ledger-seed"),
			PoolWallet:       poolWallet,
			SidePocketWallet: sidePocket,
		},
		store,
		funds,
		engine.WithLogger(logger),
		engine.WithEventSink(engine.MultiSink{engine.LogSink{Logger: logger}, metrics}),
	)

	return btghttp.RunServer(ctx, logger, eng, metrics, c.String("port"))
}

// buildFundsMover wires the on-chain transfer layer. Without custody keys the
// server runs in dry-run mode and only logs the transfers it would make.
func buildFundsMover(ctx context.Context, c *cli.Context, logger *slog.Logger) (engine.FundsMover, error) {
	keyStrs := c.StringSlice("custody-key")
	if len(keyStrs) == 0 {
		logger.Warn("no custody keys configured, transfers run in dry-run mode")
		return dryRunFundsMover{logger: logger}, nil
	}

	mint, err := solanautil.PublicKeyFromBase58(c.String("usdc-mint"))
	if err != nil {
		return nil, fmt.Errorf("invalid USDC mint: %w", err)
	}
	keys := make([]solanago.PrivateKey, 0, len(keyStrs))
	for _, s := range keyStrs {
		for _, part := range strings.Split(s, ",") {
			key, err := solanautil.LoadPrivateKeyFromBase58(strings.TrimSpace(part))
			if err != nil {
				return nil, fmt.Errorf("invalid custody key: %w", err)
			}
			keys = append(keys, key)
		}
	}

	client := solanautil.NewRPCClient(c.String("rpc-endpoint"))
	if err := solanautil.CheckRPCHealth(ctx, client); err != nil {
		return nil, fmt.Errorf("solana RPC health check failed: %w", err)
	}
	return solanautil.NewMover(client, mint, logger, keys...), nil
}

type dryRunFundsMover struct {
	logger *slog.Logger
}

func (m dryRunFundsMover) Transfer(ctx context.Context, from, to solanago.PublicKey, amount uint64) error {
	m.logger.InfoContext(ctx, "dry-run transfer",
		"from", from.String(), "to", to.String(), "amount", amount)
	return nil
}
