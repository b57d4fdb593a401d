package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aschplatform/aschex/params"
	"github.com/aschplatform/aschex/pkg/api"
	"github.com/aschplatform/aschex/pkg/app/core/ledger"
	"github.com/aschplatform/aschex/pkg/app/exchange"
	"github.com/aschplatform/aschex/pkg/host"
	"github.com/aschplatform/aschex/pkg/storage"
	"github.com/aschplatform/aschex/pkg/util"
)

// devChain is the dev node's block source: height advances on a fixed tick
// from process start, timestamps come from the wall clock. Good enough to
// stamp TxContexts without a real chain behind the contract.
type devChain struct {
	clock util.Clock
	start time.Time
	tick  time.Duration
}

func newDevChain(clock util.Clock, tick time.Duration) *devChain {
	return &devChain{clock: clock, start: clock.Now(), tick: tick}
}

func (c *devChain) Block() (int64, int64) {
	now := c.clock.Now()
	height := int64(now.Sub(c.start)/c.tick) + 1
	return height, now.Unix()
}

// loggingRail stands in for the chain-native transfer rail on the dev node:
// it records outbound transfers and always succeeds.
type loggingRail struct {
	log *zap.SugaredLogger
}

func (r loggingRail) TransferOut(ctx host.TxContext, to string, amount uint64, asset string) error {
	r.log.Infow("rail_transfer_out", "to", to, "asset", asset, "amount", amount, "tx", ctx.TxID)
	return nil
}

func main() {
	cfg := params.LoadFromEnv("") // "" means load .env from current directory

	logger, err := util.NewLogger()
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// ---- Storage ----
	var kv storage.KV
	if cfg.Storage.DataDir == "" {
		kv = storage.NewMemStore()
		sugar.Info("storage_inmemory")
	} else {
		store, err := storage.NewPebbleStore(cfg.Storage.DataDir)
		if err != nil {
			sugar.Fatalw("storage_open_failed", "dir", cfg.Storage.DataDir, "err", err)
		}
		kv = store
		sugar.Infow("storage_opened", "dir", cfg.Storage.DataDir)
	}
	defer kv.Close()

	// ---- Contract and host harness ----
	state := ledger.NewStore(kv)
	contract := exchange.New(state, loggingRail{log: sugar}, sugar)
	disp := host.NewDispatcher(contract, sugar)

	sugar.Infow("contract_loaded", "name", contract.Name(), "methods", len(contract.Methods()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	chain := newDevChain(util.RealClock{}, cfg.Node.BlockTick)
	apiServer := api.NewServer(disp, chain)

	go func() {
		sugar.Infow("api_server_starting", "addr", cfg.API.ListenAddr)
		if err := apiServer.Start(cfg.API.ListenAddr, cfg.API.ReadTimeout); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_started", "block_tick_ms", cfg.Node.BlockTick.Milliseconds())

	<-ctx.Done()
	sugar.Info("node_stopping")
}
