// Package main runs the chain-state daemon: it assembles the header graph,
// the UTXO store and the replay worker over embedded storage and serves
// Prometheus metrics.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/syndtr/goleveldb/leveldb"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate7000/internal/chain"
	"github.com/goodnatureofminers/chainstate7000/internal/metrics"
	"github.com/goodnatureofminers/chainstate7000/internal/model"
	"github.com/goodnatureofminers/chainstate7000/internal/rules"
	"github.com/goodnatureofminers/chainstate7000/internal/storage"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/engine"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/replay"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/service"
	"github.com/goodnatureofminers/chainstate7000/internal/utxo/store"
	"github.com/goodnatureofminers/chainstate7000/internal/wallet"
)

var config struct {
	DataDir      string   `long:"data-dir" env:"CHAINSTATE_DATA_DIR" description:"directory for embedded databases" default:"./data"`
	MetricsAddr  string   `long:"metrics-addr" env:"CHAINSTATE_METRICS_ADDR" description:"metrics listen address" default:":9102"`
	Network      string   `long:"network" env:"CHAINSTATE_NETWORK" description:"network (mainnet, testnet, regtest)" default:"mainnet"`
	PruneMode    string   `long:"prune-mode" env:"CHAINSTATE_PRUNE_MODE" description:"prune mode (preserve_unspent, full)" default:"preserve_unspent"`
	WatchScripts []string `long:"watch-script" env:"CHAINSTATE_WATCH_SCRIPTS" env-delim:"," description:"hex script pubkeys the wallet monitor watches"`
	Validators   int      `long:"validators" env:"CHAINSTATE_VALIDATORS" description:"parallel input validators" default:"8"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger, err := zap.NewProduction()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()
	if _, err := flags.ParseArgs(&config, os.Args); err != nil {
		logger.Fatal("Failed to parse arguments", zap.Error(err))
	}

	params, err := networkParams(config.Network)
	if err != nil {
		logger.Fatal("Unknown network", zap.Error(err))
	}
	watched, err := decodeScripts(config.WatchScripts)
	if err != nil {
		logger.Fatal("Bad watch script", zap.Error(err))
	}

	headerDB, err := leveldb.OpenFile(filepath.Join(config.DataDir, "headers"), nil)
	if err != nil {
		logger.Fatal("Open header database", zap.Error(err))
	}
	defer headerDB.Close()
	blockTxDB, err := leveldb.OpenFile(filepath.Join(config.DataDir, "blocktxs"), nil)
	if err != nil {
		logger.Fatal("Open block tx database", zap.Error(err))
	}
	defer blockTxDB.Close()
	utxoDB, err := leveldb.OpenFile(filepath.Join(config.DataDir, "utxo"), nil)
	if err != nil {
		logger.Fatal("Open utxo database", zap.Error(err))
	}

	blockStorage := storage.NewLevelBlockStorage(headerDB)
	blockTxes := storage.NewLevelBlockTxesStorage(blockTxDB)
	utxoStore := store.NewLevelStore(utxoDB)
	defer utxoStore.Close()

	graph, err := chain.NewHeaderGraph(blockStorage, logger.Named("headerGraph"))
	if err != nil {
		logger.Fatal("Load header graph", zap.Error(err))
	}
	if _, err := graph.AddGenesis(params.GenesisBlock.Header); err != nil {
		logger.Fatal("Add genesis", zap.Error(err))
	}

	tipSignal := make(chan struct{}, 1)
	graph.OnChainedHeaderAdded(func(*model.ChainedHeader) {
		select {
		case tipSignal <- struct{}{}:
		default:
		}
	})
	graph.OnInvalidated(func(chainhash.Hash) {
		select {
		case tipSignal <- struct{}{}:
		default:
		}
	})

	monitor, err := wallet.NewMonitor(logger.Named("wallet"), watched, func(_ context.Context, entries []wallet.Entry) error {
		for _, e := range entries {
			logger.Info("wallet entry",
				zap.Stringer("tx", &e.TxHash),
				zap.Int32("height", e.Height),
				zap.Int64("value", e.Value),
				zap.Bool("credit", e.Credit))
		}
		return nil
	})
	if err != nil {
		logger.Fatal("Build wallet monitor", zap.Error(err))
	}
	monitor.Start(ctx)
	defer monitor.Stop()

	btcRules := rules.NewBTCRules(params, config.Validators)
	sinks := []replay.Sink{
		rules.NewValidatorSink(btcRules, logger.Named("validator")),
		monitor,
	}

	eng := engine.New(logger.Named("utxoEngine"), metrics.NewUtxoEngine(config.Network))
	replayer := replay.NewReplayer(blockTxes, utxoStore, logger.Named("replayer"))
	pipeline := replay.NewPipeline(replayer, eng, sinks, 256, logger.Named("pipeline"))

	pruner, err := service.NewPruningService(
		service.PruneMode(config.PruneMode),
		blockTxes,
		metrics.NewPruner(config.Network, config.PruneMode),
		logger,
	)
	if err != nil {
		logger.Fatal("Build pruning service", zap.Error(err))
	}

	worker, err := service.NewChainWorker(
		graph,
		pipeline,
		btcRules,
		pruner,
		utxoStore,
		metrics.NewChainWorker(config.Network),
		logger,
		tipSignal,
	)
	if err != nil {
		logger.Fatal("Build chain worker", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down the metrics server")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown metrics server", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("Starting metrics server", zap.String("addr", config.MetricsAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to listen and serve", zap.Error(err))
		}
	}()

	logger.Info("Starting chain worker", zap.String("network", config.Network))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Chain worker stopped", zap.Error(err))
	}
}

func networkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, errors.New("unsupported network: " + network)
	}
}

func decodeScripts(scripts []string) ([][]byte, error) {
	decoded := make([][]byte, 0, len(scripts))
	for _, s := range scripts {
		raw, err := hex.DecodeString(s)
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, raw)
	}
	return decoded, nil
}
