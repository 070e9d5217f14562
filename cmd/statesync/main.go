// Command statesync reconstructs an account trie (and every storage
// trie and contract code it references) from a root hash, fetching
// missing nodes from a pool of connected peers.
//
// Usage:
//
//	statesync --root <hex hash> [flags]
//
// Flags:
//
//	--root            trie root hash to synchronize (required)
//	--cache           node store read cache size in bytes (default 16MiB)
//	--maxpeers        hint for the embedding transport's peer cap
//	--reply-timeout   how long an in-flight request waits before retry
//	--report-interval progress log cadence
//	--max-state-fetch hashes requested per peer batch
//	--verbosity       log level 0-4 (error, warn, info, debug, debug)
//	--version         print version and exit
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eth2028/eth2028/core/rawdb"
	"github.com/eth2028/eth2028/core/types"
	golog "github.com/eth2028/eth2028/log"
	"github.com/eth2028/eth2028/sync"
)

var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

type cliConfig struct {
	Root           string
	CacheBytes     int
	MaxPeers       int
	ReplyTimeout   time.Duration
	ReportInterval time.Duration
	MaxStateFetch  int
	Verbosity      int
}

func defaultCLIConfig() cliConfig {
	cfg := sync.DefaultConfig()
	return cliConfig{
		CacheBytes:     rawdb.DefaultNodeCacheBytes,
		MaxPeers:       50,
		ReplyTimeout:   cfg.ReplyTimeout,
		ReportInterval: cfg.ReportInterval,
		MaxStateFetch:  cfg.MaxStateFetch,
		Verbosity:      2,
	}
}

func run(args []string) int {
	cfg, root, exit, code := parseFlags(args)
	if exit {
		return code
	}

	logger := golog.New(verbosityToLevel(cfg.Verbosity)).Module("statesync")
	golog.SetDefault(logger)

	logger.Info("statesync starting", "version", version, "root", root.Hex(), "max_state_fetch", cfg.MaxStateFetch)

	store := rawdb.NewNodeStore(rawdb.NewMemoryKVStore(), cfg.CacheBytes)
	defer func() { _ = store.Close() }()

	syncCfg := &sync.Config{
		ReplyTimeout:   cfg.ReplyTimeout,
		ReportInterval: cfg.ReportInterval,
		MaxStateFetch:  cfg.MaxStateFetch,
		IdleBackoff:    sync.DefaultIdleBackoff,
	}

	// A real deployment wires a transport's PeerPool here and calls
	// syncer.Subscribe as peers connect; peer discovery and handshaking
	// are out of this component's scope. NoopPeerPool lets the syncer
	// start up and wait.
	syncer, err := sync.NewSyncer(root, store, sync.NoopPeerPool{}, syncCfg, logger)
	if err != nil {
		logger.Error("failed to construct syncer", "err", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := syncer.Run(ctx); err != nil {
		logger.Error("sync aborted", "err", err)
		cancel()
		return 1
	}

	logger.Info("sync complete", "committed", syncer.CommittedCount())
	cancel()
	return 0
}

func verbosityToLevel(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelError
	case v == 1:
		return slog.LevelWarn
	case v == 2:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// parseFlags parses CLI arguments into a cliConfig and the resolved
// root hash. Returns whether the caller should exit immediately and
// with what code.
func parseFlags(args []string) (cliConfig, types.Hash, bool, int) {
	cfg := defaultCLIConfig()
	var rootHex string

	fs := newCustomFlagSet("statesync")
	fs.StringVar(&rootHex, "root", "", "trie root hash to synchronize (required)")
	fs.IntVar(&cfg.CacheBytes, "cache", cfg.CacheBytes, "node store read cache size in bytes")
	fs.IntVar(&cfg.MaxPeers, "maxpeers", cfg.MaxPeers, "hint for the embedding transport's peer cap")
	fs.DurationVar(&cfg.ReplyTimeout, "reply-timeout", cfg.ReplyTimeout, "in-flight request timeout before retry")
	fs.DurationVar(&cfg.ReportInterval, "report-interval", cfg.ReportInterval, "progress log cadence")
	fs.IntVar(&cfg.MaxStateFetch, "max-state-fetch", cfg.MaxStateFetch, "hashes requested per peer batch")
	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log level 0-4 (error, warn, info, debug, debug)")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, types.Hash{}, true, 2
	}
	if *showVersion {
		fmt.Printf("statesync %s (commit %s)\n", version, commit)
		return cfg, types.Hash{}, true, 0
	}
	if rootHex == "" {
		fmt.Fprintln(os.Stderr, "Error: --root is required")
		return cfg, types.Hash{}, true, 2
	}

	return cfg, types.HexToHash(rootHex), false, 0
}
