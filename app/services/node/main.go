package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/trinitychain/trinitychain/app/services/node/handlers"
	"github.com/trinitychain/trinitychain/foundation/blockchain/network"
	"github.com/trinitychain/trinitychain/foundation/blockchain/peer"
	"github.com/trinitychain/trinitychain/foundation/blockchain/signature"
	"github.com/trinitychain/trinitychain/foundation/blockchain/state"
	"github.com/trinitychain/trinitychain/foundation/blockchain/storage/leveldb"
	"github.com/trinitychain/trinitychain/foundation/blockchain/worker"
	"github.com/trinitychain/trinitychain/foundation/events"
	"github.com/trinitychain/trinitychain/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It can be set at build time
// with -ldflags.
var build = "develop"

func main() {
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:10080"`
		}
		Node struct {
			P2PHost       string   `conf:"default:0.0.0.0:9080"`
			DBPath        string   `conf:"default:zblock/blocks.db"`
			KeyPath       string   `conf:"default:zblock/miner.ecdsa"`
			KnownPeers    []string `conf:"default:"`
			Mine          bool     `conf:"default:true"`
			MiningThreads int      `conf:"default:4"`
			MaxTxPerBlock int      `conf:"default:100"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	const prefix = "TRINITY"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Blockchain Support

	// The beneficiary key credits this node's mining rewards. A missing key
	// file is created on first run so a fresh node can mine immediately.
	var beneficiary string
	if cfg.Node.Mine {
		kp, err := signature.LoadECDSA(cfg.Node.KeyPath)
		if err != nil {
			kp, err = signature.Generate()
			if err != nil {
				return fmt.Errorf("generating miner key: %w", err)
			}
			if err := os.MkdirAll("zblock", 0o755); err != nil {
				return fmt.Errorf("creating key folder: %w", err)
			}
			if err := kp.SaveECDSA(cfg.Node.KeyPath); err != nil {
				return fmt.Errorf("saving miner key: %w", err)
			}
			log.Infow("startup", "status", "generated miner key", "path", cfg.Node.KeyPath)
		}
		beneficiary = kp.Address()
		log.Infow("startup", "status", "mining enabled", "beneficiary", beneficiary)
	}

	peerSet := peer.NewSet()
	for _, host := range cfg.Node.KnownPeers {
		if host != "" {
			peerSet.Add(peer.New(host))
		}
	}

	store, err := leveldb.New(cfg.Node.DBPath)
	if err != nil {
		return err
	}

	// Engine events go to the logs and to any connected websocket client.
	evts := events.New()
	defer evts.Shutdown()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s)
		evts.Send(s)
	}

	st, err := state.New(state.Config{
		Beneficiary:   beneficiary,
		Host:          cfg.Node.P2PHost,
		Storage:       store,
		KnownPeers:    peerSet,
		MaxTxPerBlock: cfg.Node.MaxTxPerBlock,
		MiningThreads: cfg.Node.MiningThreads,
		EvHandler:     ev,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	// =========================================================================
	// Network and Worker Support

	net := network.New(network.Config{
		State:     st,
		EvHandler: ev,
	})
	if err := net.Start(); err != nil {
		return err
	}
	defer net.Shutdown()

	worker.Run(st, ev)

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug router started", "host", cfg.Web.DebugHost)

	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, handlers.DebugMux()); err != nil {
			log.Errorw("shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Start Public Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		Evts:     evts,
	})

	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	privateMux := handlers.PrivateMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
	})

	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public server gracefully: %w", err)
		}
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private server gracefully: %w", err)
		}
	}

	return nil
}
