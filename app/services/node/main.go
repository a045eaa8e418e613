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
	"github.com/ardanlabs/minernode/app/services/node/handlers"
	"github.com/ardanlabs/minernode/business/sys/metrics"
	"github.com/ardanlabs/minernode/foundation/blockchain/genesis"
	"github.com/ardanlabs/minernode/foundation/events"
	"github.com/ardanlabs/minernode/foundation/logger"
	"github.com/ardanlabs/minernode/foundation/node"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
		}
		Node struct {
			Index          int           `conf:"default:0"`
			ListenHost     string        `conf:"default:0.0.0.0"`
			ClientPort     int           `conf:"default:9000"`
			PeerPort       int           `conf:"default:9100"`
			Peers          []string      `conf:"default:localhost:9100;localhost:9101"`
			Difficulty     uint          `conf:"default:4"`
			Mining         bool          `conf:"default:true"`
			MaxHandlers    int           `conf:"default:32"`
			DialTimeout    time.Duration `conf:"default:2s"`
			IOTimeout      time.Duration `conf:"default:10s"`
			SyncInterval   time.Duration `conf:"default:1m"`
			StartupTimeout time.Duration `conf:"default:30s"`
			GenesisFile    string
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "proof of work miner node",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
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

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Blockchain Support

	// Every node on the network must agree on the genesis block. When no file
	// is provided the built in genesis is used.
	gen := genesis.Default()
	if cfg.Node.GenesisFile != "" {
		gen, err = genesis.Load(cfg.Node.GenesisFile)
		if err != nil {
			return fmt.Errorf("unable to load genesis file: %w", err)
		}
	}

	// The blockchain packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	// The node owns the ledger, the client and peer listeners, and the worker
	// that mines and gossips.
	n, err := node.New(node.Config{
		NodeIndex:      cfg.Node.Index,
		ListenHost:     cfg.Node.ListenHost,
		ClientPort:     cfg.Node.ClientPort,
		PeerPort:       cfg.Node.PeerPort,
		PeerAddresses:  cfg.Node.Peers,
		Difficulty:     cfg.Node.Difficulty,
		Mining:         cfg.Node.Mining,
		MaxHandlers:    cfg.Node.MaxHandlers,
		DialTimeout:    cfg.Node.DialTimeout,
		IOTimeout:      cfg.Node.IOTimeout,
		SyncInterval:   cfg.Node.SyncInterval,
		StartupTimeout: cfg.Node.StartupTimeout,
		Genesis:        &gen,
		EvHandler:      ev,
	})
	if err != nil {
		return fmt.Errorf("constructing node: %w", err)
	}

	if err := n.Start(); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	log.Infow("startup", "status", "node started", "host", n.Host(), "client", n.ClientAddr(), "peer", n.PeerAddr())

	metrics.PublishNode(func() any {
		return n.State().RetrieveStatus()
	})

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, n)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		Node:     n,
		Evts:     evts,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()
		n.Stop(ctx)

		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}

		// Give the connection handlers and the mining job a deadline to finish.
		ctx, cancelNode := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelNode()

		log.Infow("shutdown", "status", "shutdown node started")
		if err := n.Stop(ctx); err != nil {
			return fmt.Errorf("could not stop node gracefully: %w", err)
		}
	}

	return nil
}
