package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfgraph/nfgraph/internal/artifact"
	"github.com/nfgraph/nfgraph/internal/auth"
	"github.com/nfgraph/nfgraph/internal/cache"
	"github.com/nfgraph/nfgraph/internal/compiler"
	"github.com/nfgraph/nfgraph/internal/config"
	"github.com/nfgraph/nfgraph/internal/httpapi"
	"github.com/nfgraph/nfgraph/internal/logger"
	"github.com/nfgraph/nfgraph/internal/registry"
	"github.com/nfgraph/nfgraph/internal/store"
	"github.com/nfgraph/nfgraph/internal/telemetry"
	"github.com/nfgraph/nfgraph/internal/wire"
)

var (
	serveStoreType string
	serveCacheDir  string
	serveBindAddr  string
	serveChainPath string
	serveFnDir     string
	serveImportPfx string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Compile the configured chain and serve it to agents",
	Long: `serve pre-compiles the configured chain for every supported target
triple, then listens for agent RequestChain messages and replies with
the matching compiled bundle, recording each request in the agent
registry.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveStoreType, "store", "", "artifact store backend (local, s3); overrides config")
	serveCmd.Flags().StringVar(&serveCacheDir, "cache-dir", "", "compile cache directory; overrides config")
	serveCmd.Flags().StringVar(&serveBindAddr, "listen", ":7777", "address the wire transport listens on")
	serveCmd.Flags().StringVar(&serveChainPath, "chain", "chain.toml", "path to the chain description to serve")
	serveCmd.Flags().StringVar(&serveFnDir, "functions-dir", "functions", "root directory NF modules live under, by name")
	serveCmd.Flags().StringVar(&serveImportPfx, "import-base", "nfgraph/build/nf", "Go import path prefix rendered userspace wrappers import NF packages under")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serveStoreType != "" {
		cfg.Store.Type = serveStoreType
	}
	if serveCacheDir != "" {
		cfg.Cache.Dir = serveCacheDir
	}

	if err := InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "chaind",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = telemetryShutdown(ctx) }()

	if cfg.Telemetry.Profiling.Enabled {
		profShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
			Enabled:        true,
			ServiceName:    "chaind",
			ServiceVersion: Version,
			Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("init profiling: %w", err)
		}
		defer func() { _ = profShutdown() }()
	}

	artifactStore, err := store.New(ctx, store.Config{
		Type:      store.Type(cfg.Store.Type),
		Dir:       cfg.Store.Dir,
		Bucket:    cfg.Store.Bucket,
		Region:    cfg.Store.Region,
		Endpoint:  cfg.Store.Endpoint,
		AccessKey: cfg.Store.AccessKey,
		SecretKey: cfg.Store.SecretKey,
	})
	if err != nil {
		return fmt.Errorf("init artifact store: %w", err)
	}

	compileCache, err := cache.Open(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("open compile cache: %w", err)
	}
	defer compileCache.Close()

	reg, err := registry.Open(&registry.Config{
		Type: registry.DatabaseType(cfg.Registry.Type),
		Path: cfg.Registry.Path,
		Postgres: registry.PostgresConfig{
			Host:     cfg.Registry.Postgres.Host,
			Port:     cfg.Registry.Postgres.Port,
			Database: cfg.Registry.Postgres.Database,
			User:     cfg.Registry.Postgres.User,
			Password: cfg.Registry.Postgres.Password,
			SSLMode:  cfg.Registry.Postgres.SSLMode,
		},
	})
	if err != nil {
		return fmt.Errorf("open agent registry: %w", err)
	}
	defer reg.Close()

	var authSvc auth.Authenticator
	switch cfg.Auth.Mode {
	case "jwt":
		authSvc, err = auth.New(auth.Config{Secret: cfg.Auth.JWTSecret})
		if err != nil {
			return fmt.Errorf("init auth: %w", err)
		}
	case "kerberos":
		authSvc, err = auth.NewKerberosValidator(auth.KerberosConfig{
			KeytabPath:       cfg.Auth.Kerberos.KeytabPath,
			Krb5ConfPath:     cfg.Auth.Kerberos.Krb5Conf,
			ServicePrincipal: cfg.Auth.Kerberos.ServicePrincipal,
		})
		if err != nil {
			return fmt.Errorf("init auth: %w", err)
		}
	case "", "none":
		// agent identity falls back to the connection's remote address
	default:
		return fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}

	var configured []compiler.Target
	for _, t := range cfg.Compiler.Targets {
		configured = append(configured, compiler.Target{Triple: t.Triple, VmlinuxPath: t.VmlinuxPath})
	}
	targets := compiler.NewTargetRegistry(configured)

	bundles := make(map[string]*artifact.Bundle, len(targets.Triples()))
	hashes := make(map[string]string, len(targets.Triples()))
	for _, triple := range targets.Triples() {
		target, _ := targets.Lookup(triple)
		logger.Info("compiling chain for target", "target", triple, "chain", serveChainPath)

		bundle, err := compiler.Compile(ctx, compiler.Options{
			ChainPath:   serveChainPath,
			FunctionDir: serveFnDir,
			OutDir:      filepath.Join(os.TempDir(), "chaind-build-"+triple),
			ImportBase:  serveImportPfx,
			Target:      target,
			Toolchain:   compiler.NewExecToolchain(),
			Cache:       compileCache,
		})
		if err != nil {
			return fmt.Errorf("compile chain for %s: %w", triple, err)
		}
		bundles[triple] = bundle

		encoded, err := artifact.Encode(bundle)
		if err != nil {
			return fmt.Errorf("encode bundle for %s: %w", triple, err)
		}
		if err := artifactStore.Put(ctx, "chain-"+triple, encoded); err != nil {
			logger.Warn("failed to persist bundle to artifact store", "target", triple, "error", err)
		}
		hashes[triple] = cache.HashInputs(map[string][]byte{"bundle": encoded}, triple)
	}

	startTime := time.Now()
	mux := httpapi.NewRouter(startTime, func() (bool, string) { return true, "" }, nil)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server exited", "error", err)
		}
	}()

	ln, err := net.Listen("tcp", serveBindAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", serveBindAddr, err)
	}
	logger.Info("chaind listening", "addr", serveBindAddr, "targets", targets.Triples())

	go acceptLoop(ctx, ln, bundles, hashes, reg, authSvc)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	cancel()
	_ = ln.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	return nil
}

// acceptLoop serves RequestChain messages until ctx is
// canceled or the listener is closed by shutdown.
func acceptLoop(ctx context.Context, ln net.Listener, bundles map[string]*artifact.Bundle, hashes map[string]string, reg *registry.Registry, authSvc auth.Authenticator) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warn("accept failed", "error", err)
				continue
			}
		}
		go handleConn(ctx, conn, bundles, hashes, reg, authSvc)
	}
}

func handleConn(ctx context.Context, conn net.Conn, bundles map[string]*artifact.Bundle, hashes map[string]string, reg *registry.Registry, authSvc auth.Authenticator) {
	defer conn.Close()

	transport := wire.NewTCPTransport(conn)
	frame, err := transport.Recv()
	if err != nil {
		logger.Warn("recv failed", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	req, err := wire.DecodeRequest(frame)
	if err != nil {
		logger.Warn("decode request failed", "remote", conn.RemoteAddr(), "error", err)
		return
	}

	agentID := conn.RemoteAddr().String()
	if authSvc != nil {
		id, err := authSvc.Authenticate(req.BearerToken)
		if err != nil {
			_ = sendError(transport, "unauthorized: "+err.Error())
			return
		}
		agentID = id
	}

	now := time.Now()
	if err := reg.RecordRequest(ctx, agentID, req.TargetTriple, now); err != nil {
		logger.Warn("record request failed", "agent", agentID, "error", err)
	}

	bundle, ok := bundles[req.TargetTriple]
	if !ok {
		_ = sendError(transport, fmt.Sprintf("unsupported target triple %q", req.TargetTriple))
		return
	}

	resp, err := wire.EncodeResponse(wire.ServerToClient{Chain: bundle})
	if err != nil {
		logger.Error("encode response failed", "agent", agentID, "error", err)
		return
	}
	if err := transport.Send(resp); err != nil {
		logger.Warn("send response failed", "agent", agentID, "error", err)
		return
	}

	if err := reg.RecordInstall(ctx, agentID, hashes[req.TargetTriple], time.Now()); err != nil {
		logger.Warn("record install failed", "agent", agentID, "error", err)
	}
	logger.Info("served chain", "agent", agentID, "target", req.TargetTriple)
}

func sendError(t wire.Transport, reason string) error {
	resp, err := wire.EncodeResponse(wire.ServerToClient{ErrorMessage: reason})
	if err != nil {
		return err
	}
	return t.Send(resp)
}
