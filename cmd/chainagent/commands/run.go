package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/vishvananda/netlink"

	"github.com/nfgraph/nfgraph/internal/artifact"
	"github.com/nfgraph/nfgraph/internal/chain"
	"github.com/nfgraph/nfgraph/internal/config"
	"github.com/nfgraph/nfgraph/internal/dataplane"
	"github.com/nfgraph/nfgraph/internal/httpapi"
	"github.com/nfgraph/nfgraph/internal/install"
	"github.com/nfgraph/nfgraph/internal/logger"
	"github.com/nfgraph/nfgraph/internal/telemetry"
	"github.com/nfgraph/nfgraph/internal/wire"
)

var (
	runServerAddr    string
	runTargetTriple  string
	runBearerToken   string
	runInterface     string
	runNumCores      int
	runShareUMEM     bool
	runDisposalMode  string
	runPollTimeoutMs int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Request the compiled chain from chaind and run the dataplane",
	Long: `run connects to chaind, requests the chain bundle compiled for
--target, installs it onto --interface, binds one AF_XDP socket per
configured core, loads every user-space NF's dynamic library, and
drives the hot-path executor until SIGINT/SIGTERM.`,
	RunE: runAgent,
}

func init() {
	runCmd.Flags().StringVar(&runServerAddr, "server", "127.0.0.1:7777", "chaind address to request the chain bundle from")
	runCmd.Flags().StringVar(&runTargetTriple, "target", "x86_64-unknown-linux-gnu", "target triple to request")
	runCmd.Flags().StringVar(&runBearerToken, "token", "", "bearer token presented with RequestChain, if chaind requires auth")
	runCmd.Flags().StringVar(&runInterface, "interface", "", "network interface to attach the root NF program to")
	runCmd.Flags().IntVar(&runNumCores, "cores", 1, "number of dataplane cores (1-8)")
	runCmd.Flags().BoolVar(&runShareUMEM, "share-umem", false, "share one UMEM pool across all cores (mandatory when cores > 1)")
	runCmd.Flags().StringVar(&runDisposalMode, "disposal-mode", "first-thread", "fq/cq disposal mode: first-thread or extra-thread")
	runCmd.Flags().IntVar(&runPollTimeoutMs, "poll-timeout-ms", 5, "receive queue poll timeout in milliseconds")
	_ = runCmd.MarkFlagRequired("interface")
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runInterface != "" {
		cfg.Dataplane.Interface = runInterface
	}
	if cmd.Flags().Changed("cores") {
		cfg.Dataplane.NumCores = runNumCores
	}
	cfg.Dataplane.ShareUMEM = cfg.Dataplane.ShareUMEM || runShareUMEM
	if cmd.Flags().Changed("disposal-mode") {
		cfg.Dataplane.DisposalMode = runDisposalMode
	}
	if cmd.Flags().Changed("poll-timeout-ms") {
		cfg.Dataplane.PollTimeoutMs = runPollTimeoutMs
	}
	if cfg.Dataplane.NumCores > 1 && !cfg.Dataplane.ShareUMEM {
		return fmt.Errorf("share-umem must be set when cores > 1 (got %d)", cfg.Dataplane.NumCores)
	}
	if cfg.Dataplane.NumCores < 1 || cfg.Dataplane.NumCores > 8 {
		return fmt.Errorf("cores must be between 1 and 8 (got %d)", cfg.Dataplane.NumCores)
	}

	if err := InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "chainagent",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = telemetryShutdown(ctx) }()

	bundle, err := requestBundle(runServerAddr, runTargetTriple, runBearerToken)
	if err != nil {
		return fmt.Errorf("request chain: %w", err)
	}
	logger.Info("received chain bundle", "nfs", len(bundle.NFs), "links", len(bundle.Links))

	links := make(map[uuid.UUID]*chain.XdpLink, len(bundle.Links))
	for i := range bundle.Links {
		xl := bundle.Links[i]
		links[xl.ID] = &xl
	}

	iface, err := netlink.LinkByName(cfg.Dataplane.Interface)
	if err != nil {
		return fmt.Errorf("lookup interface %q: %w", cfg.Dataplane.Interface, err)
	}

	dylibs, err := dataplane.NewDylibStore()
	if err != nil {
		return fmt.Errorf("create dylib store: %w", err)
	}
	defer func() { _ = dylibs.Cleanup() }()
	if err := dylibs.LoadAll(bundle.NFs); err != nil {
		return fmt.Errorf("load user-space NF dylibs: %w", err)
	}

	sockets, err := dataplane.BuildSockets(iface.Attrs().Index, cfg.Dataplane.NumCores, nil, cfg.Dataplane.ShareUMEM)
	if err != nil {
		return fmt.Errorf("build af_xdp sockets: %w", err)
	}
	xskFDs := dataplane.FDs(sockets)

	state, err := install.Install(links, bundle.NFs, cfg.Dataplane.Interface, uint32(cfg.Dataplane.NumCores), xskFDs)
	if err != nil {
		return fmt.Errorf("install chain: %w", err)
	}
	defer func() { _ = state.Close() }()

	ctrl := dataplane.NewController()
	counters, join, err := dataplane.Run(dataplane.Options{
		NumCores:      cfg.Dataplane.NumCores,
		ShareUMEM:     cfg.Dataplane.ShareUMEM,
		Mode:          dataplane.DisposalMode(cfg.Dataplane.DisposalMode),
		PollTimeoutMs: cfg.Dataplane.PollTimeoutMs,
	}, sockets, state, dylibs, ctrl)
	if err != nil {
		return fmt.Errorf("start dataplane: %w", err)
	}

	startTime := time.Now()
	statusHandler := func(w http.ResponseWriter, req *http.Request) {
		st := AgentStatus{Interface: cfg.Dataplane.Interface}
		for i, c := range counters {
			snap := c.Load()
			st.Cores = append(st.Cores, CoreStatus{
				Core:         i,
				Received:     snap.Received,
				Transmitted:  snap.Transmitted,
				Dropped:      snap.Dropped,
				Aborted:      snap.Aborted,
				Passed:       snap.Passed,
				Tailcalled:   snap.Tailcalled,
				Upcalled:     snap.Upcalled,
				HeadroomDrop: snap.HeadroomDrop,
			})
		}
		for id, xl := range links {
			st.NFs = append(st.NFs, NFStatus{ID: id.String(), Root: xl.Root, Tail: xl.State.Tail})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
	mux := httpapi.NewRouter(startTime, func() (bool, string) { return true, "" }, statusHandler)
	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server exited", "error", err)
		}
	}()

	logger.Info("chainagent running", "interface", cfg.Dataplane.Interface, "cores", cfg.Dataplane.NumCores)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	ctrl.Shutdown()
	join()

	for i, c := range counters {
		snap := c.Load()
		logger.Info("core counters", "core", i, "received", snap.Received, "transmitted", snap.Transmitted, "dropped", snap.Dropped, "aborted", snap.Aborted, "passed", snap.Passed, "headroom_drop", snap.HeadroomDrop)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	return nil
}

// requestBundle opens a TCP connection to chaind and performs one
// RequestChain round trip.
func requestBundle(addr, targetTriple, bearerToken string) (*artifact.Bundle, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, &wire.TransportError{Stage: wire.TransportConnect, Detail: err}
	}
	defer conn.Close()

	transport := wire.NewTCPTransport(conn)
	return wire.RequestChain(transport, targetTriple, bearerToken)
}
