package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/spyglass-proxy/spyglass/internal/config"
	"github.com/spyglass-proxy/spyglass/internal/dialer"
	"github.com/spyglass-proxy/spyglass/internal/metrics"
	"github.com/spyglass-proxy/spyglass/internal/proxy"
	"github.com/spyglass-proxy/spyglass/internal/reqlog"
	"github.com/spyglass-proxy/spyglass/internal/upstream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath     = pflag.StringP("config", "c", "", "Path to TOML config file. Empty searches the default locations.")
		listen         = pflag.String("listen", "", "Proxy listen address (e.g. 127.0.0.1:8888). Overrides config.")
		logFile        = pflag.String("log-file", "", "Request log file path. Overrides config.")
		debugListen    = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /metrics and /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")
		dialTimeout    = pflag.Duration("dial-timeout", 0, "Timeout for outbound DNS lookup and TCP connect. Overrides config.")
		requestTimeout = pflag.Duration("request-timeout", 0, "Timeout for a whole outbound HTTP exchange. Overrides config.")
		receiveTimeout = pflag.Duration("receive-timeout", 0, "Timeout for receiving a full client request. Overrides config.")
		acceptRate     = pflag.Float64("accept-rate", 0, "Maximum accepted connections per second (0 = unlimited). Overrides config.")
		tcpKeepAlive   = pflag.String("tcp-keepalive", "", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt. Overrides config.")
		logLevel       = pflag.String("log-level", "", "Diagnostic log level: debug|info|warn|error. Overrides config.")
		logFormat      = pflag.String("log-format", "", "Diagnostic log format: json|text. Overrides config.")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("invalid --config: %w", err)
	}
	if err := applyOverrides(&cfg, overrides{
		listen:         *listen,
		logFile:        *logFile,
		dialTimeout:    *dialTimeout,
		requestTimeout: *requestTimeout,
		receiveTimeout: *receiveTimeout,
		acceptRate:     *acceptRate,
		tcpKeepAlive:   *tcpKeepAlive,
		logLevel:       *logLevel,
		logFormat:      *logFormat,
	}); err != nil {
		return err
	}

	ka, err := config.ParseTCPKeepAlive(cfg.Server.TCPKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid tcp keepalive %q: %w", cfg.Server.TCPKeepAlive, err)
	}

	logger := newLogger(cfg.Log)

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	if *debugListen != "" {
		http.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		debugLn, err := proxy.ListenTCP(ctx, "tcp", *debugListen, ka)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		logger.Info("debug listening", "addr", *debugListen)
	}

	d := dialer.NewDirectDialer(dialer.Config{
		DialTimeout: cfg.Upstream.DialTimeout(),
		KeepAlive:   ka,
	})

	client := upstream.NewClient(upstream.Config{
		Timeout: cfg.Upstream.Timeout(),
		Dialer:  d,
	}, logger)

	rlog := reqlog.New(cfg.Log.File, logger)

	tunnelDialer := dialer.NewDirectDialer(dialer.Config{
		DialTimeout: cfg.Tunnel.ConnectTimeout(),
		KeepAlive:   ka,
	})

	pcfg := proxy.Config{
		ReceiveTimeout: cfg.Server.ReceiveTimeout(),
		AcceptRate:     cfg.Server.AcceptRate,
		KeepAlive:      ka,
		Dialer:         tunnelDialer,
	}

	ln, err := proxy.ListenTCP(ctx, "tcp", cfg.Server.Addr(), ka)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := proxy.NewServer(ctx, pcfg, client, rlog, m, logger)
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil {
			return fmt.Errorf("proxy serve: %w", err)
		}
		return nil
	})
	logger.Info("proxy listening", "addr", cfg.Server.Addr(), "request_log", cfg.Log.File)

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

type overrides struct {
	listen         string
	logFile        string
	dialTimeout    time.Duration
	requestTimeout time.Duration
	receiveTimeout time.Duration
	acceptRate     float64
	tcpKeepAlive   string
	logLevel       string
	logFormat      string
}

// applyOverrides copies explicitly set CLI flags over the loaded config.
func applyOverrides(cfg *config.Config, o overrides) error {
	if o.listen != "" {
		host, portStr, err := net.SplitHostPort(o.listen)
		if err != nil {
			return fmt.Errorf("invalid --listen: %w", err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid --listen port: %w", err)
		}
		cfg.Server.Host = host
		cfg.Server.Port = port
	}
	if o.logFile != "" {
		cfg.Log.File = o.logFile
	}
	if o.dialTimeout > 0 {
		cfg.Upstream.DialTimeoutSeconds = int(o.dialTimeout / time.Second)
	}
	if o.requestTimeout > 0 {
		cfg.Upstream.TimeoutSeconds = int(o.requestTimeout / time.Second)
	}
	if o.receiveTimeout > 0 {
		cfg.Server.ReceiveTimeoutSeconds = int(o.receiveTimeout / time.Second)
	}
	if pflag.CommandLine.Changed("accept-rate") {
		cfg.Server.AcceptRate = o.acceptRate
	}
	if o.tcpKeepAlive != "" {
		cfg.Server.TCPKeepAlive = o.tcpKeepAlive
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}
