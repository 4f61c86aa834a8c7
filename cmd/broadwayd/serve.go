package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-broadway/broadway/internal/config"
	"github.com/go-broadway/broadway/pkg/capture"
	"github.com/go-broadway/broadway/pkg/display"
	"github.com/go-broadway/broadway/pkg/middleware"
	"github.com/go-broadway/broadway/pkg/protocol"
)

type serveOptions struct {
	configPath    string
	listen        string
	passwordFile  string
	logLevel      string
	logFormat     string
	demo          bool
	trace         bool
	captureDir    string
	captureBucket string
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the display server",
		Long: `Start the display server and listen for browser connections.

Configuration is read from the file named by --config, falling back to
broadwayd.yaml in the user config directory; flags override the file.
Browsers connect at / and the WebSocket endpoints /socket and
/socket-bin. When metrics are enabled /metrics serves Prometheus text.
Configuring a capture backend adds POST /debug/capture and
GET /debug/capture/{id}.

Without --demo the display starts empty; applications embed the
display package to put windows on it.

Examples:
  broadwayd serve
  broadwayd serve --listen :9090 --demo
  broadwayd serve --config /etc/broadwayd.yaml --password-file /etc/broadway.passwd`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default broadwayd.yaml in the user config dir)")
	cmd.Flags().StringVarP(&opts.listen, "listen", "l", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&opts.passwordFile, "password-file", "", "bcrypt password file, or \"none\" to disable auth")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")
	cmd.Flags().BoolVar(&opts.demo, "demo", false, "Serve the built-in demo scene")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "Emit an OpenTelemetry span per input event")
	cmd.Flags().StringVar(&opts.captureDir, "capture-dir", "", "Store display captures in this directory")
	cmd.Flags().StringVar(&opts.captureBucket, "capture-s3-bucket", "", "Store display captures in this S3 bucket")

	return cmd
}

func runServe(opts serveOptions) error {
	// Load config
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
	} else if path, derr := config.DefaultConfigFile(); derr == nil {
		cfg, err = config.LoadOrDefault(path)
	} else {
		cfg = config.New()
	}
	if err != nil {
		return err
	}

	// Apply command-line overrides
	if opts.listen != "" {
		cfg.Listen = opts.listen
	}
	if opts.passwordFile != "" {
		cfg.PasswordFile = opts.passwordFile
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if opts.captureDir != "" {
		cfg.Capture.Dir = opts.captureDir
	}
	if opts.captureBucket != "" {
		cfg.Capture.S3.Bucket = opts.captureBucket
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Authentication
	passwordPath, err := cfg.ResolvePasswordFile()
	if err != nil {
		return err
	}
	var auth *display.Authenticator
	if passwordPath != "" {
		hash, err := display.LoadPasswordFile(passwordPath)
		if err != nil {
			return fmt.Errorf("load password file: %w", err)
		}
		auth = display.NewAuthenticator(hash)
	}
	if auth != nil && auth.Enabled() {
		logger.Info("authentication enabled", "path", passwordPath)
	} else {
		logger.Info("authentication disabled")
	}

	// Event chain: demo first, then tracing, then metrics outermost so
	// the histogram covers the whole handler.
	reg := prometheus.NewRegistry()
	onEvent := func(*protocol.InputMsg) {}
	var scene *demoScene
	if opts.demo {
		scene = newDemoScene(logger)
		onEvent = scene.HandleEvent
	}
	if opts.trace {
		onEvent = middleware.TraceEvents(onEvent)
	}
	if cfg.Metrics.Enabled {
		onEvent = middleware.InstrumentEvents(onEvent,
			middleware.WithNamespace(cfg.Metrics.Namespace),
			middleware.WithRegistry(reg))
	}

	srv := display.New(cfg.ServerConfig(logger).WithAuth(auth).WithOnEvent(onEvent))
	defer srv.Close()

	if cfg.Metrics.Enabled {
		reg.MustRegister(middleware.NewDisplayCollector(srv,
			middleware.WithNamespace(cfg.Metrics.Namespace)))
	}

	// Capture backend
	var store capture.Store
	switch {
	case cfg.Capture.Dir != "":
		store, err = capture.NewDiskStore(cfg.Capture.Dir, cfg.Capture.MaxBytes)
		if err != nil {
			return err
		}
		logger.Info("captures enabled", "backend", "disk", "dir", cfg.Capture.Dir)
	case cfg.Capture.S3.Bucket != "":
		var awsOpts []func(*awsconfig.LoadOptions) error
		if cfg.Capture.S3.Region != "" {
			awsOpts = append(awsOpts, awsconfig.WithRegion(cfg.Capture.S3.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
		if err != nil {
			return fmt.Errorf("aws config: %w", err)
		}
		store = capture.NewS3Store(s3.NewFromConfig(awsCfg),
			cfg.Capture.S3.Bucket, cfg.Capture.S3.Prefix, cfg.Capture.MaxBytes)
		logger.Info("captures enabled", "backend", "s3",
			"bucket", cfg.Capture.S3.Bucket, "prefix", cfg.Capture.S3.Prefix)
	}

	// Router
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if cfg.Metrics.Enabled {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	if store != nil {
		r.Post("/debug/capture", takeCaptureHandler(srv, store, logger))
		r.Get("/debug/capture/{id}", serveCaptureHandler(store))
	}
	r.Handle("/*", srv)

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: r,
	}

	// Password file hot reload. The watch stays active even while auth
	// is disabled so that creating the file later locks the display.
	if passwordPath != "" {
		stopWatch, werr := config.WatchFile(passwordPath, logger, func() {
			hash, herr := display.LoadPasswordFile(passwordPath)
			if herr != nil {
				logger.Warn("password file reload failed", "path", passwordPath, "error", herr)
				return
			}
			auth.SetHash(hash)
			if hash == "" {
				logger.Info("authentication disabled", "path", passwordPath)
			} else {
				logger.Info("password hash reloaded", "path", passwordPath)
			}
		})
		if werr != nil {
			logger.Warn("password file watch unavailable", "path", passwordPath, "error", werr)
		} else {
			defer stopWatch()
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Listen, "version", version)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if store != nil && cfg.Capture.MaxAge.Std() > 0 {
		g.Go(func() error {
			cadence := cfg.Capture.MaxAge.Std() / 4
			if cadence < time.Minute {
				cadence = time.Minute
			}
			if cadence > time.Hour {
				cadence = time.Hour
			}
			ticker := time.NewTicker(cadence)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := store.Cleanup(ctx, cfg.Capture.MaxAge.Std()); err != nil {
						logger.Warn("capture cleanup failed", "error", err)
					}
				}
			}
		})
	}

	if scene != nil {
		g.Go(func() error {
			scene.Run(ctx, srv)
			return nil
		})
	}

	return g.Wait()
}

type captureResponse struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Windows int    `json:"windows"`
	Bytes   int    `json:"bytes"`
}

// takeCaptureHandler composes the visible display into a PNG and saves it.
func takeCaptureHandler(srv *display.Server, store capture.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := capture.Take(srv)
		if err != nil {
			if errors.Is(err, capture.ErrEmptyDisplay) {
				middleware.RecordCaptureError("empty")
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			middleware.RecordCaptureError("encode")
			logger.Error("capture failed", "error", err)
			http.Error(w, "capture failed", http.StatusInternalServerError)
			return
		}
		if _, err := store.Save(r.Context(), snap); err != nil {
			if errors.Is(err, capture.ErrTooLarge) {
				middleware.RecordCaptureError("too_large")
				http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
				return
			}
			middleware.RecordCaptureError("store")
			logger.Error("capture save failed", "error", err)
			http.Error(w, "capture save failed", http.StatusInternalServerError)
			return
		}
		middleware.RecordCapture(int64(len(snap.PNG)))
		logger.Info("capture saved", "id", snap.ID, "bytes", len(snap.PNG), "windows", snap.Windows)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(captureResponse{
			ID:      snap.ID,
			URL:     "/debug/capture/" + snap.ID,
			Width:   snap.Width,
			Height:  snap.Height,
			Windows: snap.Windows,
			Bytes:   len(snap.PNG),
		})
	}
}

// serveCaptureHandler returns a stored capture as PNG.
func serveCaptureHandler(store capture.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := store.Open(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, capture.ErrNotFound) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			http.Error(w, "capture load failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(snap.PNG)))
		w.Write(snap.PNG)
	}
}
