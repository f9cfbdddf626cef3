// matrixd is the orchestration daemon: it loads a Keymaster configuration
// document, builds the declared components, drives them through the
// Controller lifecycle, and serves the Keymaster and Prometheus metrics
// over HTTP for the lifetime of the process.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/nrao/matrixcore/internal/controller"
	"github.com/nrao/matrixcore/internal/demo"
	"github.com/nrao/matrixcore/internal/keymaster"
	"github.com/nrao/matrixcore/internal/logging"
	"github.com/nrao/matrixcore/internal/metrics"
)

type options struct {
	ConfigPath string `long:"config" required:"true" description:"path to the Keymaster configuration YAML document"`
	Mode       string `long:"mode" description:"active mode to select once initialize reaches Standby (must appear under connections.<mode> in the config); only takes effect with --auto-run"`
	LogLevel   string `long:"log-level" default:"info" description:"log level"`
	Listen     string `long:"listen" default:"0.0.0.0:8080" description:"address to serve the Keymaster and /metrics on"`
	Timeout    time.Duration `long:"quorum-timeout" default:"10s" description:"how long each --auto-run lifecycle call and shutdown wait for component quorum; calls arriving over controller.command wait 10s"`
	AutoRun    bool   `long:"auto-run" description:"drive the Controller through init/ready/start automatically at startup"`
}

func main() {
	opts := parseArgs()
	logging.Init(opts.LogLevel)

	data, err := os.ReadFile(opts.ConfigPath)
	if err != nil {
		log.WithError(err).Fatal("failed to read configuration")
	}

	ctrl := controller.New(opts.ConfigPath)
	ctrl.AddComponentFactory("generator", demo.NewGeneratorFactory())
	ctrl.AddComponentFactory("sink", demo.NewSinkFactory())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctrl.BasicInit(ctx, data); err != nil {
		log.WithError(err).Fatal("basic_init failed")
	}

	srv := newHTTPServer(opts.Listen, ctrl)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	if opts.AutoRun {
		go autoRun(ctx, ctrl, opts.Mode, opts.Timeout)
	} else if opts.Mode != "" {
		log.Warn("--mode has no effect without --auto-run: set_system_mode is only valid once initialize has run, so drive it via matrixctl after calling initialize")
	}

	waitForSignal()

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer shutdownCancel()
	ctrl.Terminate(shutdownCtx, opts.Timeout)
	_ = srv.Shutdown(shutdownCtx)
}

func parseArgs() options {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	return opts
}

func newHTTPServer(addr string, ctrl *controller.Controller) *http.Server {
	km := ctrl.Keymaster()
	kmServer := keymaster.NewServer(km)

	mux := http.NewServeMux()
	mux.Handle("/", kmServer.Router())
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.NewRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(ctrl.GlobalState()))
	})

	return &http.Server{Addr: addr, Handler: mux}
}

// autoRun drives the Controller through init, an optional mode
// selection, ready, and start in sequence, logging and stopping early
// on the first failure. set_system_mode is only valid once the global
// FSM has reached Standby, so it runs between initialize and ready, not
// before initialize. Intended for demos and integration tests; a
// production daemon would instead drive the lifecycle from matrixctl or
// another operator surface.
func autoRun(ctx context.Context, ctrl *controller.Controller, mode string, timeout time.Duration) {
	ok, err := ctrl.Initialize(ctx, timeout)
	if err != nil {
		log.WithError(err).Error("auto-run: initialize failed")
		return
	}
	if !ok {
		log.Error("auto-run: initialize did not reach quorum")
		return
	}
	log.Info("auto-run: initialize complete")

	if mode != "" {
		if err := ctrl.SetSystemMode(mode); err != nil {
			log.WithError(err).Error("auto-run: set_system_mode failed")
			return
		}
		log.Infof("auto-run: mode %q selected", mode)
	}

	steps := []struct {
		name string
		call func(context.Context, time.Duration) (bool, error)
	}{
		{"ready", ctrl.Ready},
		{"start", ctrl.Start},
	}
	for _, step := range steps {
		ok, err := step.call(ctx, timeout)
		if err != nil {
			log.WithError(err).Errorf("auto-run: %s failed", step.name)
			return
		}
		if !ok {
			log.Errorf("auto-run: %s did not reach quorum", step.name)
			return
		}
		log.Infof("auto-run: %s complete", step.name)
	}
}

func waitForSignal() {
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	<-sigC
}
