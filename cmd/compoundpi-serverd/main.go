// Command compoundpi-serverd runs a single Compound Pi camera server: it
// binds the control socket, wires a simulated camera, and dispatches
// incoming UDP requests until told to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waveform-computing/compoundpi/internal/config"
	"github.com/waveform-computing/compoundpi/internal/metrics"
	"github.com/waveform-computing/compoundpi/pkg/camera"
	"github.com/waveform-computing/compoundpi/pkg/server"
	"github.com/waveform-computing/compoundpi"
)

func main() {
	configPath := flag.String("config", "", "path to an INI config file (default built-in values)")
	bindAddr := flag.String("bind", "", "override server_bind from the config file")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on, empty disables")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "compoundpi-serverd: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *bindAddr != "" {
		cfg.ServerBindAddr = *bindAddr
	}

	laddr, err := net.ResolveUDPAddr("udp4", cfg.ServerBindAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compoundpi-serverd: resolve %s: %v\n", cfg.ServerBindAddr, err)
		os.Exit(1)
	}
	socket, err := compoundpi.NewSocket(laddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compoundpi-serverd: %v\n", err)
		os.Exit(1)
	}
	defer socket.Close()

	var reg *metrics.Registry
	if *metricsAddr != "" {
		promReg := prometheus.NewRegistry()
		reg = metrics.NewRegistry(promReg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.WithError(err).Warn("metrics listener stopped")
			}
		}()
	}

	cam := camera.NewSimulator()
	store := &server.FileStore{}
	dispatcher := server.NewDispatcher(socket, cam, store, reg)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
	}()

	log.WithField("addr", socket.LocalAddr()).Info("compoundpi-serverd listening")
	if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("dispatcher stopped unexpectedly")
		os.Exit(1)
	}
}
