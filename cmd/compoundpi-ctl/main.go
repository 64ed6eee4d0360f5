// Command compoundpi-ctl is a minimal scripted client for driving a
// Compound Pi camera fleet from the shell: one subcommand per control
// operation, suitable for wiring into cron jobs or CI smoke tests rather
// than interactive use.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/waveform-computing/compoundpi"
	"github.com/waveform-computing/compoundpi/internal/config"
	"github.com/waveform-computing/compoundpi/pkg/client"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: compoundpi-ctl [flags] <command> [args]

commands:
  find [n]                      discover servers, stop waiting once n answer (0 = until timeout)
  status <addr...>               print each target's status block
  capture <count> <addr...>      capture count images on each target
  list <addr...>                 list files held by each target
  download <addr> <index> <out>  download file index from addr into out
  clear <addr...>                 clear each target's file store
  identify <addr...>              blink each target's LED

flags:
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "path to an INI config file (default built-in values)")
	clientAddr := flag.String("bind", "0.0.0.0:0", "local UDP address to bind the client socket to")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}

	laddr, err := net.ResolveUDPAddr("udp4", *clientAddr)
	if err != nil {
		fatal(fmt.Errorf("resolve %s: %w", *clientAddr, err))
	}
	socket, err := compoundpi.NewSocket(laddr)
	if err != nil {
		fatal(err)
	}
	defer socket.Close()

	engine := client.NewEngine(socket, cfg.ClientNetwork, cfg.ClientPort,
		client.WithRequestTimeout(cfg.RequestTimeout),
		client.WithRetryInterval(cfg.RetryInterval),
		client.WithWarnSink(func(addr net.IP, w compoundpi.Warning) {
			fmt.Fprintf(os.Stderr, "warning: %s: %s\n", addr, w)
		}),
	)
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+5*time.Second)
	defer cancel()

	args := flag.Args()
	cmd, rest := args[0], args[1:]

	var runErr error
	switch cmd {
	case "find":
		runErr = runFind(ctx, engine, rest)
	case "status":
		runErr = runStatus(ctx, engine, rest)
	case "capture":
		runErr = runCapture(ctx, engine, rest)
	case "list":
		runErr = runList(ctx, engine, rest)
	case "download":
		runErr = runDownload(ctx, engine, cfg, rest)
	case "clear":
		runErr = runClear(ctx, engine, rest)
	case "identify":
		runErr = runIdentify(ctx, engine, rest)
	default:
		usage()
		os.Exit(2)
	}
	if runErr != nil {
		fatal(runErr)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "compoundpi-ctl: %v\n", err)
	os.Exit(1)
}

func parseAddrs(args []string) ([]net.IP, error) {
	addrs := make([]net.IP, 0, len(args))
	for _, a := range args {
		ip := net.ParseIP(a)
		if ip == nil {
			return nil, fmt.Errorf("invalid address %q", a)
		}
		addrs = append(addrs, ip)
	}
	return addrs, nil
}

func runFind(ctx context.Context, engine *client.Engine, args []string) error {
	expected := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("find: %w", err)
		}
		expected = n
	}
	found, err := engine.Find(ctx, expected)
	if err != nil {
		return err
	}
	for _, ip := range found {
		fmt.Println(ip)
	}
	return nil
}

func runStatus(ctx context.Context, engine *client.Engine, args []string) error {
	addrs, err := parseAddrs(args)
	if err != nil {
		return err
	}
	if err := insertAll(ctx, engine, addrs); err != nil {
		return err
	}
	statuses, err := engine.Status(ctx, addrs...)
	for addr, snap := range statuses {
		fmt.Printf("%s:\n%s\n", addr, compoundpi.RenderStatus(snap))
	}
	return err
}

func runCapture(ctx context.Context, engine *client.Engine, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("capture: expected <count> <addr...>")
	}
	count, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	addrs, err := parseAddrs(args[1:])
	if err != nil {
		return err
	}
	if err := insertAll(ctx, engine, addrs); err != nil {
		return err
	}
	return engine.Capture(ctx, count, false, 0, 0, addrs...)
}

func runList(ctx context.Context, engine *client.Engine, args []string) error {
	addrs, err := parseAddrs(args)
	if err != nil {
		return err
	}
	if err := insertAll(ctx, engine, addrs); err != nil {
		return err
	}
	files, err := engine.List(ctx, addrs...)
	for addr, descriptors := range files {
		for _, fd := range descriptors {
			fmt.Printf("%s,%d,%s,%g,%d\n", addr, fd.Index, fd.Type, fd.Timestamp, fd.Size)
		}
	}
	return err
}

func runDownload(ctx context.Context, engine *client.Engine, cfg config.Config, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("download: expected <addr> <index> <out>")
	}
	addr := net.ParseIP(args[0])
	if addr == nil {
		return fmt.Errorf("download: invalid address %q", args[0])
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if err := insertAll(ctx, engine, []net.IP{addr}); err != nil {
		return err
	}

	listener, err := client.NewListener(cfg.ClientTCPBindAddr)
	if err != nil {
		return err
	}
	defer listener.Close()

	out, err := os.Create(args[2])
	if err != nil {
		return err
	}
	defer out.Close()

	return engine.Download(ctx, listener, addr, index, out)
}

func runClear(ctx context.Context, engine *client.Engine, args []string) error {
	addrs, err := parseAddrs(args)
	if err != nil {
		return err
	}
	if err := insertAll(ctx, engine, addrs); err != nil {
		return err
	}
	return engine.Clear(ctx, addrs...)
}

func runIdentify(ctx context.Context, engine *client.Engine, args []string) error {
	addrs, err := parseAddrs(args)
	if err != nil {
		return err
	}
	if err := insertAll(ctx, engine, addrs); err != nil {
		return err
	}
	return engine.Identify(ctx, addrs...)
}

// insertAll registers every address ctl was told to target so the
// transaction engine accepts them (§4.6, targets must be in the
// registry). Addresses already known are tolerated.
func insertAll(ctx context.Context, engine *client.Engine, addrs []net.IP) error {
	for _, addr := range addrs {
		if err := engine.Insert(ctx, addr); err != nil && !strings.Contains(err.Error(), "already in registry") {
			return err
		}
	}
	return nil
}
