// Command vessels follows the vessels reported by a Signal K server and
// serves them over a JSON API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/vessel.report/internal/config"
	"github.com/banshee-data/vessel.report/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON config file (defaults apply when empty)")
	listen      = flag.String("listen", "", "Listen address, overrides the config file")
	serverURL   = flag.String("server", "", "Signal K server URL, overrides the config file and SIGNALK_URL")
	envFile     = flag.String("env", ".env", "Optional dotenv file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// loadConfig resolves the effective configuration. Precedence, highest
// first: flags, SIGNALK_URL, the config file, built-in defaults.
func loadConfig(path, listenFlag, serverFlag string, getenv func(string) string) (*config.Config, error) {
	cfg := config.Empty()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if u := getenv("SIGNALK_URL"); u != "" {
		cfg.SetServerURL(u)
	}
	if serverFlag != "" {
		cfg.SetServerURL(serverFlag)
	}
	if listenFlag != "" {
		cfg.SetListen(listenFlag)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load %s: %v", *envFile, err)
	}

	cfg, err := loadConfig(*configPath, *listen, *serverURL, os.Getenv)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	a, err := newApp(cfg, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	ln, err := net.Listen("tcp", cfg.GetListen())
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", cfg.GetListen(), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("%s: following %s, serving on %s", version.String(), cfg.GetServerURL(), ln.Addr())
	if err := a.run(ctx, ln); err != nil {
		log.Fatalf("exited with error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
