// Command diagnose runs a delivery self-test against the focused window
// and prints the resulting health report. With --history it also lists
// recent persisted attempts.
//
// Usage:
//
//	go run ./cmd/diagnose [--config path] [--history n]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/voxtype/voxtype/internal/compat"
	"github.com/voxtype/voxtype/internal/config"
	"github.com/voxtype/voxtype/internal/diag"
	"github.com/voxtype/voxtype/internal/inject"
	"github.com/voxtype/voxtype/internal/monitor"
	"github.com/voxtype/voxtype/internal/store"
	"github.com/voxtype/voxtype/internal/target"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/voxtype/config.yaml)")
	historyN := flag.Int("history", 0, "also print the n most recent persisted attempts")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	} else if path := config.DefaultConfigPath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := config.Load(path)
			if err != nil {
				log.Fatalf("config: %v", err)
			}
			cfg = loaded
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))

	reg := compat.NewRegistry()
	cfg.ApplyOverrides(reg)
	mon := monitor.New(cfg.Monitor.Capacity)
	ident := target.NewIdentifier(target.OSProber{})
	eng := inject.NewEngine(ident, reg, inject.RobotgoBackend{}, mon, logger)
	facade := diag.New(eng, mon, reg, logger)
	facade.Window = cfg.Window()

	fmt.Println("Running self-test in 3 seconds. Focus a scratch buffer now!")
	for i := 3; i > 0; i-- {
		fmt.Printf("%d...\n", i)
		time.Sleep(time.Second)
	}

	res, err := facade.SelfTest(context.Background())
	if err != nil {
		fmt.Printf("Self-test FAILED: %v\n", err)
	} else {
		fmt.Printf("Self-test passed via %s in %s.\n", res.Method, res.Duration.Round(time.Millisecond))
	}
	for _, issue := range res.Issues {
		fmt.Printf("  issue: %s\n", issue)
	}

	rep := facade.Report()
	fmt.Printf("\nHealth: %s\n", rep.Health)
	for _, issue := range rep.Issues {
		fmt.Printf("  issue: %s\n", issue)
	}
	for _, advice := range rep.Recommendations {
		fmt.Printf("  hint: %s\n", advice)
	}

	if *historyN > 0 && cfg.HistoryPath != "" {
		printHistory(cfg.HistoryPath, *historyN)
	}

	if err != nil {
		os.Exit(1)
	}
}

func printHistory(path string, n int) {
	h, err := store.Open(path)
	if err != nil {
		log.Printf("history: %v", err)
		return
	}
	defer h.Close()

	attempts, err := h.Recent(context.Background(), n)
	if err != nil {
		log.Printf("history: %v", err)
		return
	}

	fmt.Printf("\nLast %d attempt(s):\n", len(attempts))
	for _, a := range attempts {
		status := "ok"
		if !a.Success {
			status = string(a.Reason)
		}
		fmt.Printf("  %s  %-16s %-5s %-8s %s\n",
			a.Time.Format(time.RFC3339), a.Target.ProcessName, a.Method,
			status, a.Duration.Round(time.Millisecond))
	}
}
