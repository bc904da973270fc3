// Command voxtype is the dictation delivery service. It reads transcribed
// segments from stdin (one segment per line), injects each into the
// focused application, and tracks delivery reliability. A global hotkey
// pauses and resumes injection.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/voxtype/voxtype/internal/compat"
	"github.com/voxtype/voxtype/internal/config"
	"github.com/voxtype/voxtype/internal/diag"
	"github.com/voxtype/voxtype/internal/hotkey"
	"github.com/voxtype/voxtype/internal/inject"
	"github.com/voxtype/voxtype/internal/monitor"
	"github.com/voxtype/voxtype/internal/store"
	"github.com/voxtype/voxtype/internal/target"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/voxtype/config.yaml)")
	writeConfig := flag.Bool("write-config", false, "write a default config file if none exists and exit")
	debug := flag.Bool("debug", false, "enable verbose delivery tracing")
	flag.Parse()

	if *writeConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("write config: %v", err)
		}
		if path == "" {
			log.Println("Config already exists, leaving it untouched")
		} else {
			log.Printf("Wrote default config to %s", path)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	printBanner(cfg)

	backend, err := newBackend(cfg.Backend)
	if err != nil {
		log.Fatalf("backend: %v", err)
	}
	log.Printf("Input backend ready (%s)", cfg.Backend)

	reg := compat.NewRegistry()
	cfg.ApplyOverrides(reg)
	if n := len(cfg.Overrides); n > 0 {
		log.Printf("Applied %d profile override(s)", n)
	}

	mon := monitor.New(cfg.Monitor.Capacity)

	var history *store.History
	if cfg.HistoryPath != "" {
		history, err = store.Open(cfg.HistoryPath)
		if err != nil {
			log.Fatalf("history: %v", err)
		}
		defer history.Close()
		log.Printf("Attempt history at %s", cfg.HistoryPath)
	}

	ident := target.NewIdentifier(target.OSProber{})
	eng := inject.NewEngine(ident, reg, backend, mon, logger)
	eng.Policy = cfg.Policy()
	eng.SetDebugMode(*debug)
	if history != nil {
		eng.OnAttempt = func(a monitor.Attempt) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := history.Save(ctx, a); err != nil {
				logger.Warn("history save failed", "error", err)
			}
		}
	}

	facade := diag.New(eng, mon, reg, logger)
	facade.Window = cfg.Window()

	health := newHealthWatcher(facade, cfg.Notify)

	listener := hotkey.NewListener(cfg.Hotkey.Keys, cfg.Hotkey.Mode)
	log.Printf("Pause hotkey ready (%s, mode: %s)", strings.Join(cfg.Hotkey.Keys, "+"), cfg.Hotkey.Mode)
	go listener.Start()

	var paused atomic.Bool
	go func() {
		for ev := range listener.Events() {
			switch ev.Type {
			case hotkey.EventPause:
				paused.Store(true)
				log.Println("Injection paused")
			case hotkey.EventResume:
				paused.Store(false)
				log.Println("Injection resumed")
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	segments := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			segments <- scanner.Text()
		}
		close(segments)
	}()

	log.Println("Ready! Pipe transcribed text on stdin. Ctrl+C to quit.")

	opts := cfg.Options()
	for {
		select {
		case text, ok := <-segments:
			if !ok {
				log.Println("Input closed, shutting down")
				shutdown(listener, history)
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			if paused.Load() {
				log.Printf("Paused, dropping segment (%d chars)", len(text))
				continue
			}
			go func(text string) {
				out, err := eng.Deliver(context.Background(), text, opts)
				if err != nil {
					log.Printf("ERROR: delivery failed: %v", err)
				} else {
					log.Printf("Delivered %d chars via %s in %s",
						len([]rune(text)), out.Method, out.Duration.Round(time.Millisecond))
				}
				health.check()
			}(text)

		case sig := <-sigCh:
			log.Printf("Received %s, shutting down...", sig)
			shutdown(listener, history)
		}
	}
}

// shutdown stops the listener and exits directly to avoid gohook's C
// cleanup crash. The OS reclaims the event hook on process exit.
func shutdown(listener *hotkey.Listener, history *store.History) {
	listener.Stop()
	if history != nil {
		history.Close()
	}
	log.Println("Goodbye!")
	os.Exit(0)
}

// newBackend selects the input synthesis backend.
func newBackend(name string) (inject.Backend, error) {
	switch name {
	case "keybd":
		return inject.NewKeybdBackend()
	default:
		return inject.RobotgoBackend{}, nil
	}
}

// healthWatcher raises a desktop notification when delivery health drops
// out of healthy, and again only after it recovers first.
type healthWatcher struct {
	facade   *diag.Facade
	notify   bool
	degraded atomic.Bool
}

func newHealthWatcher(facade *diag.Facade, notify bool) *healthWatcher {
	return &healthWatcher{facade: facade, notify: notify}
}

func (w *healthWatcher) check() {
	rep := w.facade.Report()
	if rep.Health == monitor.HealthHealthy {
		w.degraded.Store(false)
		return
	}
	if w.degraded.Swap(true) {
		return
	}
	log.Printf("Delivery health is %s (%d issue(s))", rep.Health, rep.IssueCount)
	for _, advice := range rep.Recommendations {
		log.Printf("  hint: %s", advice)
	}
	if w.notify {
		msg := fmt.Sprintf("Text delivery is %s.", rep.Health)
		if len(rep.Recommendations) > 0 {
			msg += " " + rep.Recommendations[0]
		}
		if err := beeep.Notify("voxtype", msg, ""); err != nil {
			slog.Warn("notification failed", "error", err)
		}
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== voxtype ===")
	fmt.Printf("  Backend: %s\n", cfg.Backend)
	fmt.Printf("  Method:  %s (%d retries, %dms/char, %dms budget)\n",
		cfg.Inject.Method, cfg.Inject.Retries, cfg.Inject.CharDelayMS, cfg.Inject.TimeoutMS)
	fmt.Printf("  Hotkey:  %s (%s mode)\n", strings.Join(cfg.Hotkey.Keys, "+"), cfg.Hotkey.Mode)
	if cfg.HistoryPath != "" {
		fmt.Printf("  History: %s\n", cfg.HistoryPath)
	}
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("===============")
}
