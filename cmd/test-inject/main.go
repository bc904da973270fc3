// Command test-inject is a manual test for text delivery.
// It waits 3 seconds, then delivers the text into whatever window has
// focus. Focus a text editor before the countdown finishes.
//
// Usage:
//
//	go run ./cmd/test-inject [--method auto|type|paste] [--text "..."]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/voxtype/voxtype/internal/compat"
	"github.com/voxtype/voxtype/internal/inject"
	"github.com/voxtype/voxtype/internal/monitor"
	"github.com/voxtype/voxtype/internal/target"
)

func main() {
	method := flag.String("method", "auto", "delivery method: auto, type or paste")
	text := flag.String("text", "Hello from voxtype!", "text to deliver")
	flag.Parse()

	m, err := compat.ParseMethod(*method)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Will deliver %q using %q method in 3 seconds...\n", *text, m)
	fmt.Println("Focus a text editor now!")

	for i := 3; i > 0; i-- {
		fmt.Printf("%d...\n", i)
		time.Sleep(time.Second)
	}

	ident := target.NewIdentifier(target.OSProber{})
	eng := inject.NewEngine(ident, compat.NewRegistry(), inject.RobotgoBackend{},
		monitor.New(monitor.DefaultCapacity), slog.Default())

	opts := inject.DefaultOptions()
	opts.Method = m
	out, err := eng.Deliver(context.Background(), *text, opts)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nDone! Delivered via %s in %s.\n", out.Method, out.Duration.Round(time.Millisecond))
}
