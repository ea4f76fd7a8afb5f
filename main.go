// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"runtime"

	"discolights/cmd"
	applog "discolights/internal/log"
	"discolights/pkg/build"
)

// main is the entry point for the application. The program flow is divided
// into three phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Configure runtime settings
//   - Parse command line arguments and load configuration
//
// 2. Concurrent Phase (Hot Path):
//   - The capture callback feeds the aggregator sample by sample
//   - The relay delivers events to transports on its own goroutine
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop capture before closing transports
func main() {
	// Development builds carry no ldflags and keep the defaults.
	if err := build.Initialize(); err != nil {
		applog.Debugf("Build: %v", err)
	}

	// Limit OS threads for real-time capture:
	// - One thread dedicated to the audio callback
	// - One thread for delivery, UI and I/O
	runtime.GOMAXPROCS(2)

	if err := cmd.Execute(context.Background(), os.Args[1:]); err != nil {
		applog.Fatalf("%v", err)
	}
}
