// Sensorsim is a stand-in for the sensor device.
//
// It listens for TCP clients and broadcasts every stdin line to them as a
// frame, the way the device reports directions ("1".."4") and captions.
// Useful for running soundsight without hardware.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/soundsight/internal/device"
	"github.com/1ureka/soundsight/internal/protocol"
	"github.com/1ureka/soundsight/internal/util"
)

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	listen := flag.String("listen", ":8080", "TCP listen address")
	variant := flag.String("variant", "B", "Frame variant: A (S...E) or B (S...E\\n)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	v, err := protocol.ParseVariant(*variant)
	if err != nil {
		util.LogError("invalid -variant: %v", err)
		os.Exit(1)
	}

	pterm.Info.Println(fmt.Sprintf("Sensor simulator — variant %s", v))
	pterm.Println("Type 1 (front), 2 (back), 3 (left), 4 (right) or any caption text.")
	pterm.Println()

	b := device.NewBroadcaster(v)
	if _, err := b.Start(ctx, *listen); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	util.StartStatsReporter(ctx, 10*time.Second)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimRight(scanner.Text(), "\r")
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			b.Publish(line)
			util.LogDebug("published %q to %d client(s)", line, b.Clients())
		case <-ctx.Done():
			util.LogInfo("simulator stopped")
			return
		}
	}
}
