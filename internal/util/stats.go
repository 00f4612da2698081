package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide device link counter.
var Stats = &stats{}

type stats struct {
	Connects    atomic.Int64 // cumulative count of established device connections
	Disconnects atomic.Int64 // cumulative count of ended device connections
	BytesSent   atomic.Int64 // cumulative bytes written to the device
	BytesRecv   atomic.Int64 // cumulative bytes read from the device
	Frames      atomic.Int64 // cumulative payloads decoded
}

func (s *stats) AddConn()        { s.Connects.Add(1) }
func (s *stats) RemoveConn()     { s.Disconnects.Add(1) }
func (s *stats) AddSent(n int)   { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int)   { s.BytesRecv.Add(int64(n)) }
func (s *stats) AddFrames(n int) { s.Frames.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs link statistics every
// interval, skipping quiet periods. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prevSent, prevRecv, prevFrames, prevConn, prevDisc int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				frames := Stats.Frames.Load()
				conn := Stats.Connects.Load()
				disc := Stats.Disconnects.Load()

				inS := float64(recv-prevRecv) / secs
				outS := float64(sent-prevSent) / secs
				f := frames - prevFrames
				up := conn - prevConn
				down := disc - prevDisc

				if f > 0 || up > 0 || down > 0 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, f, up, down))
				}

				prevSent, prevRecv, prevFrames, prevConn, prevDisc = sent, recv, frames, conn, disc

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, frames, up, down int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Frames: %4d | Link: %2d↑ %2d↓",
		formatBytes(inS),
		formatBytes(outS),
		frames,
		up,
		down,
	)
}
