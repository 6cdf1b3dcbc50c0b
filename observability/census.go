// Package observability reports the gateway's live topology and process
// health at a fixed cadence.
package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

type ConnectionCounter interface {
	Counts() (users, connections int)
}

// Census periodically logs how many users and connections are live plus
// process-level stats. It is a supervised worker; a failing stats read is
// logged and the loop keeps going.
type Census struct {
	log      *slog.Logger
	interval time.Duration
	counter  ConnectionCounter
}

func NewCensus(log *slog.Logger, interval time.Duration, counter ConnectionCounter) *Census {
	return &Census{log: log, interval: interval, counter: counter}
}

func (c *Census) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			users, connections := c.counter.Counts()

			var rssMb uint64
			var cpuPercent float64
			if memInfo, err := proc.MemoryInfo(); err == nil {
				rssMb = memInfo.RSS / 1024 / 1024
			} else {
				c.log.Debug("Memory stats unavailable", "error", err)
			}
			if cpu, err := proc.CPUPercent(); err == nil {
				cpuPercent = cpu
			}

			c.log.Info("Connection census",
				"users", users,
				"connections", connections,
				"rss_mb", rssMb,
				"cpu_percent", cpuPercent,
				"goroutines", runtime.NumGoroutine(),
			)
		}
	}
}
