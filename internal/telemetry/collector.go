package telemetry

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// shellCollector is a thin Collector that shells out for each reading. It is
// boundary wiring for cmd/doctor; tests and the decision core use the
// Collector interface with fakes instead.
type shellCollector struct {
	runner Runner
}

// NewShellCollector builds a Collector backed by the given Runner.
func NewShellCollector(runner Runner) Collector {
	return &shellCollector{runner: runner}
}

func (c *shellCollector) Collect(ctx context.Context) (*HealthSnapshot, error) {
	snap := &HealthSnapshot{Timestamp: time.Now()}

	// Individual probe failures leave the field at its zero value; a cycle
	// must never be lost to one unreadable sensor.
	snap.CPU.Percent = c.floatCmd(ctx, `top -bn1 | awk '/Cpu\(s\)/{print 100-$8}'`)
	if loads := strings.Fields(c.strCmd(ctx, `cat /proc/loadavg`)); len(loads) >= 3 {
		snap.CPU.Load1Min, _ = strconv.ParseFloat(loads[0], 64)
		snap.CPU.Load5Min, _ = strconv.ParseFloat(loads[1], 64)
		snap.CPU.Load15Min, _ = strconv.ParseFloat(loads[2], 64)
	}
	snap.CPU.Temperature = c.floatCmd(ctx, `vcgencmd measure_temp | cut -d= -f2 | cut -d\' -f1`)

	snap.Memory.Percent = c.floatCmd(ctx, `free | awk '/Mem:/{printf "%.1f", $3/$2*100}'`)
	snap.Swap.Percent = c.floatCmd(ctx, `free | awk '/Swap:/{if ($2>0) printf "%.1f", $3/$2*100; else print 0}'`)
	snap.Disk.Percent = c.floatCmd(ctx, `df / | awk 'NR==2{gsub("%","",$5); print $5}'`)

	snap.Network.LatencyMs = c.floatCmd(ctx, `ping -c 3 8.8.8.8 | tail -1 | awk -F/ '{print $5}'`)
	snap.Network.PacketLossPercent = c.floatCmd(ctx, `ping -c 10 8.8.8.8 | grep -o '[0-9.]*% packet loss' | tr -d '% packet loss'`)

	failed := c.strCmd(ctx, `systemctl --failed --no-legend | awk '{print $1}'`)
	for _, unit := range strings.Split(failed, "\n") {
		unit = strings.TrimSpace(unit)
		if unit != "" && unit != "●" {
			snap.Services.FailedUnits = append(snap.Services.FailedUnits, unit)
		}
	}
	snap.Services.FailedCount = len(snap.Services.FailedUnits)

	snap.Security.FailedLogins = int(c.floatCmd(ctx, `grep -c 'Failed password' /var/log/auth.log`))
	snap.Security.SuspiciousIPs = c.suspiciousIPs(ctx)

	return snap, nil
}

func (c *shellCollector) suspiciousIPs(ctx context.Context) map[string]int {
	out := c.strCmd(ctx, `grep 'Failed password' /var/log/auth.log | awk '{print $(NF-3)}' | sort | uniq -c | sort -nr | head -5`)
	ips := map[string]int{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			if n, err := strconv.Atoi(fields[0]); err == nil {
				ips[fields[1]] = n
			}
		}
	}
	return ips
}

func (c *shellCollector) strCmd(ctx context.Context, command string) string {
	out, _ := c.runner.Run(ctx, command, 10*time.Second)
	return out
}

func (c *shellCollector) floatCmd(ctx context.Context, command string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(c.strCmd(ctx, command)), 64)
	if err != nil {
		return 0
	}
	return v
}
