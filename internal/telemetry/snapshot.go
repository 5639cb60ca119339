package telemetry

import (
	"context"
	"time"
)

// HealthSnapshot is one cycle's structured measurement of host state.
// Immutable once produced; exactly one snapshot exists per monitoring cycle.
type HealthSnapshot struct {
	Timestamp time.Time     `json:"timestamp"`
	CPU       CPUStats      `json:"cpu"`
	Memory    MemoryStats   `json:"memory"`
	Swap      SwapStats     `json:"swap"`
	Disk      DiskStats     `json:"disk"`
	Network   NetworkStats  `json:"network"`
	Services  ServiceStats  `json:"services"`
	Security  SecurityStats `json:"security"`
	Hardware  HardwareStats `json:"hardware"`
}

// CPUStats covers utilisation, load averages and thermals.
type CPUStats struct {
	Percent     float64 `json:"percent"`
	Load1Min    float64 `json:"load_1min"`
	Load5Min    float64 `json:"load_5min"`
	Load15Min   float64 `json:"load_15min"`
	Temperature float64 `json:"temperature"`
	ClockHz     float64 `json:"clock_hz"`
}

type MemoryStats struct {
	TotalGB     float64 `json:"total_gb"`
	UsedGB      float64 `json:"used_gb"`
	AvailableGB float64 `json:"available_gb"`
	Percent     float64 `json:"percent"`
}

type SwapStats struct {
	TotalGB float64 `json:"total_gb"`
	UsedGB  float64 `json:"used_gb"`
	Percent float64 `json:"percent"`
}

type DiskStats struct {
	TotalGB float64 `json:"total_gb"`
	UsedGB  float64 `json:"used_gb"`
	Percent float64 `json:"percent"`
}

type NetworkStats struct {
	LatencyMs         float64 `json:"latency_ms"`
	PacketLossPercent float64 `json:"packet_loss_percent"`
	SentMB            float64 `json:"sent_mb"`
	ReceivedMB        float64 `json:"received_mb"`
}

type ServiceStats struct {
	FailedCount int      `json:"failed_count"`
	FailedUnits []string `json:"failed_units,omitempty"`
}

type SecurityStats struct {
	FailedLogins  int            `json:"failed_logins"`
	SuspiciousIPs map[string]int `json:"suspicious_ips,omitempty"`
}

type HardwareStats struct {
	Voltage   float64 `json:"voltage"`
	Throttled bool    `json:"throttled"`
}

// Pattern flattens the snapshot into the key/value form the knowledge base
// stores and matches on. The timestamp is deliberately excluded so that two
// snapshots of the same situation hash and match identically.
func (s *HealthSnapshot) Pattern() map[string]any {
	return map[string]any{
		"cpu_percent":         s.CPU.Percent,
		"cpu_temperature":     s.CPU.Temperature,
		"load_1min":           s.CPU.Load1Min,
		"load_5min":           s.CPU.Load5Min,
		"load_15min":          s.CPU.Load15Min,
		"memory_percent":      s.Memory.Percent,
		"swap_percent":        s.Swap.Percent,
		"disk_percent":        s.Disk.Percent,
		"network_latency":     s.Network.LatencyMs,
		"packet_loss":         s.Network.PacketLossPercent,
		"failed_services":     float64(s.Services.FailedCount),
		"failed_logins":       float64(s.Security.FailedLogins),
		"suspicious_ip_count": float64(len(s.Security.SuspiciousIPs)),
	}
}

// Metrics returns the scalar fields persisted as long-term metric samples
// after every cycle. Keys are the metric names used by trend queries.
func (s *HealthSnapshot) Metrics() map[string]float64 {
	return map[string]float64{
		"cpu_percent":     s.CPU.Percent,
		"cpu_temperature": s.CPU.Temperature,
		"memory_percent":  s.Memory.Percent,
		"disk_percent":    s.Disk.Percent,
		"load_15min":      s.CPU.Load15Min,
		"network_latency": s.Network.LatencyMs,
		"packet_loss":     s.Network.PacketLossPercent,
		"failed_services": float64(s.Services.FailedCount),
		"failed_logins":   float64(s.Security.FailedLogins),
	}
}

// Collector produces one HealthSnapshot per call. Implementations own all
// OS-specific probing; the decision core only ever sees the snapshot.
type Collector interface {
	Collect(ctx context.Context) (*HealthSnapshot, error)
}
