package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/lanwake/internal/monitor"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          ConnMetrics    `json:"mqtt"`
	InfluxDB      ConnMetrics    `json:"influxdb"`
	Devices       DeviceMetrics  `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// ConnMetrics reports an optional integration.
type ConnMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total           int            `json:"total"`
	RegistryVersion uint64         `json:"registry_version"`
	ByStatus        map[string]int `json:"by_status"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		MQTT:     connMetrics(s.mqtt),
		InfluxDB: connMetrics(s.influx),
	}

	snap := s.registry.List()
	statuses := s.monitor.Statuses()
	metrics.Devices = DeviceMetrics{
		Total:           len(snap.Devices),
		RegistryVersion: snap.Version,
		ByStatus:        make(map[string]int),
	}
	for _, d := range snap.Devices {
		st, ok := statuses[d.ID]
		if !ok {
			st = monitor.StatusUnknown
		}
		metrics.Devices.ByStatus[string(st)]++
	}

	writeJSON(w, http.StatusOK, metrics)
}

func connMetrics(c ConnectionChecker) ConnMetrics {
	if c == nil {
		return ConnMetrics{}
	}
	return ConnMetrics{Enabled: true, Connected: c.IsConnected()}
}
