package api

import (
	"database/sql"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/hon-bridge/internal/hon/appliance"
)

// DBStatter exposes connection pool statistics. *database.DB satisfies it.
type DBStatter interface {
	Stats() sql.DBStats
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	Appliances    ApplianceMetrics `json:"appliances"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// ApplianceMetrics counts known appliances.
type ApplianceMetrics struct {
	Total          int            `json:"total"`
	ByConnection   map[string]int `json:"by_connection"`
	ByType         map[string]int `json:"by_type"`
	CommandsLoaded int            `json:"commands_loaded"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime and appliance metrics.
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
		Appliances: ApplianceMetrics{
			ByConnection: make(map[string]int),
			ByType:       make(map[string]int),
		},
	}

	for _, dev := range s.store.Devices() {
		metrics.Appliances.Total++
		metrics.Appliances.ByConnection[dev.Connection()]++

		info := dev.Info()
		typ := info.TypeName
		if typ == "" {
			typ = appliance.DefaultName(info.TypeID)
		}
		metrics.Appliances.ByType[typ]++

		if dev.CommandsLoaded() {
			metrics.Appliances.CommandsLoaded++
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
