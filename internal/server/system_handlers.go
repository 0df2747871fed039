package server

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleSystemStatus reports host and process health for the dashboard.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, ramPct := s.systemStats()

	var diskStats map[string]interface{}
	if usage, err := disk.Usage(s.dataDir); err == nil {
		diskStats = map[string]interface{}{
			"total_gb":     float64(usage.Total) / 1024 / 1024 / 1024,
			"free_gb":      float64(usage.Free) / 1024 / 1024 / 1024,
			"used_percent": usage.UsedPercent,
		}
	} else {
		s.log.Warn().Err(err).Msg("Failed to get disk usage")
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "running",
		"cpu_percent": cpuPct,
		"ram_percent": ramPct,
		"disk":        diskStats,
		"data_dir_mb": s.dataDirSize(),
		"goroutines":  runtime.NumGoroutine(),
	})
}

// systemStats reads CPU and RAM usage. The 100ms CPU sample keeps the
// endpoint responsive for dashboard polling.
func (s *Server) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

// dataDirSize totals the data directory in MB, mostly the sqlite file and
// its WAL.
func (s *Server) dataDirSize() float64 {
	var totalSize int64

	err := filepath.Walk(s.dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("dir", s.dataDir).Msg("Failed to calculate data dir size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}
