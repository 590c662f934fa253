package api

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

type processStats struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	OpenFiles  int32   `json:"open_fds,omitempty"`
}

type healthResponse struct {
	Status              string         `json:"status"`
	Uptime              string         `json:"uptime"`
	Goroutines          int            `json:"goroutines"`
	DashboardCategories int            `json:"dashboard_categories"`
	Observers           map[string]int `json:"observers"`
	Database            string         `json:"database"`
	Process             *processStats  `json:"process,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Connected to machine-hub backend!"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:              "ok",
		Uptime:              time.Since(s.started).Round(time.Second).String(),
		Goroutines:          runtime.NumGoroutine(),
		DashboardCategories: s.svc.Store().Len(),
		Observers:           map[string]int{},
		Database:            "ok",
		Process:             currentProcessStats(r),
	}
	if s.observers != nil {
		resp.Observers["dashboard"] = s.observers.Count("dashboard")
		resp.Observers["machines"] = s.observers.Count("machines")
	}

	status := http.StatusOK
	if err := s.repo.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// currentProcessStats returns nil when the platform does not expose them.
func currentProcessStats(r *http.Request) *processStats {
	p, err := process.NewProcessWithContext(r.Context(), int32(os.Getpid()))
	if err != nil {
		return nil
	}
	mem, err := p.MemoryInfoWithContext(r.Context())
	if err != nil {
		return nil
	}
	stats := &processStats{RSSBytes: mem.RSS}
	if cpu, err := p.CPUPercentWithContext(r.Context()); err == nil {
		stats.CPUPercent = cpu
	}
	if fds, err := p.NumFDsWithContext(r.Context()); err == nil {
		stats.OpenFiles = fds
	}
	return stats
}
