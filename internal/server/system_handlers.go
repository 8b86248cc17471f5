package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// systemStatusResponse reports host resource usage for the dashboard.
type systemStatusResponse struct {
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
	RAMUsedMB     float64 `json:"ram_used_mb"`
	DiskPercent   float64 `json:"disk_percent"`
	DiskFreeGB    float64 `json:"disk_free_gb"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp := systemStatusResponse{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		resp.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.RAMPercent = vm.UsedPercent
		resp.RAMUsedMB = float64(vm.Used) / 1024 / 1024
	}
	if du, err := disk.Usage(s.cfg.DataDir); err == nil {
		resp.DiskPercent = du.UsedPercent
		resp.DiskFreeGB = float64(du.Free) / 1024 / 1024 / 1024
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSchedulerDebug(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": []interface{}{}})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": s.sched.Jobs(),
	})
}

// handleTriggerJob runs a registered job immediately, outside its schedule.
func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := s.jobs[name]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job: " + name})
		return
	}

	s.log.Info().Str("job", name).Msg("Manual job trigger")

	if err := s.sched.RunNow(job); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success", "job": name})
}
