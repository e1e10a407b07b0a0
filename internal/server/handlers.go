package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
	"github.com/dgnsrekt/stagehand-relay/internal/probe"
	"github.com/dgnsrekt/stagehand-relay/internal/relay"
)

// StatusResponse is the body of GET /api/media/status.
type StatusResponse struct {
	Status media.Status `json:"status"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// DiagnosticsResponse is the body of GET /diagnostics.
type DiagnosticsResponse struct {
	OS           string              `json:"os"`
	Host         *HostInfo           `json:"host,omitempty"`
	Arch         string              `json:"arch"`
	GoVersion    string              `json:"go_version"`
	Hostname     string              `json:"hostname"`
	PollInterval string              `json:"poll_interval"`
	Uptime       string              `json:"uptime"`
	Relay        relay.Diagnostics   `json:"relay"`
	Current      media.Snapshot      `json:"current"`
	Commands     CommandLimiterStats `json:"commands"`
}

// HostInfo describes the machine whose media session is relayed.
type HostInfo struct {
	Platform          string  `json:"platform"`
	PlatformVersion   string  `json:"platform_version"`
	KernelVersion     string  `json:"kernel_version"`
	Uptime            string  `json:"uptime"`
	MemoryTotal       uint64  `json:"memory_total"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCommand(send func(context.Context) probe.CommandResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := send(r.Context())
		if !result.Success {
			s.logger.Debug("command rejected", zap.String("path", r.URL.Path), zap.String("message", result.Message))
		}
		// Failures travel in the body; the HTTP exchange itself succeeded.
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: s.relay.Commands().Status()})
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.relay.Latest())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	current := s.relay.Latest().Snapshot
	// Artwork bytes are noise in a diagnostics dump.
	current.Artwork = nil

	writeJSON(w, http.StatusOK, DiagnosticsResponse{
		OS:           runtime.GOOS,
		Host:         s.hostInfo(r.Context()),
		Arch:         runtime.GOARCH,
		GoVersion:    runtime.Version(),
		Hostname:     hostname,
		PollInterval: s.opts.PollInterval.String(),
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		Relay:        s.relay.Diagnostics(),
		Current:      current,
		Commands:     s.limiter.Stats(),
	})
}

// ReloadRequest is the body of POST /admin/provider.
type ReloadRequest struct {
	Kind string `json:"kind"`
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	var req ReloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Kind == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"kind\": \"<provider>\"}")
		return
	}

	result, err := s.reload.Reload(r.Context(), req.Kind)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, ErrReloadInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Warn("provider reload failed", zap.String("kind", req.Kind), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// hostInfo returns nil when the platform cannot be inspected.
func (s *Server) hostInfo(ctx context.Context) *HostInfo {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		s.logger.Debug("host info unavailable", zap.Error(err))
		return nil
	}
	out := &HostInfo{
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		Uptime:          (time.Duration(info.Uptime) * time.Second).String(),
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out.MemoryTotal = vm.Total
		out.MemoryUsedPercent = vm.UsedPercent
	}
	return out
}

func (s *Server) handleBanner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Stagehand relay is running.\n" +
		"  POST /api/media/{play,pause,next,previous}\n" +
		"  GET  /api/media/status\n" +
		"  GET  /api/media/current\n" +
		"  GET  /api/media/subscribe  (Server-Sent Events)\n" +
		"  GET  /ws/media             (WebSocket: json.stagehand.v1, protobuf.stagehand.v1)\n" +
		"  GET  /openapi.yaml\n" +
		"  POST /admin/provider       {\"kind\": \"demo\"}\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
