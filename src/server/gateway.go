package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"browser-engine/src/config"
	"browser-engine/src/coordinator"
	"browser-engine/src/internal/common"
	"browser-engine/src/internal/constants"
	"browser-engine/src/monitor"
)

// HTTPGateway exposes the coordinator facade as JSON endpoints for the
// browser UI layer
type HTTPGateway struct {
	coord    *coordinator.PerformanceOptimizationCoordinator
	server   *http.Server
	listener net.Listener
}

// NewHTTPGateway creates a gateway serving the given coordinator
func NewHTTPGateway(addr string, cfg *config.Config, opts coordinator.Options) (*HTTPGateway, error) {
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}

	gateway := &HTTPGateway{
		coord: coordinator.NewCoordinator(cfg, opts),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/optimize/cache", gateway.handlePredictiveCaching)
	mux.HandleFunc("/optimize/memory", gateway.handleMemoryManagement)
	mux.HandleFunc("/tasks", gateway.handleBackgroundProcessing)
	mux.HandleFunc("/monitor", gateway.handlePerformanceMonitoring)
	mux.HandleFunc("/tabs/restore", gateway.handleRestore)
	mux.HandleFunc("/cache/stats", gateway.handleCacheStats)
	mux.HandleFunc("/cache/clear", gateway.handleCacheClear)
	mux.HandleFunc("/health", gateway.handleHealth)

	gateway.server = &http.Server{
		Addr:    addr,
		Handler: mux,
		// Write timeout must cover the slowest predictor call
		ReadTimeout:       constants.GatewayReadTimeout,
		WriteTimeout:      constants.GatewayWriteTimeout,
		ReadHeaderTimeout: constants.GatewayReadHeaderTimeout,
		IdleTimeout:       constants.GatewayIdleTimeout,
	}

	return gateway, nil
}

// Start starts the coordinator and the HTTP listener
func (g *HTTPGateway) Start(ctx context.Context) error {
	if err := g.coord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}

	ln, err := net.Listen("tcp", g.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.server.Addr, err)
	}
	g.listener = ln

	go func() {
		if err := g.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			common.GatewayLogger.Error("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP listener and the coordinator
func (g *HTTPGateway) Stop() error {
	ctx, cancel := common.CreateContext(constants.GatewayShutdownTimeout)
	defer cancel()

	var lastErr error
	if g.server != nil {
		if err := g.server.Shutdown(ctx); err != nil {
			common.GatewayLogger.Error("HTTP server shutdown error: %v", err)
			lastErr = err
		}
	}
	if err := g.coord.Stop(); err != nil {
		lastErr = err
	}
	return lastErr
}

// Addr returns the bound listener address
func (g *HTTPGateway) Addr() string {
	if g.listener != nil {
		return g.listener.Addr().String()
	}
	return g.server.Addr
}

// Coordinator exposes the underlying coordinator, mainly for tests
func (g *HTTPGateway) Coordinator() *coordinator.PerformanceOptimizationCoordinator {
	return g.coord
}

type predictiveCachingRequest struct {
	UserID            string            `json:"user_id"`
	CurrentURL        string            `json:"current_url"`
	NavigationContext map[string]string `json:"navigation_context,omitempty"`
}

type memoryManagementRequest struct {
	Tabs             []coordinator.TabSnapshot `json:"tabs"`
	ResourceSnapshot *monitor.ResourceSnapshot `json:"resource_snapshot,omitempty"`
}

type restoreRequest struct {
	TabID string `json:"tab_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (g *HTTPGateway) handlePredictiveCaching(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req predictiveCachingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.CurrentURL == "" {
		writeError(w, http.StatusBadRequest, "current_url is required")
		return
	}

	result, err := g.coord.PredictiveCaching(r.Context(), req.UserID, req.CurrentURL, req.NavigationContext)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (g *HTTPGateway) handleMemoryManagement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req memoryManagementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	snapshot := req.ResourceSnapshot
	if snapshot == nil {
		sampled, err := g.coord.Monitor().Sample()
		if err != nil {
			// Degrade to the conservative Medium assumption
			sampled.PressureLevel = monitor.PressureMedium
		}
		snapshot = &sampled
	}

	result, err := g.coord.MemoryManagement(req.Tabs, *snapshot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (g *HTTPGateway) handleBackgroundProcessing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var descriptor coordinator.TaskDescriptor
	if err := json.NewDecoder(r.Body).Decode(&descriptor); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result, err := g.coord.BackgroundProcessing(descriptor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (g *HTTPGateway) handlePerformanceMonitoring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := g.coord.PerformanceMonitoring(r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (g *HTTPGateway) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.TabID == "" {
		writeError(w, http.StatusBadRequest, "tab_id is required")
		return
	}

	taskID, err := g.coord.RequestRestore(req.TabID)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (g *HTTPGateway) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, g.coord.Cache().Stats())
}

func (g *HTTPGateway) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	g.coord.Cache().Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (g *HTTPGateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot, _ := g.coord.Monitor().LastKnown()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"pressure": snapshot.PressureLevel.String(),
		"tasks":    g.coord.Scheduler().ActiveSummary(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		common.GatewayLogger.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
