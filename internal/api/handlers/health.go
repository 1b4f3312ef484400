package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"
)

var startTime = time.Now()

// HealthChecker is implemented by the Postgres and Redis clients
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// MemoryStats reports host memory use in percent
type MemoryStats func(ctx context.Context) (float64, error)

// HealthHandler serves the health, readiness and liveness probes
type HealthHandler struct {
	db       HealthChecker
	redis    HealthChecker
	memory   MemoryStats
	version  string
	queueLen func() int
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	System    *SystemStatus     `json:"system,omitempty"`
}

// SystemStatus summarises host resources and queued training work
type SystemStatus struct {
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	PendingTraining   int     `json:"pending_training_jobs"`
}

// NewHealthHandler creates a health handler. memory and queueLen may be nil.
func NewHealthHandler(db, redis HealthChecker, version string, memory MemoryStats, queueLen func() int) *HealthHandler {
	if memory == nil {
		memory = func(ctx context.Context) (float64, error) {
			vm, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return vm.UsedPercent, nil
		}
	}
	return &HealthHandler{db: db, redis: redis, memory: memory, version: version, queueLen: queueLen}
}

func (h *HealthHandler) checkServices(ctx context.Context) map[string]string {
	services := map[string]string{}
	check := func(name string, checker HealthChecker) {
		if checker == nil {
			services[name] = "unhealthy: not configured"
			return
		}
		if err := checker.HealthCheck(ctx); err != nil {
			services[name] = "unhealthy: " + err.Error()
			return
		}
		services[name] = "healthy"
	}
	check("database", h.db)
	check("redis", h.redis)
	return services
}

// HealthCheck reports dependency status and host resources
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	services := h.checkServices(ctx)
	overall := "healthy"
	for _, status := range services {
		if status != "healthy" {
			overall = "unhealthy"
			break
		}
	}

	response := HealthResponse{
		Status:    overall,
		Timestamp: time.Now(),
		Services:  services,
		Version:   h.version,
		Uptime:    time.Since(startTime).String(),
	}
	if used, err := h.memory(ctx); err == nil {
		response.System = &SystemStatus{MemoryUsedPercent: used}
		if h.queueLen != nil {
			response.System.PendingTraining = h.queueLen()
		}
	}

	status := http.StatusOK
	if overall != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}

// ReadinessCheck fails unless every dependency answers
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	services := h.checkServices(ctx)
	for _, status := range services {
		if status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "services": services})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ready": true, "services": services})
}

// LivenessCheck only proves the process is serving requests
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
