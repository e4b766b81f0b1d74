package system

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

// BuildInfo is generated at build time and shipped beside the binary.
type BuildInfo struct {
	Version     string `json:"version"`
	BuildNumber string `json:"buildNumber"`
	GitCommit   string `json:"gitCommit"`
	GitBranch   string `json:"gitBranch"`
	Environment string `json:"environment"`
	BuildTime   string `json:"buildTime"`
	Service     string `json:"service"`
}

// Handler serves the service-level endpoints: root banner, health and
// build info.
type Handler struct {
	ServiceName   string
	Environment   string
	BuildInfoPath string
	logger        *zap.SugaredLogger
}

func NewHandler(serviceName, environment string, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		ServiceName:   serviceName,
		Environment:   environment,
		BuildInfoPath: "build-info.json",
		logger:        logger,
	}
}

// Root returns the service banner.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"message": h.ServiceName + " API"})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   h.ServiceName,
	})
}

// BuildInfoHandler serves build metadata, falling back to dev defaults when
// no build-info.json was generated.
func (h *Handler) BuildInfoHandler(w http.ResponseWriter, r *http.Request) {
	info := BuildInfo{
		Version:     "dev",
		BuildNumber: "local",
		GitCommit:   "unknown",
		GitBranch:   "unknown",
		Environment: h.Environment,
		BuildTime:   "unknown",
		Service:     "backend",
	}
	if data, err := os.ReadFile(h.BuildInfoPath); err == nil {
		if err := json.Unmarshal(data, &info); err != nil {
			h.logger.Warnw("malformed build-info.json", "err", err)
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "error reading build info"})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
