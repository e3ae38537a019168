// Package server exposes the scoring pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fraudshield/internal/logx"
	"fraudshield/internal/notify"
	"fraudshield/internal/store"
	"fraudshield/pkg/ensemble"
	"fraudshield/pkg/fraud"
)

var (
	mRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fraudshield_http_requests_total",
		Help: "HTTP requests by endpoint and status.",
	}, []string{"endpoint", "status"})
	mAnalyzeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fraudshield_analyze_duration_seconds",
		Help:    "End-to-end analysis latency.",
		Buckets: prometheus.DefBuckets,
	})
	mAlerts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fraudshield_alerts_published_total",
		Help: "Fraud alerts published to the bus.",
	})
)

func init() {
	_ = prometheus.Register(mRequests)
	_ = prometheus.Register(mAnalyzeDuration)
	_ = prometheus.Register(mAlerts)
}

// Server holds the pipeline and its supporting stores.
type Server struct {
	orch   *ensemble.Orchestrator
	mgr    *ensemble.Manager
	models store.ModelStore
	audit  *store.AuditStore
	bus    *notify.Bus
	secret []byte
}

// New constructs a Server around an orchestrator.
func New(orch *ensemble.Orchestrator) *Server {
	return &Server{orch: orch, mgr: ensemble.NewManager(orch)}
}

// WithModelStore attaches a snapshot store; trained models are persisted
// after /v1/train and served by the export/import endpoints.
func (s *Server) WithModelStore(ms store.ModelStore) *Server {
	s.models = ms
	return s
}

// WithAuditStore attaches the analysis archive.
func (s *Server) WithAuditStore(as *store.AuditStore) *Server {
	s.audit = as
	return s
}

// WithBus attaches the alert bus.
func (s *Server) WithBus(bus *notify.Bus) *Server {
	s.bus = bus
	return s
}

// WithAPISecret enables bearer auth on model admin endpoints.
func (s *Server) WithAPISecret(secret string) *Server {
	if secret != "" {
		s.secret = []byte(secret)
	}
	return s
}

// Routes builds the HTTP mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HealthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/analyze", s.AnalyzeHandler)
	mux.HandleFunc("/v1/train", s.requireAuth(s.TrainHandler))
	mux.HandleFunc("/v1/models", s.requireAuth(s.ListModelsHandler))
	mux.HandleFunc("/v1/models/", s.requireAuth(s.ModelHandler))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// AnalyzeRequest is the input payload for /v1/analyze.
type AnalyzeRequest struct {
	Transaction fraud.Transaction `json:"transaction"`
}

func (s *Server) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.reply(w, "analyze", http.StatusBadRequest, map[string]string{"error": "unable to read body"})
		return
	}
	var req AnalyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.reply(w, "analyze", http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	res, err := s.orch.Analyze(r.Context(), &req.Transaction)
	if err != nil {
		if errors.Is(err, fraud.ErrInvalidTransaction) {
			s.reply(w, "analyze", http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		logx.Errorf("analyze failed: %v", err)
		s.reply(w, "analyze", http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	mAnalyzeDuration.Observe(time.Since(start).Seconds())

	s.archive(r.Context(), res)
	s.alert(r.Context(), res)
	s.reply(w, "analyze", http.StatusOK, res)
}

func (s *Server) archive(ctx context.Context, res *fraud.AnalysisResult) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, res); err != nil {
		logx.Errorf("audit record failed for %s: %v", res.AnalysisID, err)
	}
}

func (s *Server) alert(ctx context.Context, res *fraud.AnalysisResult) {
	if s.bus == nil {
		return
	}
	switch res.Verdict.RiskLevel {
	case fraud.RiskHigh, fraud.RiskCritical:
	default:
		return
	}
	err := s.bus.Publish(ctx, notify.Event{
		Type:   notify.TopicFraudAlert,
		Source: "fraudshield",
		Payload: notify.Alert{
			TransactionID: res.TransactionID,
			AnalysisID:    res.AnalysisID,
			RiskLevel:     res.Verdict.RiskLevel,
			FraudScore:    res.Verdict.FraudScore,
			Reasons:       res.Verdict.PrimaryReasons,
		},
	})
	if err != nil {
		logx.Errorf("alert publish failed for %s: %v", res.AnalysisID, err)
		return
	}
	mAlerts.Inc()
}

// TrainRequest is the input payload for /v1/train.
type TrainRequest struct {
	Samples []fraud.TrainingSample `json:"samples"`
}

func (s *Server) TrainHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.reply(w, "train", http.StatusBadRequest, map[string]string{"error": "unable to read body"})
		return
	}
	var req TrainRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.reply(w, "train", http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Samples) == 0 {
		s.reply(w, "train", http.StatusBadRequest, map[string]string{"error": "no samples provided"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()
	summary := s.mgr.TrainAll(ctx, req.Samples)
	s.persistModels(ctx)
	s.reply(w, "train", http.StatusOK, summary)
}

func (s *Server) persistModels(ctx context.Context) {
	if s.models == nil {
		return
	}
	for _, id := range s.orch.NodeIDs() {
		state, err := s.orch.ExportModel(id)
		if err != nil || !state.IsTrained {
			continue
		}
		if err := s.models.Save(ctx, state); err != nil {
			logx.Errorf("model persist failed for %s: %v", id, err)
		}
	}
}

// RestoreModels imports every persisted snapshot at startup. Missing or
// stale snapshots are skipped, never fatal.
func (s *Server) RestoreModels(ctx context.Context) {
	if s.models == nil {
		return
	}
	restored := 0
	for _, id := range s.orch.NodeIDs() {
		state, err := s.models.Load(ctx, id)
		if err != nil {
			if !errors.Is(err, store.ErrModelNotFound) {
				logx.Errorf("model load failed for %s: %v", id, err)
			}
			continue
		}
		if err := s.orch.ImportModel(state); err != nil {
			logx.Errorf("model import failed for %s: %v", id, err)
			continue
		}
		restored++
	}
	if restored > 0 {
		logx.Infof("restored %d model snapshots", restored)
	}
}

func (s *Server) ListModelsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	type modelInfo struct {
		NodeID    string `json:"node_id"`
		Version   string `json:"version"`
		Algorithm string `json:"algorithm"`
		IsTrained bool   `json:"is_trained"`
	}
	var infos []modelInfo
	for _, id := range s.orch.NodeIDs() {
		state, err := s.orch.ExportModel(id)
		if err != nil {
			continue
		}
		infos = append(infos, modelInfo{
			NodeID:    state.NodeID,
			Version:   state.Version,
			Algorithm: state.Algorithm,
			IsTrained: state.IsTrained,
		})
	}
	s.reply(w, "models", http.StatusOK, map[string]any{"models": infos})
}

// ModelHandler serves /v1/models/{id}/export and /v1/models/{id}/import.
func (s *Server) ModelHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/models/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	nodeID, action := parts[0], parts[1]

	switch action {
	case "export":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		state, err := s.orch.ExportModel(nodeID)
		if err != nil {
			s.reply(w, "export", http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		s.reply(w, "export", http.StatusOK, state)
	case "import":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.reply(w, "import", http.StatusBadRequest, map[string]string{"error": "unable to read body"})
			return
		}
		var state fraud.ModelState
		if err := json.Unmarshal(body, &state); err != nil {
			s.reply(w, "import", http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		if state.NodeID != nodeID {
			s.reply(w, "import", http.StatusBadRequest, map[string]string{"error": "node id mismatch"})
			return
		}
		if err := s.orch.ImportModel(state); err != nil {
			s.reply(w, "import", http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		if s.models != nil {
			if err := s.models.Save(r.Context(), state); err != nil {
				logx.Errorf("model persist failed for %s: %v", nodeID, err)
			}
		}
		s.reply(w, "import", http.StatusOK, map[string]string{"status": "imported", "node_id": nodeID})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) reply(w http.ResponseWriter, endpoint string, status int, v any) {
	mRequests.WithLabelValues(endpoint, httpStatusClass(status)).Inc()
	writeJSON(w, status, v)
}

func httpStatusClass(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
