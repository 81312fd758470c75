package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"anomaly-monitor/internal/cache"
	"anomaly-monitor/internal/config"
	"anomaly-monitor/internal/detector"
	"anomaly-monitor/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	detectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detections_total",
		Help: "Total number of detection calls by engine and alert type",
	}, []string{"engine", "alert_type"})

	alertsRaised = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_raised_total",
		Help: "Total number of detection calls that raised an alert",
	})

	lastScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "last_detection_score",
		Help: "Score of the most recent detection call per engine",
	}, []string{"engine"})
)

type Server struct {
	router  *mux.Router
	alerts  *cache.AlertStore
	rise    *detector.RiseDetector
	decline *detector.DeclineDetector
}

func NewServer(cfg config.ServerConfig, fileCfg config.FileConfig) *Server {
	alerts, err := cache.NewAlertStore(cfg.RedisAddr)
	if err != nil {
		// Alert history is advisory; detection works without it.
		log.Printf("redis unavailable at %s, alert history disabled: %v", cfg.RedisAddr, err)
		alerts = nil
	}

	s := &Server{
		router:  mux.NewRouter(),
		alerts:  alerts,
		rise:    detector.NewRiseDetector(fileCfg.Rise, fileCfg.Window.MaxSize),
		decline: detector.NewDeclineDetector(fileCfg.Decline, fileCfg.Window.MaxSize),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(requestIDMiddleware)

	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")

	s.router.HandleFunc("/api/anomaly/window/detect", s.riseDetectHandler).Methods("GET")
	s.router.HandleFunc("/api/anomaly/window/batch-points", s.riseBatchPointsHandler).Methods("POST")
	s.router.HandleFunc("/api/anomaly/window/batch-points-with-config", s.riseBatchPointsWithConfigHandler).Methods("POST")
	s.router.HandleFunc("/api/anomaly/window/values", s.riseValuesHandler).Methods("POST")
	s.router.HandleFunc("/api/anomaly/window/values-with-config", s.riseValuesWithConfigHandler).Methods("POST")

	s.router.HandleFunc("/api/decline/batch-points", s.declineBatchPointsHandler).Methods("POST")
	s.router.HandleFunc("/api/decline/batch-points-with-config", s.declineBatchPointsWithConfigHandler).Methods("POST")
	s.router.HandleFunc("/api/decline/values", s.declineValuesHandler).Methods("POST")
	s.router.HandleFunc("/api/decline/values-with-config", s.declineValuesWithConfigHandler).Methods("POST")

	s.router.HandleFunc("/api/alerts/recent", s.recentAlertsHandler).Methods("GET")
	s.router.Handle("/metrics/prometheus", promhttp.Handler())
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		log.Printf("request %s %s id=%s", r.Method, r.URL.Path, requestID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)

	observeRequest(r, start, "200")
}

// writeReport publishes the report, records metrics and stores raised
// alerts in the history.
func (s *Server) writeReport(w http.ResponseWriter, r *http.Request, start time.Time, engine, metric string, report models.AlertReport) {
	detectionsTotal.WithLabelValues(engine, string(report.AlertType)).Inc()
	lastScore.WithLabelValues(engine).Set(report.TotalScore)

	if report.IsAlert {
		alertsRaised.Inc()
		log.Printf("alert raised: engine=%s metric=%s type=%s score=%.2f", engine, metric, report.AlertType, report.TotalScore)
		if s.alerts != nil {
			if err := s.alerts.StoreReport(metric, report); err != nil {
				log.Printf("failed to store alert report: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)

	observeRequest(r, start, "200")
}

func observeRequest(r *http.Request, start time.Time, status string) {
	requestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
}

func badRequest(w http.ResponseWriter, r *http.Request, start time.Time, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
	observeRequest(r, start, "400")
}

func metricName(r *http.Request) string {
	if metric := r.URL.Query().Get("metric"); metric != "" {
		return metric
	}
	return "default"
}

func (s *Server) riseDetectHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		badRequest(w, r, start, fmt.Errorf("invalid date: %w", err))
		return
	}
	value, err := strconv.ParseFloat(r.URL.Query().Get("value"), 64)
	if err != nil {
		badRequest(w, r, start, fmt.Errorf("invalid value: %w", err))
		return
	}

	report := s.rise.AddPointAndDetect(models.NewDate(date), value, nil)
	s.writeReport(w, r, start, "rise", metricName(r), report)
}

type risePointsRequest struct {
	DataPoints []models.DataPoint   `json:"dataPoints"`
	Config     *config.RiseOverride `json:"config,omitempty"`
}

type riseValuesRequest struct {
	DataPoints []*float64           `json:"dataPoints"`
	Config     *config.RiseOverride `json:"config,omitempty"`
}

type declinePointsRequest struct {
	DataPoints []models.DataPoint      `json:"dataPoints"`
	Config     *config.DeclineOverride `json:"config,omitempty"`
}

type declineValuesRequest struct {
	DataPoints []*float64              `json:"dataPoints"`
	Config     *config.DeclineOverride `json:"config,omitempty"`
}

func (s *Server) riseBatchPointsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var points []models.DataPoint
	if err := json.NewDecoder(r.Body).Decode(&points); err != nil {
		badRequest(w, r, start, err)
		return
	}

	report := s.rise.DetectPoints(points, nil)
	s.writeReport(w, r, start, "rise", metricName(r), report)
}

func (s *Server) riseBatchPointsWithConfigHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req risePointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, start, err)
		return
	}

	report := s.rise.DetectPoints(req.DataPoints, req.Config)
	s.writeReport(w, r, start, "rise", metricName(r), report)
}

func (s *Server) riseValuesHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var values []*float64
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		badRequest(w, r, start, err)
		return
	}

	report := s.rise.DetectValues(values, nil)
	s.writeReport(w, r, start, "rise", metricName(r), report)
}

func (s *Server) riseValuesWithConfigHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req riseValuesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, start, err)
		return
	}

	report := s.rise.DetectValues(req.DataPoints, req.Config)
	s.writeReport(w, r, start, "rise", metricName(r), report)
}

func (s *Server) declineBatchPointsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var points []models.DataPoint
	if err := json.NewDecoder(r.Body).Decode(&points); err != nil {
		badRequest(w, r, start, err)
		return
	}

	report := s.decline.DetectPoints(points, nil)
	s.writeReport(w, r, start, "decline", metricName(r), report)
}

func (s *Server) declineBatchPointsWithConfigHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req declinePointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, start, err)
		return
	}

	report := s.decline.DetectPoints(req.DataPoints, req.Config)
	s.writeReport(w, r, start, "decline", metricName(r), report)
}

func (s *Server) declineValuesHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var values []*float64
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		badRequest(w, r, start, err)
		return
	}

	report := s.decline.DetectValues(values, nil)
	s.writeReport(w, r, start, "decline", metricName(r), report)
}

func (s *Server) declineValuesWithConfigHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req declineValuesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, start, err)
		return
	}

	report := s.decline.DetectValues(req.DataPoints, req.Config)
	s.writeReport(w, r, start, "decline", metricName(r), report)
}

func (s *Server) recentAlertsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.alerts == nil {
		http.Error(w, "alert history unavailable", http.StatusServiceUnavailable)
		observeRequest(r, start, "503")
		return
	}

	count := int64(10)
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			badRequest(w, r, start, fmt.Errorf("invalid count: %q", raw))
			return
		}
		count = parsed
	}

	reports, err := s.alerts.RecentReports(count)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		observeRequest(r, start, "500")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reports)

	observeRequest(r, start, "200")
}

func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(ctx); err != nil {
			log.Fatalf("Could not gracefully shutdown the server: %v", err)
		}
		close(done)
	}()

	log.Printf("Server is ready to handle requests at %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("could not listen on %s: %w", addr, err)
	}

	<-done
	log.Println("Server stopped")
	return nil
}

func main() {
	serverCfg := config.FromEnv()

	fileCfg, err := config.Load(serverCfg.ConfigFile)
	if err != nil {
		log.Fatal(err)
	}

	server := NewServer(serverCfg, fileCfg)

	if err := server.Run(":" + serverCfg.Port); err != nil {
		log.Fatal(err)
	}
}
