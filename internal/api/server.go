package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/optiq-labs/optiq/internal/history"
	"github.com/optiq-labs/optiq/pkg/engine"
	"github.com/optiq-labs/optiq/pkg/models"
)

// Server represents the advisor API server
type Server struct {
	router *gin.Engine
	engine *engine.Engine
	repo   *history.Repository
	port   string
}

// NewServer creates a new API server
func NewServer(eng *engine.Engine, repo *history.Repository, port string) *Server {
	router := gin.Default()

	// Configure CORS
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(config))

	server := &Server{
		router: router,
		engine: eng,
		repo:   repo,
		port:   port,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")

	// Telemetry ingestion
	api.POST("/samples", s.recordSample)
	api.POST("/types/:type/accesses", s.recordAccess)

	// Recommendations (pull-based, cached)
	api.GET("/types/:type/recommendation", s.getRecommendation)

	// Feedback loop
	api.POST("/types/:type/reconcile", s.reconcile)

	// Resource analysis
	api.POST("/resources/analyze", s.analyzeResources)

	// Insights and model state
	api.GET("/insights", s.getInsights)
	api.GET("/statistics", s.getStatistics)
	api.POST("/reset", s.reset)

	// Persisted history
	api.GET("/history/recommendations", s.getRecommendationHistory)
	api.GET("/history/recommendations/range", s.getRecommendationsInRange)
	api.GET("/history/insights", s.getInsightHistory)
	api.GET("/types/:type/reconciliations", s.getReconciliations)
	api.GET("/types/:type/accuracy", s.getAccuracy)
	api.GET("/types/:type/summary", s.getTypeSummary)

	// Health check
	api.GET("/health", s.healthCheck)
}

// Start starts the server
func (s *Server) Start() error {
	return s.router.Run(":" + s.port)
}

// Handler implementations

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now(),
	})
}

func (s *Server) recordSample(c *gin.Context) {
	var sample models.ExecutionSample
	if err := c.ShouldBindJSON(&sample); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := sample.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.engine.Record(sample)
	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}

func (s *Server) recordAccess(c *gin.Context) {
	requestType := c.Param("type")

	var access models.AccessPattern
	if err := c.ShouldBindJSON(&access); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if access.Timestamp.IsZero() {
		access.Timestamp = time.Now()
	}

	s.engine.ObserveAccess(requestType, access)
	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}

func (s *Server) getRecommendation(c *gin.Context) {
	requestType := c.Param("type")

	rec := s.engine.Recommendation(c.Request.Context(), requestType)
	c.JSON(http.StatusOK, rec)
}

// reconcileRequest is the feedback payload: what was applied and what
// was measured afterward.
type reconcileRequest struct {
	Applied  []models.AppliedStrategy `json:"applied"`
	Observed models.ObservedMetrics   `json:"observed"`
}

func (s *Server) reconcile(c *gin.Context) {
	requestType := c.Param("type")

	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.engine.Reconcile(requestType, req.Applied, req.Observed)
	c.JSON(http.StatusAccepted, gin.H{"status": "reconciled"})
}

// resourceRequest carries current usage and capacity per metric
type resourceRequest struct {
	Current  map[string]float64 `json:"current"`
	Capacity map[string]float64 `json:"capacity"`
}

func (s *Server) analyzeResources(c *gin.Context) {
	var req resourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := s.engine.AnalyzeResources(req.Current, req.Capacity)
	c.JSON(http.StatusOK, result)
}

func (s *Server) getInsights(c *gin.Context) {
	insights := s.engine.Insights(c.Request.Context())
	if insights == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No insights available yet"})
		return
	}

	c.JSON(http.StatusOK, insights)
}

func (s *Server) getStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Statistics())
}

func (s *Server) reset(c *gin.Context) {
	s.engine.Reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) getRecommendationHistory(c *gin.Context) {
	requestType := c.Query("type")

	limit := 100 // Default limit
	if l := c.Query("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}

	recs, err := s.repo.GetRecommendations(requestType, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, recs)
}

func (s *Server) getRecommendationsInRange(c *gin.Context) {
	requestType := c.Query("type")
	startStr := c.Query("start")
	endStr := c.Query("end")

	if startStr == "" || endStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start and end times required"})
		return
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start time"})
		return
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end time"})
		return
	}

	recs, err := s.repo.GetRecommendationsInRange(requestType, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, recs)
}

func (s *Server) getInsightHistory(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}

	snapshots, err := s.repo.GetInsightSnapshots(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, snapshots)
}

func (s *Server) getReconciliations(c *gin.Context) {
	requestType := c.Param("type")

	limit := 100
	if l := c.Query("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}

	recs, err := s.repo.GetReconciliations(requestType, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, recs)
}

func (s *Server) getAccuracy(c *gin.Context) {
	requestType := c.Param("type")
	strategy := c.Query("strategy")

	samples, err := s.repo.GetAccuracySamples(requestType, strategy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, samples)
}

func (s *Server) getTypeSummary(c *gin.Context) {
	requestType := c.Param("type")

	summary, err := s.repo.GetTypeSummary(requestType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}
