// Package server exposes the HTTP API under /api/v1 and the gRPC health
// endpoint that runs beside it.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/ape/internal/assist"
	"github.com/joseph-ayodele/ape/internal/batch"
	"github.com/joseph-ayodele/ape/internal/cost"
	"github.com/joseph-ayodele/ape/internal/export"
	"github.com/joseph-ayodele/ape/internal/jobs"
	"github.com/joseph-ayodele/ape/internal/llm"
	"github.com/joseph-ayodele/ape/internal/repository"
)

// Pinger reports database health.
type Pinger interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

// Providers lists configured LLM adapters. *llm.Registry implements it.
type Providers interface {
	Providers() []string
}

// Deps are the components the handlers call. A nil Generator makes the
// assist routes answer NO_PROVIDERS and a nil Gatherer serves /metrics from
// the default registry.
//
// Conversations is optional. Without it /conversations is not registered.
type Deps struct {
	Extractor     Extractor
	Tracker       *jobs.Tracker
	Batches       *batch.Controller
	Pool          *batch.Pool
	Queue         *batch.PriorityQueue
	Exporter      *export.Service
	Generator     assist.Generator
	Conversations repository.ConversationRepository
	Providers     Providers
	Costs         *cost.Tracker
	DB            Pinger
	Gatherer      prometheus.Gatherer
}

type Config struct {
	CORSOrigins  []string
	Debug        bool
	TempDir      string
	ContextTurns int
	Lenient      bool
}

type Server struct {
	engine *gin.Engine
	logger *slog.Logger
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.MaxMultipartMemory = 32 << 20
	engine.Use(requestID(), requestLogger(logger), recovery(logger))

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", headerUserID, headerRequestID}
	corsConfig.ExposeHeaders = []string{headerRequestID, "Content-Disposition"}
	engine.Use(cors.New(corsConfig))

	s := &Server{engine: engine, logger: logger}
	s.routes(cfg, deps)
	return s
}

func (s *Server) routes(cfg Config, deps Deps) {
	sys := &SystemServer{providers: deps.Providers, costs: deps.Costs, db: deps.DB, logger: s.logger}
	s.engine.GET("/healthz", sys.Health)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api/v1")
	api.GET("/llm/providers", sys.ListProviders)
	api.GET("/costs", sys.Costs)
	api.GET("/costs/monthly", sys.MonthlyCosts)

	ex := NewExtractServer(deps.Extractor, deps.Tracker, cfg.TempDir, s.logger)
	api.POST("/extract", ex.Extract)

	js := NewJobsServer(deps.Tracker, s.logger)
	api.GET("/jobs", js.List)
	api.GET("/jobs/active", js.ListActive)
	api.GET("/jobs/:id", js.Get)
	api.DELETE("/jobs/:id", js.Cancel)

	bs := NewBatchServer(deps.Batches, deps.Pool, deps.Queue, deps.Exporter, s.logger)
	b := api.Group("/batch", requireUser())
	{
		b.POST("/upload", bs.Upload)
		b.GET("/status/:id", bs.Status)
		b.GET("/jobs", bs.List)
		b.DELETE("/jobs/:id", bs.Delete)
		b.GET("/:id/export", bs.Export)
		b.GET("/queue", bs.Queue)
	}

	var chatOpts []assist.ChatOption
	if deps.Conversations != nil {
		chatOpts = append(chatOpts, assist.WithConversations(deps.Conversations))
	}
	as := NewAssistServer(deps.Generator, deps.Tracker, cfg.ContextTurns, cfg.Lenient, s.logger, chatOpts...)
	api.POST("/chat", as.Chat)
	api.POST("/chat/stream", as.ChatStream)
	api.POST("/code", as.Code)
	api.POST("/research", as.Research)

	if deps.Conversations != nil {
		conv := api.Group("/conversations", requireUser())
		{
			conv.POST("", as.CreateConversation)
			conv.GET("", as.ListConversations)
			conv.GET("/:id", as.GetConversation)
			conv.DELETE("/:id", as.DeleteConversation)
			conv.POST("/:id/messages", as.SendMessage)
			conv.POST("/:id/messages/stream", as.StreamMessage)
		}
	}
}

// Handler returns the router for an http.Server or httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// noGenerator answers every call with llm.ErrNoProviderConfigured.
type noGenerator struct{}

func (noGenerator) Generate(context.Context, []llm.Message, ...llm.CallOption) (llm.GenerationResult, error) {
	return llm.GenerationResult{}, errNoProviders
}

func (noGenerator) Stream(context.Context, []llm.Message, ...llm.CallOption) (<-chan llm.Chunk, error) {
	return nil, errNoProviders
}
