package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	jsonhandler "github.com/apex/log/handlers/json"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"appraisal-service/config"
	"appraisal-service/database"
	"appraisal-service/handlers"
	"appraisal-service/images"
	"appraisal-service/llm"
	"appraisal-service/metrics"
	"appraisal-service/middleware"
	"appraisal-service/openai"
	"appraisal-service/rabbitmq"
	"appraisal-service/service"
	"appraisal-service/stubllm"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	log.SetHandler(jsonhandler.New(os.Stdout))
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	client := buildClient(cfg)

	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close()

	// Event publishing is optional infrastructure.
	var publisher service.EventPublisher
	if p, err := rabbitmq.NewPublisher(cfg.GetAMQPURL(), cfg.AMQPExchange, cfg.AppraisalRoutingKey); err != nil {
		log.Warnf("RabbitMQ unavailable, events disabled: %v", err)
	} else {
		publisher = p
		defer p.Close()
	}

	metrics.Register()

	svc := service.New(client, db, publisher)
	store := images.NewStore(db, cfg.BaseURL, cfg.MaxUploadBytes)
	tts := openai.NewTTSClient(cfg.OpenAIAPIKey, cfg.OpenAITTSModel, cfg.OpenAITTSVoice)
	h := handlers.New(svc, store, db, tts, cfg.BaseURL)

	router := gin.Default()
	router.Use(middleware.CORS(), middleware.SecurityHeaders())
	router.MaxMultipartMemory = cfg.MaxUploadBytes

	router.GET("/health", h.Health)
	router.GET("/api/v1/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)

	api := router.Group("/api/v1")
	api.Use(limiter.Middleware())
	{
		// Images are fetched back by the vision model without credentials.
		api.GET("/images/:id", h.GetImage)
		api.GET("/audio/:id", h.GetAudio)

		authed := api.Group("")
		authed.Use(middleware.Auth(cfg.JWTSecret))
		{
			authed.POST("/appraisals", h.CreateAppraisal)
			authed.GET("/appraisals/:id", h.GetAppraisal)
			authed.POST("/appraisals/:id/refine", h.RefineAppraisal)
			authed.POST("/appraisals/:id/expert", h.ExpertAppraisal)
			authed.POST("/images", h.UploadImage)
			authed.POST("/audio-summaries", h.CreateAudioSummary)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("starting HTTP server on port %s, invocation mode %s", cfg.Port, cfg.InvocationMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	log.Info("server exited")
}

// buildClient selects the vision backend from configuration.
func buildClient(cfg *config.Config) llm.Client {
	switch cfg.InvocationMode {
	case "stub":
		log.Warn("using the stub vision client; reports are placeholders")
		return stubllm.New()
	case "assistant":
		if cfg.OpenAIAPIKey == "" {
			log.Fatal("OPENAI_API_KEY environment variable is required")
		}
		if cfg.OpenAIAssistantID == "" {
			log.Fatal("OPENAI_ASSISTANT_ID environment variable is required in assistant mode")
		}
		return openai.NewAssistantClient(cfg.OpenAIAPIKey, cfg.OpenAIAssistantID, cfg.PollInterval, cfg.PollTimeout)
	default:
		if cfg.OpenAIAPIKey == "" {
			log.Fatal("OPENAI_API_KEY environment variable is required")
		}
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}
}
