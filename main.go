package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"

	"nala-server/bloom"
	"nala-server/config"
	"nala-server/db"
	"nala-server/handlers"
	"nala-server/ingestion"
	"nala-server/llm"
	"nala-server/middleware"
	"nala-server/predictor"
	"nala-server/quiz"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	// Initialize database connection pool
	pool, err := db.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	// Ensure database schema is set up
	if err := db.CreateSchema(pool); err != nil {
		log.Fatalf("Error creating database schema: %v", err)
	}

	// LLM client, injected into the engines
	client, err := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	if err != nil {
		log.Fatalf("Error creating LLM client: %v", err)
	}

	blooms := bloom.NewEngine(pool, client)
	quizzes := quiz.NewEngine(pool, client, blooms)

	model, err := predictor.Load(cfg.PredictorArtifact)
	if err != nil {
		log.Fatalf("Error loading predictor artifact: %v", err)
	}

	// Initial knowledge graph load
	if cfg.FixturesPath != "" {
		ingestion.ProcessAllModules(pool, cfg.FixturesPath)
	}

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	router := gin.Default()

	// Load HTML templates for admin UI
	renderer := multitemplate.NewRenderer()
	renderer.AddFromFiles("admin_dashboard", "templates/layout.html", "templates/admin_dashboard.html")
	router.HTMLRender = renderer

	// Middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	authMiddleware := middleware.AuthMiddleware(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer)

	router.GET("/health", handlers.Health(pool))

	// API Routes
	api := router.Group("/api")
	api.Use(authMiddleware)
	{
		api.GET("/students/", handlers.GetStudents(pool))
		api.GET("/student/:id", handlers.GetStudent(pool))
		api.GET("/module/", handlers.GetModules(pool))
		api.GET("/module/:module_id", handlers.GetModule(pool))
		api.GET("/nodes/", handlers.GetNodes(pool))
		api.GET("/relationships/", handlers.GetRelationships(pool))

		api.POST("/bloom/initialize/", handlers.BloomInitialize(pool, blooms, cfg.ChatHistoryDir))
		api.POST("/bloom/messages/", handlers.BloomMessages(pool, blooms))
		api.GET("/bloom/summary/", handlers.BloomSummary(blooms))
		api.POST("/bloom/restore/", handlers.BloomRestore(pool, blooms))
		api.GET("/bloom/progression/", handlers.BloomProgression(blooms))

		api.GET("/module/:module_id/quiz/weekly/", handlers.GetWeeklyQuiz(pool, quizzes))
		api.POST("/module/:module_id/quiz/generate/", handlers.GenerateQuiz(pool, quizzes))
		api.PATCH("/quiz/:quiz_id/answer/", handlers.AnswerQuiz(quizzes))
		api.POST("/quiz/:quiz_id/submit/", handlers.SubmitQuiz(quizzes))

		api.GET("/display-chat-history/", handlers.DisplayChatHistory(cfg.ChatHistoryDir))
		api.GET("/percentage-learning-style/", handlers.PercentageLearningStyle(pool))
		api.GET("/classify-chat-history/", handlers.ClassifyChatHistory(client, cfg.ChatHistoryDir))
		api.GET("/percentage-chat-history/", handlers.PercentageChatHistory(pool, blooms, client, cfg.ChatHistoryDir))
		api.GET("/time-spent-per-topic/", handlers.TimeSpentPerTopic(pool, blooms, client, cfg.ChatHistoryDir))

		api.POST("/predict", handlers.Predict(model))
	}

	// Admin UI Routes
	admin := router.Group("/admin")
	admin.Use(authMiddleware)
	admin.Use(middleware.RoleCheckMiddleware([]string{"admin", "instructor"}))
	{
		admin.GET("/dashboard", handlers.AdminDashboard(pool))
		admin.POST("/modules", handlers.AdminCreateModule(pool))
		admin.PUT("/modules/:module_id", handlers.AdminUpdateModule(pool))
		admin.DELETE("/modules/:module_id", handlers.AdminDeleteModule(pool))
		admin.GET("/error_logs", handlers.AdminErrorLogs(pool))
		admin.GET("/user_activity", handlers.AdminUserActivity(pool))
		admin.GET("/settings", handlers.AdminSettings(pool))
		admin.POST("/settings", handlers.AdminUpdateSettings(pool))
		admin.POST("/ingest/:module_id", handlers.TriggerIngestion(pool, cfg.FixturesPath))
	}

	// Periodic knowledge graph refresh
	go func() {
		ticker := time.NewTicker(cfg.IngestionInterval)
		defer ticker.Stop()
		for range ticker.C {
			log.Println("Running scheduled knowledge graph ingestion...")
			moduleIDs, err := db.GetAllModuleIDs(pool)
			if err != nil {
				log.Printf("Error getting module ids for scheduled ingestion: %v", err)
				continue
			}
			for _, moduleID := range moduleIDs {
				err := ingestion.ProcessModuleData(pool, moduleID, cfg.FixturesPath)
				if err != nil {
					log.Printf("Error during scheduled ingestion for %s: %v", moduleID, err)
					db.LogAdminEvent(pool, "system", "ingestion_failed", moduleID, fmt.Sprintf("Error: %v", err))
				} else {
					db.LogAdminEvent(pool, "system", "ingestion_success", moduleID, "Knowledge graph refreshed.")
				}
			}
		}
	}()

	// Start the server
	srv := &http.Server{
		Addr:    cfg.ServerPort,
		Handler: router,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("NALA Server starting on %s", cfg.ServerPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server startup error: %v", err)
	}
	log.Println("Server exited gracefully.")
}
