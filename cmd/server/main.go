package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/facturasur/invoice-export-service/api"
	"github.com/facturasur/invoice-export-service/internal/auth"
	"github.com/facturasur/invoice-export-service/internal/db"
	"github.com/facturasur/invoice-export-service/internal/logger"
	"github.com/facturasur/invoice-export-service/internal/models"
	"github.com/facturasur/invoice-export-service/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	config, err := loadConfig("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("invoice-export-service", config.Log.Level, config.Log.Environment)

	if err := auth.Init(); err != nil {
		log.Error("failed to initialize auth", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var repo *db.Repository
	pool, err := db.NewPool(ctx, log)
	if err != nil {
		log.Warn("database not available, running without persistence", "error", err)
	} else {
		defer pool.Close()
		repo = db.NewRepository(pool)
	}

	store, err := storage.New(ctx)
	if err != nil {
		log.Warn("object storage not available, documents will not be kept", "error", err)
		store = nil
	}

	handler := api.NewHandler(config, log, repo, store)
	router := handler.SetupRoutes()

	login := auth.NewLoginService(pool, log)
	router.HandleFunc("/api/login", login.LoginHandler).Methods("POST")

	protected := auth.JWTMiddleware(router)

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	log.Info("starting invoice export service",
		"version", api.Version,
		"addr", addr,
		"ai_provider", config.AI.DefaultProvider,
		"ocr_engine", config.OCR.Engine,
		"database", repo != nil,
		"storage", store != nil,
	)

	if err := http.ListenAndServe(addr, protected); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config models.Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Environment overrides.
	if port := os.Getenv("PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Port)
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		config.Log.Environment = env
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.AI.OpenAI.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.AI.OpenAI.BaseURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		config.AI.OpenAI.Model = model
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.AI.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		config.AI.Gemini.Model = model
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.AI.Ollama.BaseURL = baseURL
	}
	if provider := os.Getenv("AI_PROVIDER"); provider != "" {
		config.AI.DefaultProvider = provider
	}
	if cuit := os.Getenv("RECEPTOR_CUIT"); cuit != "" {
		config.Pipeline.ReceptorCUIT = cuit
	}

	if config.Port == 0 {
		config.Port = 8080
	}
	return &config, nil
}
