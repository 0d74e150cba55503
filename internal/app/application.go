package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"

	"counselrelay/internal/api"
	"counselrelay/internal/config"
	"counselrelay/internal/conversation"
	"counselrelay/internal/database"
	"counselrelay/internal/hub"
	"counselrelay/internal/router"
	"counselrelay/internal/websocket"
	pkgdatabase "counselrelay/pkg/database"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config        *config.Config
	dbManager     *database.Manager
	registry      *websocket.Registry
	conversations *conversation.Service
	messageRouter *router.Router
	eventHub      *hub.Hub
	apiServer     *api.Server
	httpServer    *http.Server
	listener      net.Listener
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Registry → Conversation → Router → Hub → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Database manager and schema
	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
		MigrationsPath:  cfg.Database.MigrationsPath,
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	if err := dbManager.Migrate(); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Println("Database migrations applied successfully")

	// STEP 2: Presence registry, which is also the outbound emitter
	registry := websocket.NewRegistry()

	// STEP 3: Conversation bootstrap over the store
	conversations := conversation.NewService(dbManager, registry, cfg.Conversation.Timeout)

	// STEP 4: Router and hub
	messageRouter := router.NewRouter(registry, conversations, cfg.Router)
	eventHub := hub.NewHub(registry, messageRouter)

	// STEP 5: HTTP surface
	wsHandler := websocket.NewHandler(eventHub, cfg.WebSocket, cfg.CORS.AllowedOrigins)
	apiServer := api.NewServer(dbManager, conversations, registry, wsHandler, cfg.CORS.AllowedOrigins)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:        cfg,
		dbManager:     dbManager,
		registry:      registry,
		conversations: conversations,
		messageRouter: messageRouter,
		eventHub:      eventHub,
		apiServer:     apiServer,
		httpServer:    httpServer,
	}, nil
}

// Start begins application execution
// Hub starts first to handle events, then the HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting counselrelay on %s", app.httpServer.Addr)

	if err := app.eventHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		app.eventHub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("counselrelay started successfully")
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → Hub → in-flight bootstraps → connections → Database
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down counselrelay")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := app.eventHub.Stop(); err != nil {
		log.Printf("Event hub shutdown error: %v", err)
	}

	// Bootstraps still write to the store, so they finish before it closes
	if err := app.messageRouter.Wait(ctx); err != nil {
		log.Printf("Conversation bootstrap drain incomplete: %v", err)
	}

	for _, conn := range app.registry.Connections() {
		_ = conn.Close()
	}

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("counselrelay shutdown complete")
	return nil
}

// GetAddr returns the address the server listens on
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the HTTP surface, mainly for tests
func (app *Application) Handler() http.Handler {
	return app.apiServer
}
