// Command couchplay starts the party-game server: a display opens a room,
// phones scan the QR code and join as controllers, and the server runs the
// game simulation at a fixed tick rate.
//
// It supports two modes:
//  1. "server" (default) – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs the MCP operator server over stdio alongside the game services
//
// Flags control host/port, catalog directory, debug logging, version output,
// and optional ngrok tunneling for easy external access during development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/couchplay/server/api"
	"github.com/couchplay/server/auth"
	"github.com/couchplay/server/config"
	"github.com/couchplay/server/game/catalog"
	"github.com/couchplay/server/game/service"
	"github.com/couchplay/server/game/session"
	"github.com/couchplay/server/transport/mcp"
	"github.com/couchplay/server/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Couchplay Server"
)

// Configuration flags control how the server starts and which services are enabled.
var (
	port         = flag.Int("port", 0, "HTTP server port (overrides PORT)")
	host         = flag.String("host", "", "HTTP server host (overrides HOST)")
	catalogDir   = flag.String("catalog-dir", "", "Directory of game definition overrides (overrides CATALOG_DIR)")
	debug        = flag.Bool("debug", false, "Enable debug logging")
	version      = flag.Bool("version", false, "Show version information")
	ngrokEnabled = flag.Bool("ngrok", false, "Enable ngrok tunnel")
	ngrokAuth    = flag.String("ngrok-auth", "", "Ngrok auth token (or use NGROK_AUTHTOKEN env var)")
	ngrokDomain  = flag.String("ngrok-domain", "", "Custom ngrok domain (optional)")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [MODE]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "%s v%s\n\n", AppName, Version)
		fmt.Fprintf(os.Stderr, "Available modes:\n")
		fmt.Fprintf(os.Stderr, "  server, http     Run HTTP server with API, WebSocket, and MCP endpoint (default)\n")
		fmt.Fprintf(os.Stderr, "  stdio-mcp        Run MCP operator server over stdio\n")
		fmt.Fprintf(os.Stderr, "  mcp-stdio        Alias for stdio-mcp\n")
		fmt.Fprintf(os.Stderr, "  mcp              Alias for stdio-mcp\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                    # Run HTTP server on default port 8080\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -port 9090         # Run HTTP server on port 9090\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s stdio-mcp          # Run MCP operator server over stdio\n", os.Args[0])
	}
}

// services bundles everything the transports are built on.
type services struct {
	cfg     *config.Config
	rooms   *session.Manager
	users   *service.InMemoryUserStore
	matches *service.InMemoryMatchStore
	games   *catalog.Catalog
	tokens  *auth.Service
	hub     *websocket.Hub
}

// main parses flags, initializes services, and starts the selected mode.
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		// Only log if it's not a "file not found" error
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	} else {
		log.Println("Loaded environment variables from .env file")
	}

	flag.Parse()

	// Show version if requested
	if *version {
		fmt.Printf("%s v%s\n", AppName, Version)
		os.Exit(0)
	}

	// Setup logging
	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}

	// Determine mode from command
	args := flag.Args()
	mode := "server" // default
	if len(args) > 0 {
		mode = args[0]
	}

	log.Printf("Starting %s v%s (mode: %s)", AppName, Version, mode)

	svc, err := initializeServices()
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer svc.rooms.Shutdown()

	switch mode {
	case "stdio-mcp", "mcp-stdio", "mcp":
		runStdioMCP(svc)

	case "server", "http":
		runHTTPServer(svc)

	default:
		log.Fatalf("Unknown mode: %s. Use 'server' (default) or 'stdio-mcp'", mode)
	}
}

// initializeServices wires the stores, the room registry and the websocket
// hub, and starts the room cleanup routine.
func initializeServices() (*services, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if *catalogDir != "" {
		cfg.CatalogDir = *catalogDir
	}
	if *port != 0 {
		cfg.Port = fmt.Sprintf("%d", *port)
	}
	if *host != "" {
		cfg.Host = *host
	}

	games := catalog.Builtin()
	if cfg.CatalogDir != "" {
		games, err = catalog.Load(cfg.CatalogDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load game catalog: %w", err)
		}
		log.Printf("Loaded game catalog from %s (%d games)", cfg.CatalogDir, len(games.List()))
	}

	users := service.NewInMemoryUserStore()
	matches := service.NewInMemoryMatchStore()
	tokens := auth.NewService(cfg.JWTSecret, cfg.TokenTTL)

	// The hub and the room registry reference each other: the registry
	// publishes snapshots through the hub, the hub feeds joins, leaves and
	// input into the registry.
	var hub *websocket.Hub
	rooms := session.NewManager(session.Options{
		TickInterval:  cfg.TickInterval(),
		SnapshotEvery: cfg.SnapshotEvery,
		Identity:      users,
		Recorder:      matches,
		Broadcaster: broadcasterFunc(func(roomID string, snap session.Snapshot) {
			hub.BroadcastState(roomID, snap)
		}),
	})
	hub = websocket.NewHub(rooms, tokens, cfg.InputRateLimit, cfg.InputRateWindow)

	go roomCleanupRoutine(rooms, cfg.RoomRetention)

	return &services{
		cfg:     cfg,
		rooms:   rooms,
		users:   users,
		matches: matches,
		games:   games,
		tokens:  tokens,
		hub:     hub,
	}, nil
}

// broadcasterFunc adapts a closure to the registry's Broadcaster interface.
type broadcasterFunc func(roomID string, snap session.Snapshot)

func (f broadcasterFunc) BroadcastState(roomID string, snap session.Snapshot) {
	f(roomID, snap)
}

// roomCleanupRoutine periodically prunes finished rooms past the retention
// window.
func roomCleanupRoutine(rooms *session.Manager, retention time.Duration) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		if removed := rooms.CleanupFinished(retention); removed > 0 {
			log.Printf("Cleaned up %d finished rooms", removed)
		}
	}
}

// runHTTPServer starts the HTTP server with REST API, WebSocket hub, and an /mcp endpoint.
// If ngrok is enabled (via flag or environment), it also provisions a public tunnel.
func runHTTPServer(svc *services) {
	apiServer := api.NewServer(svc.rooms, svc.users, svc.matches, svc.games, svc.tokens, svc.cfg.AppURL, svc.hub)

	addr := fmt.Sprintf("%s:%s", svc.cfg.Host, svc.cfg.Port)

	ops := mcp.NewOps(svc.rooms, svc.matches, svc.games)

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := ops.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Setup graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Printf("HTTP server listening on %s", addr)
		log.Printf("REST API: http://%s/api", addr)
		log.Printf("WebSocket: ws://%s/ws?token=<token>", addr)
		log.Printf("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Check if ngrok should be enabled (from flag or environment)
	ngrokShouldRun := *ngrokEnabled
	if !ngrokShouldRun {
		if envEnabled := os.Getenv("NGROK_ENABLED"); envEnabled == "true" || envEnabled == "1" {
			ngrokShouldRun = true
		}
	}

	if ngrokShouldRun {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrokTunnel(ctx, mainRouter)
		}()
	}

	// Wait for shutdown signal
	sig := <-stop
	log.Printf("Received signal: %v. Shutting down...", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	wg.Wait()
	log.Println("Server stopped")
}

// runNgrokTunnel provisions a public tunnel and serves the router through it.
func runNgrokTunnel(ctx context.Context, handler http.Handler) {
	authToken := *ngrokAuth
	if authToken == "" {
		authToken = os.Getenv("NGROK_AUTHTOKEN")
		if authToken == "" {
			authToken = os.Getenv("NGROK_AUTH_TOKEN")
		}
	}

	if authToken == "" {
		log.Println("WARNING: Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	log.Println("Starting ngrok tunnel...")

	domain := *ngrokDomain
	if domain == "" {
		domain = os.Getenv("NGROK_DOMAIN")
	}

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		log.Printf("Using custom ngrok domain: %s", domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx,
		tunnel,
		ngrok.WithAuthtoken(authToken),
	)
	if err != nil {
		log.Printf("Failed to start ngrok tunnel: %v", err)
		return
	}
	defer func() {
		if err := tun.Close(); err != nil {
			log.Printf("Failed to close ngrok tunnel: %v", err)
		}
	}()

	ngrokURL := tun.URL()
	log.Printf("Ngrok tunnel established: %s", ngrokURL)
	log.Printf("  REST API (ngrok): %s/api", ngrokURL)
	log.Printf("  WebSocket (ngrok): %s/ws?token=<token>", ngrokURL)
	log.Printf("  Phones can join at: %s/join/<code>", ngrokURL)

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed {
		log.Printf("Ngrok server error: %v", err)
	}
	log.Println("Ngrok tunnel closed")
}

// runStdioMCP runs the MCP operator server over stdio against the
// in-process game services.
func runStdioMCP(svc *services) {
	ops := mcp.NewOps(svc.rooms, svc.matches, svc.games)

	log.Println("MCP stdio server ready")
	if err := server.ServeStdio(ops.GetMCPServer()); err != nil {
		log.Fatalf("MCP stdio server error: %v", err)
	}
}
