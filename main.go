package main

import (
	"context"
	"embed"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/lapgate/internal/api"
	"github.com/banshee-data/lapgate/internal/db"
	"github.com/banshee-data/lapgate/internal/gate"
	"github.com/banshee-data/lapgate/internal/race"
	"github.com/banshee-data/lapgate/internal/rplidar"
	"github.com/banshee-data/lapgate/internal/timeutil"
)

var (
	//go:embed static/*
	staticFiles embed.FS
	devMode     = flag.Bool("dev", false, "Run with a simulated LIDAR instead of hardware")
	listen      = flag.String("listen", ":8080", "Listen address")
	dbFile      = flag.String("db", "lapgate.db", "SQLite database path")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	store, err := db.New(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	clock := timeutil.RealClock{}
	notifier := race.NewNotifier(clock, 50)

	open := rplidar.OpenSensor
	if *devMode {
		open = rplidar.OpenSimulated
	}
	engine := gate.New(store, store, notifier, clock, open)

	bus := race.NewBus()
	bus.OnLapRecorded(engine.HandleLapRecorded)
	bus.OnRaceStart(func() { engine.HandleRaceStart(context.Background()) })
	bus.OnRaceStop(engine.HandleRaceStop)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start scanning immediately; races can restart the session later
	if err := engine.Start(ctx); err != nil {
		log.Printf("LIDAR not started: %v", err)
	}
	defer engine.Stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(engine, store, bus, notifier, clock).ServeMux()
		engine.AttachAdminRoutes(mux)

		// read static files from the embedded filesystem in production or from
		// the local ./static in dev for easier iteration without restarting the
		// server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			sub, err := fs.Sub(staticFiles, "static")
			if err != nil {
				log.Fatalf("failed to mount static files: %v", err)
			}
			staticHandler = http.FileServer(http.FS(sub))
		}
		mux.Handle("/", staticHandler)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
