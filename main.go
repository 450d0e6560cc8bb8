package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/james226/scene-bridge/agentlink"
	"github.com/james226/scene-bridge/viewport"
)

const shutdownTimeout = 5 * time.Second

func setCors(origin string, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		h.ServeHTTP(w, r)
	}

	return http.HandlerFunc(fn)
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath, os.Getenv)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.Default()); err != nil {
		log.Fatal(err)
	}
}

// run serves until ctx ends, then stops accepting requests and tears the
// agent session down.
func run(ctx context.Context, cfg Config, logger *log.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := agentlink.NewBroadcaster(logger)
	client := agentlink.NewClient(bus, agentlink.Options{
		Backend: agentlink.NewBackend(cfg.BackendURL, nil),
		Logger:  logger,
	})
	synchronizer := viewport.NewSynchronizer(viewport.NewScene(), logger)

	server := NewServer(client, bus, synchronizer, logger)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		relay := NewRelay(rdb, cfg.RedisChannel, logger)
		bus.Subscribe(relay.Handle)
		go relay.Run(ctx)

		server.WithRelay(rdb, cfg.RedisChannel)
		logger.Printf("relaying events to redis %s on %s", cfg.RedisAddr, cfg.RedisChannel)
	}

	go func() {
		if err := client.Connect(ctx, cfg.AgentURL); err != nil {
			logger.Printf("initial connection to %s failed: %v", cfg.AgentURL, err)
		}
	}()

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: setCors(cfg.Origin, server.Routes()),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("listening on port %s", cfg.Port)
		serveErr <- httpServer.ListenAndServe()
	}()

	var err error
	select {
	case err = <-serveErr:
		server.Close()
	case <-ctx.Done():
		logger.Printf("shutting down")
		// Streaming handlers end with the broker and pending requests end
		// with the session, so both go before waiting on in-flight requests.
		server.Close()
		client.Disconnect()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		err = httpServer.Shutdown(shutdownCtx)
	}

	client.Disconnect()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
