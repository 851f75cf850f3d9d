package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Parts-Partner/PartsPartners-sub001/internal/app"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/config"
)

func main() {
	ctx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	configPath := flag.String("config", "", "path to TOML config file")
	writeExample := flag.Bool("write-example-config", false, "write an example config and exit")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	if *writeExample {
		out := path
		if out == "" {
			out = "config.toml.example"
		}
		if err := config.WriteExample(out); err != nil {
			log.Fatalf("write example config: %v", err)
		}
		log.Printf("wrote %s", out)
		return
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	addr := cfg.Server.Listen
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}

	a := app.New(cfg)
	defer a.Close()

	srv := &http.Server{
		Addr:    addr,
		Handler: a.Router,
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}

	// graceful shutdown
	idleConnsClosed := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		sig := <-sigCh
		a.Logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.Logger.Error("graceful shutdown error", "err", err)
		}
		// Cancel root context so all in-flight requests stop
		rootCancel()
		close(idleConnsClosed)
	}()

	a.Logger.Info("starting server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	<-idleConnsClosed
	a.Logger.Info("server stopped")
}
