package main

// Run the local development backend:
//   go run ./cmd/devbackend

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"execal-client/internal/devserver"
	"execal-client/internal/shared/auth"
	"execal-client/internal/shared/config"
	"execal-client/internal/shared/server"
	localstore "execal-client/internal/shared/storage/object/local"
	"execal-client/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.SetLevel(telemetry.ParseLevel(cfg.LogLevel))

	signer, err := auth.NewSigner(cfg.Dev.JWTSecret, cfg.Env, cfg.Dev.TokenTTL)
	if err != nil {
		log.Fatalf("jwt signer: %v", err)
	}

	r, err := devserver.NewRouter(devserver.Options{
		Store:       localstore.New(cfg.Dev.StoreDir),
		Signer:      signer,
		AltIDKey:    cfg.Dev.AltIDKey,
		MockTests:   cfg.Dev.MockTests,
		CORSOrigins: cfg.Dev.CORSAllowOrigin,
		UploadRate:  cfg.Dev.UploadRate,
		UploadBurst: cfg.Dev.UploadBurst,
	})
	if err != nil {
		log.Fatalf("router: %v", err)
	}

	srv := &http.Server{
		Addr:              server.Addr(cfg.Dev.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting dev backend on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
