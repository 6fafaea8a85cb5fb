package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nexuschat/relay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	log.Info("Starting chat relay...")

	config := server.NewConfigFromEnv()

	service := server.NewService(*config)
	service.Start()

	httpServer := server.CreateServer(config.Port, service.Handler())

	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutdown signal received")

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.WithError(err).Warn("HTTP server shutdown error")
	}
	if err := service.Shutdown(shutdownTimeout); err != nil {
		log.WithError(err).Warn("Hub shutdown error")
	}
}
