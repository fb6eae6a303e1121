package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/config"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/service"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/metrics"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

type Server struct {
	port        uint
	httpLog     bool
	rootContext *actor.RootContext
	masterActor *actor.PID
	metrics     *metrics.Metrics
	states      *service.StateCache
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID,
	metrics *metrics.Metrics, states *service.StateCache) *http.Server {
	NewServer := newServer(cfg, rootContext, masterActor, metrics, states)

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}

func newServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID,
	metrics *metrics.Metrics, states *service.StateCache) *Server {
	return &Server{
		port:        cfg.Port,
		httpLog:     cfg.HttpLog,
		rootContext: rootContext,
		masterActor: masterActor,
		metrics:     metrics,
		states:      states,
	}
}
