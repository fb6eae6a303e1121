package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/bluetti2mqtt/bluetti2mqtt/internal/adapter/actor"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/config"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/actor"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/domain"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/service"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/metrics"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/server"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

func mqttCommand() cli.Command {
	return cli.Command{
		Name:      "mqtt",
		Usage:     "poll devices and bridge them to MQTT",
		ArgsUsage: "[ADDRESS...]",
		Flags:     intervalFlags(brokerFlags(transportFlags()...)...),
		Action: func(c *cli.Context) error {
			cfg, err := commandConfig(c, true)
			if err != nil {
				return err
			}
			safePrintConfig(*cfg)
			return runBridge(cfg)
		},
	}
}

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// the server has 5 seconds to finish the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	done <- true
}

func runBridge(cfg *config.Config) error {

	logger := buildLogger(cfg)
	defer logger.Sync()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	eventStream := &eventstream.EventStream{}
	m := metrics.New()

	states := service.NewStateCache()
	statesSub := states.Attach(eventStream)
	defer eventStream.Unsubscribe(statesSub)

	var influxProv actor.InfluxActorProvider
	if cfg.InfluxDB.Enabled {
		influxProv = influxActorProvider(cfg, logger)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, eventStream, transportFactory(cfg, m, logger),
			mqttActorProvider(cfg, m, logger), influxProv, m, logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return err
	}

	server := server.NewServer(*cfg, ctx, pid, m, states)
	done := make(chan bool, 1)

	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
	return nil
}

func mqttActorProvider(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) actor.MQTTActorProvider {
	return func(eventStream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, eventStream, m, logger)
	}
}

func influxActorProvider(cfg *config.Config, logger *zap.Logger) actor.InfluxActorProvider {
	return func(eventStream *eventstream.EventStream) *adactor.InfluxActor {
		return adactor.NewInfluxActor(cfg, eventStream, logger)
	}
}
