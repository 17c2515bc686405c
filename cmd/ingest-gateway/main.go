/*
Copyright 2026 The LidarCtl Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command ingest-gateway is the front door of the control plane: it pulls
// "ingest.start" messages off the broker, drives pkg/ingestusecase's
// seven-step happy path against the workflow-engine gateway, and serves
// the admin HTTP surface (/healthz, /readyz, /metrics).
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lidarctl/controlplane/internal/config"
	"github.com/lidarctl/controlplane/internal/httpserver"
	lidarredis "github.com/lidarctl/controlplane/pkg/cache/redis"
	"github.com/lidarctl/controlplane/pkg/consumer"
	"github.com/lidarctl/controlplane/pkg/eventbus"
	"github.com/lidarctl/controlplane/pkg/ingestusecase"
	"github.com/lidarctl/controlplane/pkg/log"
	"github.com/lidarctl/controlplane/pkg/metrics"
	"github.com/lidarctl/controlplane/pkg/statusstore"
	"github.com/lidarctl/controlplane/pkg/workflowgateway"
	"github.com/lidarctl/controlplane/pkg/workflowgateway/temporalrpc"
)

func main() {
	var (
		adminAddr   = flag.String("admin-addr", ":8080", "address the admin HTTP surface listens on")
		subject     = flag.String("subject", "ingest.start", "JetStream subject this binary pulls from")
		durable     = flag.String("durable", "ingest-gateway", "JetStream durable consumer name")
		concurrency = flag.Int("concurrency", 8, "max concurrent ingest.start handoffs")
		dev         = flag.Bool("dev", false, "enable human-readable development logging")
	)
	flag.Parse()

	opts := log.DefaultOptions()
	if *dev {
		opts = log.DevelopmentOptions()
	}
	logger := log.NewLogger(opts)
	defer log.Sync(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error(err, "load configuration")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	_ = metrics.NewMetricsWithRegistry("lidarctl", "ingest_gateway", registry)

	redisOpts, err := redis.ParseURL(cfg.KV.DSN)
	if err != nil {
		logger.Error(err, "parse KEYDB_DSN")
		os.Exit(1)
	}
	redisClient := lidarredis.NewClient(redisOpts, logger)
	defer redisClient.Close()
	statusStore := statusstore.NewStore(redisClient, cfg.KV.Prefix)

	publisher, err := eventbus.NewPublisher(eventbus.Config{
		URL:    cfg.Broker.DSN,
		Stream: cfg.Broker.StreamName,
		Prefix: "ingest",
	}, logger)
	if err != nil {
		logger.Error(err, "connect event bus publisher")
		os.Exit(1)
	}
	defer publisher.Close()

	engineBaseURL := cfg.Engine.DSN
	if !strings.Contains(engineBaseURL, "://") {
		engineBaseURL = "http://" + engineBaseURL
	}
	rpcClient := temporalrpc.NewClient(engineBaseURL, logger)
	gateway := workflowgateway.NewBreakerGateway(rpcClient, workflowgateway.DefaultBreakerSettings(),
		func(from, to string) {
			logger.Info("workflow gateway circuit breaker transition", "from", from, "to", to)
		})

	useCase := &ingestusecase.UseCase{
		Gateway: gateway,
		Status:  statusStore,
		Events:  publisher,
		Log:     logger,
	}
	cons := consumer.NewConsumer(useCase, publisher, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumerConn, err := nats.Connect(cfg.Broker.DSN, nats.Name("lidarctl-ingest-gateway-consumer"),
		nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		logger.Error(err, "connect to broker for pull consumer")
		os.Exit(1)
	}
	defer consumerConn.Close()

	js, err := consumerConn.JetStream()
	if err != nil {
		logger.Error(err, "open JetStream context")
		os.Exit(1)
	}

	ready := func() error {
		if !consumerConn.IsConnected() {
			return errConsumerDisconnected
		}
		return redisClient.EnsureConnection(ctx)
	}
	router := httpserver.New(httpserver.Options{Registry: registry, Ready: ready, Log: logger})
	admin := &http.Server{Addr: *adminAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return cons.Run(gctx, js, *subject, *durable, *concurrency)
	})
	group.Go(func() error {
		logger.Info("admin HTTP surface listening", "addr", *adminAddr)
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return admin.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && gctx.Err() == nil {
		logger.Error(err, "ingest-gateway exited with error")
		os.Exit(1)
	}
	logger.Info("ingest-gateway shut down cleanly")
}

var errConsumerDisconnected = errors.New("broker connection not established")
