// Command test-server runs the mock product API for local load testing:
//
//	go run ./scripts/test-server -addr :8080 -latency 20ms
//	surge run --url http://localhost:8080 --vus 20 --duration 1m
package main

import (
	"flag"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ioc-labs/surge/internal/logging"
	"github.com/ioc-labs/surge/internal/testtarget"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	latency := flag.Duration("latency", 0, "latency added to every response")
	errorRate := flag.Float64("error-rate", 0, "fraction of requests answered with 500")
	products := flag.Int("products", 50, "catalogue size")
	flag.Parse()

	logger, err := logging.New("info", logging.FormatConsole)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	target := testtarget.New(testtarget.Options{Latency: *latency, ErrorRate: *errorRate, Products: *products})
	srv := &http.Server{
		Addr:              *addr,
		Handler:           target.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("test server listening",
		zap.String("addr", *addr),
		zap.Duration("latency", *latency),
		zap.Float64("error_rate", *errorRate))
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
