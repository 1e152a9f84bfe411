// Command nukleus-http-demo wires the source-input stream core to a real
// TCP listener so it can be exercised end to end: a gnet-driven fabricio
// acceptor feeds inbound bytes into internal/source, a route table sends
// every request to a single demo echo target, and an OpenTelemetry
// tracer provider records one span per routed request. Everything this
// binary configures beyond the core itself — routing, transport, tracing
// — is out of scope for the specification proper; this is glue, in the
// spirit of the teacher's cmd/example.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reaktor-nukleus/http-source/internal/correlation"
	"github.com/reaktor-nukleus/http-source/internal/fabric"
	"github.com/reaktor-nukleus/http-source/internal/fabricio"
	"github.com/reaktor-nukleus/http-source/internal/route"
	"github.com/reaktor-nukleus/http-source/internal/source"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const defaultSourceRef = 1

func main() {
	addr := os.Getenv("NUKLEUS_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	logger := log.New(os.Stdout, "nukleus-http-source: ", log.LstdFlags)

	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = tracerProvider.Shutdown(shutdownCtx)
	}()

	acceptor := fabricio.NewAcceptor("nukleus-http-source")
	correlations := correlation.NewRegistry()
	echoTarget := fabricio.NewEchoTarget("nukleus-http-echo", acceptor, correlations)

	routes := route.NewTable()
	routes.Add(route.Route{
		SourceRef: defaultSourceRef,
		Target:    echoTarget,
		TargetRef: 1,
	})

	cfg := source.DefaultConfig()
	factory := source.NewFactory(cfg, acceptor, routes, correlations, acceptor.NextStreamID, func(string) fabric.Target {
		return echoTarget
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := fabricio.NewServer(ctx, fabricio.Config{
		Addr:      addr,
		Multicore: true,
		Logger:    logger,
	}, acceptor, factory, defaultSourceRef)

	if err := srv.Start(); err != nil {
		logger.Fatalf("failed to start: %v", err)
	}
	logger.Printf("listening on %s", addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("shutting down")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := srv.Stop(stopCtx); err != nil {
		logger.Printf("shutdown error: %v", err)
	}
}
