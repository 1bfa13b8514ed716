// Command scambus-sim runs a standalone mock scam-report API for local
// development, pre-seeded with demo streams.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/scambus/scambus-go"
	"github.com/scambus/scambus-go/internal/config"
	"github.com/scambus/scambus-go/scambustest"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	keyID := flag.String("key-id", "demo", "accepted API key id")
	keySecret := flag.String("key-secret", "demo", "accepted API key secret")
	configPath := flag.String("config", "", "config file (default ~/.scambus/config.yaml)")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	if conf.Trace.Enable {
		shutdown, err := setupTracer(conf.Trace.Endpoint)
		if err != nil {
			slog.Error("failed to set up tracing", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer shutdown(context.Background())
		e.Use(otelecho.Middleware("scambus-sim"))
	}

	server := scambustest.NewHandler(*keyID, *keySecret)
	server.Register(e)
	server.RegisterWS(e)
	seed(server)

	slog.Info("scambus-sim listening",
		slog.String("module", "sim"),
		slog.String("addr", *addr),
	)
	e.Logger.Fatal(e.Start(*addr))
}

func setupTracer(endpoint string) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

func seed(server *scambustest.Server) {
	server.AddStream("demo-entries", string(scambus.DataTypeJournalEntry), []map[string]any{
		scambustest.JournalEntry(map[string]any{
			"type":        "call",
			"description": "robocall claiming to be the tax office",
		}),
		scambustest.JournalEntry(map[string]any{
			"type":        "sms",
			"description": "smishing link to a fake parcel tracker",
			"confidence":  0.8,
		}),
	})
	server.AddStream("demo-identifiers", string(scambus.DataTypeIdentifier), []map[string]any{
		scambustest.Identifier(nil),
		scambustest.Identifier(map[string]any{
			"type":          "email",
			"display_value": "refunds@example.com",
			"details":       map[string]any{"email": "refunds@example.com"},
		}),
	})
}
