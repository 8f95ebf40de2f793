package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	tclient "go.temporal.io/sdk/client"

	"github.com/cdnilsen/eliot-web/internal/api"
	"github.com/cdnilsen/eliot-web/internal/config"
	"github.com/cdnilsen/eliot-web/internal/logging"
	"github.com/cdnilsen/eliot-web/internal/pipeline"
	"github.com/cdnilsen/eliot-web/internal/storage"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal(err)
	}
	defer tc.Close()

	runner := pipeline.NewRunner(store, os.DirFS(cfg.TextsDir), pipeline.Options{Logger: logging.GetLogger()})
	h := api.NewServer(cfg, tc, runner)
	logging.ServerStartup("api", cfg.APIAddr, "queue", cfg.TemporalTaskQueue, "store", cfg.StoreDriver)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal(err)
	}
}
