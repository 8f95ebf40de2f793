package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/cdnilsen/eliot-web/internal/activities"
	"github.com/cdnilsen/eliot-web/internal/config"
	"github.com/cdnilsen/eliot-web/internal/logging"
	"github.com/cdnilsen/eliot-web/internal/pipeline"
	"github.com/cdnilsen/eliot-web/internal/storage"
	"github.com/cdnilsen/eliot-web/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal(err)
	}
	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	// one book at a time against the store
	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{MaxConcurrentActivityExecutionSize: 1})
	workflows.Register(w)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()
	runner := pipeline.NewRunner(store, os.DirFS(cfg.TextsDir), pipeline.Options{
		Logger:          logging.GetLogger(),
		ReportDir:       cfg.DataOutRoot,
		RespellDistance: cfg.RespellDistance,
	})
	activities.Register(w, activities.New(runner, cfg.DataOutRoot))

	logging.ServerStartup("worker", cfg.TemporalAddress, "queue", cfg.TemporalTaskQueue, "store", cfg.StoreDriver, "texts", cfg.TextsDir)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(err)
	}
}
