// cmd/seqd runs the scheduled sequence-analysis daemon. Configuration comes
// from the environment (see config.Load).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"candleseq/config"
	"candleseq/internal/logger"
	"candleseq/internal/seqd"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg := config.Load()
	slogger := logger.Init("seqd", logger.ParseLevel(cfg.LogLevel))

	svc, err := seqd.New(cfg, slogger)
	if err != nil {
		log.Fatalf("[seqd] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[seqd] fatal: %v", err)
	}
}
