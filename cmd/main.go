package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/clipforge/exportd/internal/app"
	"github.com/clipforge/exportd/internal/platform/shutdown"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	if err := a.Start(ctx); err != nil {
		fmt.Printf("startup failed: %v\n", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	select {
	case <-ctx.Done():
		fmt.Println("shutdown signal received, draining")
	case err := <-errCh:
		if err != nil {
			fmt.Printf("http server exited: %v\n", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.Close(shutdownCtx)
}
