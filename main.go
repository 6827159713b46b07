package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kalbasit/distlock/pkg/distlock"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := distlock.New()
	if err != nil {
		log.Printf("error creating the application: %s", err)

		return 1
	}

	if err := c.Run(ctx, os.Args); err != nil {
		var exitErr *distlock.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}

		log.Printf("error running the application: %s", err)

		return 1
	}

	return 0
}
