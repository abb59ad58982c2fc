package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/accella/accella/agent/app"
	"github.com/accella/accella/common/util"
	"github.com/accella/accella/common/version"
)

func main() {
	fmt.Printf("Accella Agent v%s\n", version.VersionToString())
	fmt.Printf("Starting with args: %v\n", util.FilterOSArgs(os.Args, app.LogSafeFlags))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config, err := app.ConfigFromFlags()
	if err != nil {
		log.Fatalf("Error parsing flags: %s", err)
	}

	node, cleanup, err := app.New(ctx, config)
	if err != nil {
		log.Fatalf("Error creating node: %s", err)
	}
	defer cleanup()

	err = node.Start()
	if err != nil {
		log.Fatalf("Error starting node: %s", err)
	}
	defer node.Stop()

	<-ctx.Done()
	log.Print("Node shutting down; waiting for in-flight tasks")
}
