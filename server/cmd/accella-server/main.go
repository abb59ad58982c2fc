package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/accella/accella/common/util"
	"github.com/accella/accella/common/version"
	"github.com/accella/accella/server/app"
)

func main() {
	fmt.Printf("Accella Engine v%s\n", version.VersionToString())
	fmt.Printf("Starting with args: %v\n", util.FilterOSArgs(os.Args, app.LogSafeFlags))

	config, err := app.ConfigFromFlags()
	if err != nil {
		log.Fatalf("Error parsing flags: %s", err)
	}

	engine, cleanup, err := app.New(context.Background(), config)
	if err != nil {
		log.Fatalf("Error creating engine: %s", err)
	}
	defer cleanup()

	if config.InternalNodeConfig.StartInternalNodes {
		err = engine.InternalNodeManager.Start()
		defer engine.InternalNodeManager.Stop()
		if err != nil {
			log.Fatalf("Error starting internal nodes: %s", err)
		}
	}

	// Wait for SIGINT or SIGTERM before shutting down the engine
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	engine.InstantiationPoller.Stop()
	log.Print("Engine shutdown complete")
}
