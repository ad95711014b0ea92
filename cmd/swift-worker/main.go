// Command swift-worker runs a pool of worker instances hosting the demo
// Service, connected to a broker's backend address.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"

	"github.com/michel4j/swift-rpc/examples"
	swlog "github.com/michel4j/swift-rpc/internal/log"
	"github.com/michel4j/swift-rpc/internal/status"
	"github.com/michel4j/swift-rpc/rpc"
	"github.com/michel4j/swift-rpc/swiftrpc"
)

var (
	cfgFile    string
	dumpConfig bool
	instances  int
)

func main() {
	root := &cobra.Command{
		Use:     "swift-worker",
		Short:   "Run a swift-rpc worker",
		Version: swiftrpc.VERSION,
		RunE:    run,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a worker config file")
	root.PersistentFlags().BoolVar(&dumpConfig, "dump-config", false, "print the resolved configuration as YAML and exit")
	root.PersistentFlags().IntVar(&instances, "instances", 0, "number of worker instances to run (overrides config; default 1)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if dumpConfig {
		out, err := settings.dump()
		if err != nil {
			return fmt.Errorf("dumping config: %w", err)
		}
		fmt.Print(out)
		return nil
	}

	swlog.Initialize(settings.Log)

	if instances > 0 {
		settings.Instances = instances
	}

	manager := rpc.NewWorkerManager(rpc.ZMQTransport{}, rpc.WorkerConfig{
		Backend: settings.Backend,
	}, settings.Instances, examples.NewDemoService)

	tracker := status.NewTracker("starting")

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		tracker.SetStatus("running")
		if err := manager.Run(stop); err != nil {
			tracker.SetLastError(err)
			tracker.SetStatus("errored")
			log.WithError(err).Error("worker manager exited")
		}
	}()

	log.WithFields(log.Fields{
		"service":   settings.Service.ID,
		"instances": settings.Instances,
	}).Info("worker pool started")

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-termChan:
	case <-ctx.Done():
	}

	close(stop)
	cancel()
	wg.Wait()

	if tracker.Status() != "errored" {
		tracker.SetStatus("stopped")
	}
	log.WithFields(log.Fields{
		"status":      tracker.Status(),
		"error_count": tracker.ErrorCount(),
		"active":      manager.ActiveCount(),
	}).Info("worker pool exiting")
	return nil
}
