// Command swift-broker runs the RPC broker: a frontend/backend router pair
// operating in either LRU load-balancing or transparent proxy mode.
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

	swlog "github.com/michel4j/swift-rpc/internal/log"
	"github.com/michel4j/swift-rpc/internal/status"
	"github.com/michel4j/swift-rpc/rpc"
	"github.com/michel4j/swift-rpc/swiftrpc"
)

var (
	cfgFile    string
	dumpConfig bool
)

func main() {
	root := &cobra.Command{
		Use:     "swift-broker",
		Short:   "Run the swift-rpc broker",
		Version: swiftrpc.VERSION,
		RunE:    run,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a broker config file")
	root.PersistentFlags().BoolVar(&dumpConfig, "dump-config", false, "print the resolved configuration as YAML and exit")

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

	broker, err := rpc.NewBroker(rpc.ZMQTransport{}, rpc.BrokerConfig{
		Frontend: settings.Frontend,
		Backend:  settings.Backend,
		Mode:     rpc.Mode(settings.Mode),
	})
	if err != nil {
		return fmt.Errorf("starting broker: %w", err)
	}

	tracker := status.NewTracker("starting")

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		tracker.SetStatus("running")
		if err := broker.Run(stop); err != nil {
			tracker.SetLastError(err)
			tracker.SetStatus("errored")
			log.WithError(err).Error("broker exited")
		}
	}()

	log.WithField("service", settings.Service.ID).Info("broker started")

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
	}).Info("broker exiting")
	return nil
}
