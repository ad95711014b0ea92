// Command swift-client is a minimal CLI around rpc.Client for calling a
// remote method (e.g. hello_world, progress) against a running
// broker+worker pair.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"

	swlog "github.com/michel4j/swift-rpc/internal/log"
	"github.com/michel4j/swift-rpc/rpc"
	"github.com/michel4j/swift-rpc/swiftrpc"
)

var (
	cfgFile    string
	timeout    time.Duration
	dumpConfig bool
)

func main() {
	root := &cobra.Command{
		Use:     "swift-client",
		Short:   "Call a method on a swift-rpc service",
		Version: swiftrpc.VERSION,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a client config file")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "result wait timeout")
	root.PersistentFlags().BoolVar(&dumpConfig, "dump-config", false, "print the resolved configuration as YAML and exit")

	callCmd := &cobra.Command{
		Use:   "call <method> [key=value ...]",
		Short: "Invoke a remote method and print its result",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCall,
	}
	root.AddCommand(callCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCall(cmd *cobra.Command, args []string) error {
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

	kwargs, err := parseKwargs(args[1:])
	if err != nil {
		return err
	}

	client, err := rpc.NewClient(rpc.ZMQTransport{}, rpc.ClientConfig{
		Address:           settings.Address,
		HeartbeatInterval: settings.heartbeatInterval(),
	})
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer client.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		if err := client.Run(stop); err != nil {
			log.WithError(err).Error("client send/receive loop exited")
		}
	}()
	go client.DispatchResults(stop, 10*time.Millisecond)

	if err := client.Bootstrap(timeout); err != nil {
		return fmt.Errorf("bootstrapping client: %w", err)
	}

	method := args[0]
	result, err := client.Call(method, kwargs)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}

	result.Connect(rpc.SignalUpdate, func(_ *rpc.DeferredResult, arg interface{}, _ ...interface{}) {
		fmt.Printf("... %v\n", arg)
	})

	if !result.Wait(timeout) {
		return fmt.Errorf("timed out waiting for %s", method)
	}
	if errMsg := result.Errors(); errMsg != "" {
		return fmt.Errorf("%s", errMsg)
	}

	out, err := json.MarshalIndent(result.Results(), "", "  ")
	if err != nil {
		fmt.Printf("%v\n", result.Results())
		return nil
	}
	fmt.Println(string(out))
	return nil
}

func parseKwargs(pairs []string) (map[string]interface{}, error) {
	kwargs := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid key=value argument: %q", pair)
		}
		kwargs[pair[:idx]] = pair[idx+1:]
	}
	return kwargs, nil
}
