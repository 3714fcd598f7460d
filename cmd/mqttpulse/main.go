// Command mqttpulse is the connection-pool daemon: it loads a pool/topic
// config file, dials a bounded paho.mqtt.golang connection pool, auto-wires
// the declarative topic subscriptions, and exposes the live traffic over a
// local debug-tap socket for the mqttpulse-shell client.
//
// CLI surface grounded on the teacher's cmd/hermodctl (cobra root command,
// persistent flags bound through viper) and cmd/hermod (signal-driven
// graceful shutdown via a cancellable context).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gsoultan/mqttpulse/internal/config"
	"github.com/gsoultan/mqttpulse/internal/logging"
	"github.com/gsoultan/mqttpulse/pkg/autowire"
	"github.com/gsoultan/mqttpulse/pkg/dispatch"
	"github.com/gsoultan/mqttpulse/pkg/eventbus"
	"github.com/gsoultan/mqttpulse/pkg/pool"
	"github.com/gsoultan/mqttpulse/pkg/tap"
)

var (
	cfgFile     string
	poolName    string
	debugSocket string
)

var rootCmd = &cobra.Command{
	Use:   "mqttpulse",
	Short: "mqttpulse runs a bounded MQTT 5 connection pool with auto-wired topics",
	RunE:  run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "mqttpulse.yaml", "path to the pool/topic/tap config file")
	rootCmd.PersistentFlags().StringVar(&poolName, "pool-name", "", "override the pool name from the config file")
	rootCmd.PersistentFlags().StringVar(&debugSocket, "debug-socket", "", "override the tap socket path from the config file")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("pool-name", rootCmd.PersistentFlags().Lookup("pool-name"))
	viper.BindPFlag("debug-socket", rootCmd.PersistentFlags().Lookup("debug-socket"))
}

func run(cmd *cobra.Command, args []string) error {
	log := logging.New()

	poolCfg, clientCfg, topics, tapCfg, _, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if poolName != "" {
		poolCfg.Name = poolName
	}
	socketPath := tapCfg.SocketPath
	if debugSocket != "" {
		socketPath = debugSocket
	}

	bus := eventbus.New()

	p := pool.New(poolCfg, clientCfg, pool.Dial)
	defer p.Close()

	d := dispatch.New(bus)
	d.RegisterPool(poolCfg.Name, p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bind ctx to this pool before wiring so every plain subscribe auto-wire
	// issues shares the same connection; multi_sub workers still each take
	// their own connection.
	boundCtx, releasePool, err := d.BindContext(ctx, poolCfg.Name)
	if err != nil {
		return fmt.Errorf("bind pool context: %w", err)
	}
	defer releasePool()

	if err := autowire.Wire(boundCtx, d, poolCfg.Name, topics); err != nil {
		return fmt.Errorf("auto-wire topics: %w", err)
	}
	log.Info("topics wired", "pool", poolCfg.Name, "count", len(topics))

	if socketPath != "" {
		bufSize := tapCfg.ChannelBufferSize
		if bufSize <= 0 {
			bufSize = 64
		}
		t := tap.New(log.Zerolog(), bufSize, poolCfg.Name)
		if err := t.Listen(socketPath); err != nil {
			return fmt.Errorf("listen on debug socket: %w", err)
		}
		t.AttachBus(bus)
		go func() {
			if err := t.Serve(); err != nil {
				log.Error("tap server stopped", "error", err)
			}
		}()
		defer t.Close()
		log.Info("debug tap listening", "socket", socketPath)
	}

	unsubErrors := bus.Subscribe(eventbus.OnRuleError, func(ev eventbus.Event) {
		log.Warn("rule action failed", "rule", ev.RuleName, "action", ev.ActionName, "error", ev.Err)
	})
	defer unsubErrors()
	unsubDisconnect := bus.Subscribe(eventbus.OnDisconnect, func(ev eventbus.Event) {
		log.Warn("connection lost", "pool", ev.Pool, "error", ev.Err)
	})
	defer unsubDisconnect()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())
	return nil
}
