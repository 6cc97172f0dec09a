/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command rulerouter runs a flow of router nodes.
//
// Messages are read as newline-delimited envelopes from standard input and/or from MQTT
// topics; emissions on unbridged ports are written to standard output, one envelope per
// line. Logs go to standard error.
//
//	rulerouter -c config.yaml < messages.ndjson
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/endpoint"
	"github.com/rulego/rulerouter/endpoint/mqtt"
	"github.com/rulego/rulerouter/engine"
	"github.com/rulego/rulerouter/metrics"
	"github.com/rulego/rulerouter/store"
	"github.com/rulego/rulerouter/utils/pool"
)

const (
	version = "1.0.0"
)

var (
	//是否是查询版本
	ver bool
	//配置文件
	configFile string
)

func init() {
	flag.StringVar(&configFile, "c", "", "配置文件")
	flag.BoolVar(&ver, "v", false, "打印版本")
}

func main() {
	flag.Parse()
	if ver {
		fmt.Printf("rulerouter v%s\n", version)
		os.Exit(0)
	}
	c, err := LoadConfig(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	logger, closer, err := newLogger(c.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, c, logger, os.Stdin, os.Stdout); err != nil {
		logger.Error("stopped", "error", err)
		closer.Close()
		os.Exit(1)
	}
	logger.Info("stopped")
}

// run serves until ctx is done, or until standard input ends when MQTT is disabled.
func run(ctx context.Context, c Config, logger *slog.Logger, in io.Reader, out io.Writer) error {
	backend, closeStore, err := openStore(ctx, c.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", c.Store.Type, err)
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	counters := metrics.NewCounters()
	recorder := metrics.Multi(counters, metrics.NewRouterMetrics(registry, c.Admin.Namespace))

	wp := pool.NewWorkerPool(c.Pool.MaxWorkers, c.Pool.MaxIdle)
	defer wp.Release()

	opts := []types.Option{
		types.WithLogger(types.NewSlogLogger(logger, "router")),
		types.WithPool(wp),
		types.WithStore(store.NewContextStore(backend, c.Flow.Id, "")),
		types.WithMetrics(recorder),
		types.WithMaxKeptMsgs(c.Router.MaxKeptMsgs),
		types.WithFlowId(c.Flow.Id),
	}
	if c.Router.ScriptMaxExecutionTime > 0 {
		opts = append(opts, types.WithScriptMaxExecutionTime(c.Router.ScriptMaxExecutionTime))
	}
	if c.Router.Properties != nil {
		opts = append(opts, types.WithProperties(c.Router.Properties))
	}
	config := engine.NewConfig(opts...)

	writer := endpoint.NewWriter(out)
	writer.Failures = c.Output.Failures
	output := writer.OnPort
	flow, err := engine.NewFlow(config, c.Flow,
		engine.WithContext(ctx),
		engine.WithOutput(func(nodeId string, msg types.RuleMsg, port int) {
			output(nodeId, msg, port)
		}),
		engine.WithOnFailure(func(nodeId string, msg types.RuleMsg, err error) {
			logger.Warn("node failure", "node", nodeId, "msg", msg.Id, "error", err)
			writer.OnFailure(nodeId, msg, err)
		}),
	)
	if flow == nil {
		return err
	}
	defer flow.Destroy()
	if err != nil {
		logger.Error("flow loaded with disabled nodes", "error", err)
	}

	if c.Admin.Addr != "" {
		srv := &http.Server{Addr: c.Admin.Addr, Handler: newAdminRouter(registry, counters, flow), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("admin listening", "addr", c.Admin.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if c.Mqtt.Enabled {
		client, err := mqtt.Connect(ctx, c.Mqtt.Config, types.NewSlogLogger(logger, "mqtt"))
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer client.Disconnect(250)
		bridge := mqtt.NewBridge(client, flow, c.Mqtt.Config, types.NewSlogLogger(logger, "mqtt"))
		output = bridge.OnPort(writer.OnPort)
		if err := bridge.Start(); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer bridge.Stop()
	}

	if c.Input.Stdin {
		lines := &endpoint.Lines{DefaultNode: c.Input.DefaultNode, MaxLineSize: c.Input.MaxLineSize, Logger: types.NewSlogLogger(logger, "stdin")}
		n, err := lines.Serve(ctx, in, flow)
		logger.Info("input ended", "messages", n)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		if !c.Mqtt.Enabled {
			if err := flow.Wait(ctx, 0); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}
	}
	<-ctx.Done()
	return nil
}
