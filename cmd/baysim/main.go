package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/ohowland/baysim/internal/lib/mimicpanel"
	"github.com/ohowland/baysim/internal/pkg/advisor"
	"github.com/ohowland/baysim/internal/pkg/comm/modbuscomm"
	"github.com/ohowland/baysim/internal/pkg/datastreams/mongodb"
	"github.com/ohowland/baysim/internal/pkg/datastreams/mqtt"
	"github.com/ohowland/baysim/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/baysim/internal/pkg/datastreams/sqldb"
	"github.com/ohowland/baysim/internal/pkg/engine"
	"github.com/ohowland/baysim/internal/pkg/observability"
	"github.com/ohowland/baysim/internal/pkg/scenario"
	"github.com/ohowland/baysim/internal/pkg/topology"
	"github.com/ohowland/baysim/internal/pkg/webservice"
)

const version = "0.1.0"

type stopper interface {
	Stop()
}

func main() {
	configDir := flag.String("config", "./config", "configuration directory")
	tutor := flag.String("advisor", "rules", "tutor backend: rules or offline")
	flag.Parse()

	log.Println("[Main] Starting baysim v" + version)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	path := func(name string) string { return filepath.Join(*configDir, name) }
	ctx := context.Background()

	log.Println("[Main] Initialising Tracing")
	tracingCfg, err := observability.ReadTracingConfig(path("tracing.json"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		panic(err)
	}
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg)
	if err != nil {
		panic(err)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing)

	log.Println("[Main] Building Topology")
	nodes, err := buildTopology(path("topology/bay.json"))
	if err != nil {
		panic(err)
	}

	log.Println("[Main] Loading Scenarios")
	library, watcher, err := buildScenarios(path("scenarios.json"))
	if err != nil {
		panic(err)
	}
	if watcher != nil {
		defer watcher.Close()
	}

	log.Println("[Main] Registering Metrics")
	collector, err := observability.NewCollector(nil)
	if err != nil {
		panic(err)
	}

	log.Println("[Main] Starting Engine")
	engineCfg, err := engine.ReadConfig(path("engine.json"))
	if errors.Is(err, os.ErrNotExist) {
		engineCfg, err = engine.DefaultConfig(), nil
	}
	if err != nil {
		panic(err)
	}
	e := engine.New(
		engine.WithConfig(engineCfg),
		engine.WithTemplate(nodes),
		engine.WithLibrary(library),
		engine.WithMetricsRecorder(collector),
	)
	e.Start()
	defer e.Stop()

	log.Println("[Main] Starting Advisor")
	service, err := advisor.NewService(buildAdvisor(*tutor), e, 10*time.Second)
	if err != nil {
		panic(err)
	}
	go service.Run()
	defer service.Stop()

	log.Println("[Main] Connecting Data Streams")
	sinks, err := linkDataStreams(path, e)
	if err != nil {
		panic(err)
	}

	log.Println("[Main] Connecting Mimic Panel")
	panel, err := linkMimicPanel(path("modbus/mimicpanel.json"), e)
	if err != nil {
		panic(err)
	}
	if panel != nil {
		sinks = append(sinks, panel)
	}

	log.Println("[Main] Starting Webservice")
	webCfg, err := webservice.ReadConfig(path("web.json"))
	if errors.Is(err, os.ErrNotExist) {
		webCfg, err = webservice.Config{Port: "8080"}, nil
	}
	if err != nil {
		panic(err)
	}
	app := webservice.NewApp(e, service, collector.Handler(), webCfg)
	srv := &http.Server{
		Addr:    webCfg.Addr(),
		Handler: app.Router(mux.MiddlewareFunc(observability.Middleware(webservice.RouteName))),
	}
	go func() {
		log.Println("[Main] Listening on", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Println("[Main]", err)
		}
	}()

	<-sigs
	log.Println("[Main] Stopping system")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("[Main]", err)
	}
	for _, s := range sinks {
		s.Stop()
	}
}

func buildTopology(configPath string) (topology.Nodes, error) {
	nodes, err := topology.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		log.Println("[Main] No topology file, using the default bay")
		return topology.Substation(), nil
	}
	return nodes, err
}

func buildScenarios(configPath string) (*scenario.Library, *scenario.Watcher, error) {
	catalog, err := scenario.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		log.Println("[Main] No scenario file, using the built in catalog")
		return scenario.NewLibrary(scenario.Default()), nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	library := scenario.NewLibrary(catalog)
	watcher, err := scenario.NewWatcher(configPath, library)
	if err != nil {
		return nil, nil, err
	}
	watcher.Start()
	return library, watcher, nil
}

func buildAdvisor(name string) advisor.Advisor {
	switch name {
	case "offline":
		return advisor.Offline{}
	}
	return advisor.Rules{}
}

// linkDataStreams starts every sink that has a config file.
func linkDataStreams(path func(string) string, e *engine.Engine) ([]stopper, error) {
	sinks := make([]stopper, 0)

	natsCfg, err := natshandler.ReadConfig(path("nats.json"))
	switch {
	case err == nil:
		h, err := natshandler.New(natsCfg, e)
		if err != nil {
			return sinks, err
		}
		go h.Process()
		sinks = append(sinks, h)
	case !errors.Is(err, os.ErrNotExist):
		return sinks, err
	}

	mqttCfg, err := mqtt.ReadConfig(path("mqtt.json"))
	switch {
	case err == nil:
		h, err := mqtt.New(mqttCfg, e)
		if err != nil {
			return sinks, err
		}
		go h.Process()
		sinks = append(sinks, h)
	case !errors.Is(err, os.ErrNotExist):
		return sinks, err
	}

	mongoCfg, err := mongodb.ReadConfig(path("mongodb.json"))
	switch {
	case err == nil:
		h, err := mongodb.New(mongoCfg, e)
		if err != nil {
			return sinks, err
		}
		go h.Process()
		sinks = append(sinks, h)
	case !errors.Is(err, os.ErrNotExist):
		return sinks, err
	}

	sqlCfg, err := sqldb.ReadConfig(path("sqldb.json"))
	switch {
	case err == nil:
		h, err := sqldb.New(sqlCfg, e)
		if err != nil {
			return sinks, err
		}
		go h.Process()
		sinks = append(sinks, h)
	case !errors.Is(err, os.ErrNotExist):
		return sinks, err
	}

	return sinks, nil
}

func linkMimicPanel(configPath string, e *engine.Engine) (*mimicpanel.Panel, error) {
	cfg, err := mimicpanel.ReadConfig(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	poller, err := modbuscomm.NewPoller(cfg.Poller)
	if err != nil {
		return nil, err
	}
	panel, err := mimicpanel.New(cfg, poller, e)
	if err != nil {
		return nil, err
	}
	go panel.Process()
	return panel, nil
}
