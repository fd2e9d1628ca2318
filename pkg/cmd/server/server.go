package server

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/stewardlog/incident-service-go/log"
	"github.com/stewardlog/incident-service-go/pkg/config"
	"github.com/stewardlog/incident-service-go/pkg/db/postgres"
	"github.com/stewardlog/incident-service-go/pkg/ingest"
	"github.com/stewardlog/incident-service-go/pkg/processing"
	"github.com/stewardlog/incident-service-go/pkg/proxy"
	localproxy "github.com/stewardlog/incident-service-go/pkg/proxy/local"
	natsproxy "github.com/stewardlog/incident-service-go/pkg/proxy/nats"
	"github.com/stewardlog/incident-service-go/pkg/registry"
	"github.com/stewardlog/incident-service-go/pkg/repository/incident"
	"github.com/stewardlog/incident-service-go/pkg/utils"
)

var appConfig config.Config // holds processed config values

//nolint:funlen // by design
func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "starts the incident service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer()
		},
	}
	cmd.Flags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	cmd.Flags().StringVar(&config.SQLLogLevel,
		"sql-log-level",
		"debug",
		"controls the log level for sql methods")
	cmd.Flags().StringVar(&config.LogFormat,
		"log-format",
		"json",
		"controls the log output format")
	cmd.Flags().StringVar(&config.LogFilters,
		"log-filters",
		"",
		"zapfilter rules for named loggers (e.g. 'debug:registry,pipeline')")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	cmd.Flags().BoolVar(&appConfig.PrintMessage,
		"print-message",
		false,
		"if true and log level is debug, the frame payload will be printed")
	cmd.Flags().StringVar(&config.Proxy,
		"proxy",
		"nats",
		"broadcast proxy implementation (nats, local)")
	cmd.Flags().StringVar(&config.SessionTTL,
		"session-ttl",
		"1m",
		"session is removed if no data was received for this duration")
	cmd.Flags().StringVar(&config.EvictionInterval,
		"eviction-interval",
		"30s",
		"cadence of the registry eviction sweep")
	cmd.Flags().IntVar(&config.PipelineQueueSize,
		"pipeline-queue-size",
		processing.DefaultQueueSize,
		"per-session bounded queue size for incident triggers")
	return cmd
}

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

func parseDuration(d string, defaultVal time.Duration) time.Duration {
	ret, err := time.ParseDuration(d)
	if err != nil {
		return defaultVal
	}
	return ret
}

//nolint:funlen,cyclop // by design
func startServer() error {
	var logger *log.Logger
	var sqlLogger *log.Logger
	var telemetry *config.Telemetry
	switch config.LogFormat {
	case "json":
		logger = log.NewWithFilters(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.InfoLevel),
			config.LogFilters,
			log.WithCaller(true),
			log.AddCallerSkip(1))
		sqlLogger = log.New(
			os.Stderr,
			parseLogLevel(config.SQLLogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))

	default:
		logger = log.DevLoggerWithFilters(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.DebugLevel),
			config.LogFilters,
			log.WithCaller(true),
			log.AddCallerSkip(1))

		sqlLogger = log.DevLogger(
			os.Stderr,
			parseLogLevel(config.SQLLogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}

	log.ResetDefault(logger)

	log.Debug("Config:",
		log.String("db", config.DB),
		log.String("nats", config.NatsURL),
		log.String("proxy", config.Proxy),
	)

	if config.ProfilingPort > 0 {
		log.Info("Starting profiling server on port", log.Int("port", config.ProfilingPort))
		go func() {
			//nolint:gosec // by design
			err := http.ListenAndServe(
				fmt.Sprintf("localhost:%d", config.ProfilingPort),
				nil)
			if err != nil {
				log.Error("Profiling server stopped", log.ErrorField(err))
			}
		}()
	}

	waitForRequiredServices()

	pgTraceOption := postgres.WithTracer(sqlLogger, log.DebugLevel)
	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		var err error
		if telemetry, err = config.SetupTelemetry(context.Background()); err == nil {
			pgTraceOption = postgres.WithOtlpTracer()
		} else {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		}
		err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
		if err != nil {
			log.Warn("Could not start runtime metrics", log.ErrorField(err))
		}
	}

	log.Info("Starting server")
	pool := postgres.InitWithURL(
		config.DB,
		pgTraceOption,
	)

	nc, err := nats.Connect(config.NatsURL,
		nats.Name("incident-service"),
		nats.MaxReconnects(-1))
	if err != nil {
		log.Error("could not connect to nats", log.ErrorField(err))
		return err
	}

	pub, err := setupProxy(nc)
	if err != nil {
		log.Error("could not setup broadcast proxy", log.ErrorField(err))
		return err
	}

	sessionRegistry := registry.NewRegistry(
		registry.WithTTL(parseDuration(config.SessionTTL, registry.DefaultTTL)))
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	scheduler := registry.NewEvictionScheduler(sessionRegistry,
		registry.WithInterval(
			parseDuration(config.EvictionInterval, registry.DefaultEvictionInterval)))
	scheduler.Start(schedulerCtx)

	pipeline := processing.NewPipeline(
		processing.WithStore(incident.NewStore(pool)),
		processing.WithProxy(pub),
		processing.WithQueueSize(config.PipelineQueueSize))

	gateway, err := ingest.NewGateway(
		ingest.WithRegistry(sessionRegistry),
		ingest.WithPipeline(pipeline),
		ingest.WithProxy(pub),
		ingest.WithPrintMessage(appConfig.PrintMessage))
	if err != nil {
		stopScheduler()
		return err
	}
	if err := gateway.Bind(nc); err != nil {
		stopScheduler()
		return err
	}
	log.Info("Server started")
	setupGoRoutinesDump()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	v := <-sigChan
	log.Debug("Got signal ", log.Any("signal", v))

	gateway.Unbind()
	stopScheduler()
	<-scheduler.Done()
	pipeline.Close()
	pub.Close()
	pool.Close()
	if telemetry != nil {
		telemetry.Shutdown()
	}

	log.Info("Server terminated")
	return nil
}

func setupProxy(nc *nats.Conn) (proxy.PublishProxy, error) {
	switch config.Proxy {
	case "local":
		return localproxy.NewLocalProxy(), nil
	default:
		return natsproxy.NewNatsProxy(nc)
	}
}

func waitForRequiredServices() {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		timeout = 15 * time.Second
	}
	if addr := utils.ExtractFromDBURL(config.DB); addr != "" {
		if err := utils.WaitForTCP(addr, timeout); err != nil {
			log.Warn("database not reachable", log.ErrorField(err))
		}
	}
	if addr := utils.ExtractFromNatsURL(config.NatsURL); addr != "" {
		if err := utils.WaitForTCP(addr, timeout); err != nil {
			log.Warn("nats not reachable", log.ErrorField(err))
		}
	}
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			log.Info("Got SIGQUIT",
				log.String("stacktrace", string(buf[:stacklen])))
		}
	}()
}
