package cmd

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cwlclient/internal/config"
	"cwlclient/internal/registry"
	"cwlclient/pkg/client"
	"cwlclient/pkg/observability"
)

var (
	cfgFile string
	cfg     *config.CLI
	metrics *observability.Metrics
)

var rootCmd = &cobra.Command{
	Use:   "cwljob",
	Short: "cwljob manages workflow jobs on a remote compute-job service",
	Long: `cwljob is the command-line client for a remote compute-job service.

The service runs as a local Docker container and executes CWL workflow
documents on a compute resource. cwljob brings a service up and down,
submits jobs described by a YAML spec file, polls their state, and fetches
their outputs.

Common workflows:

  Bring a service up:
    cwljob service up --image my-service:latest --port 29593

  Submit a job and wait for its result:
    cwljob submit job.yaml --wait

  Check a job later:
    cwljob status <job-id>
    cwljob outputs <job-id> --dir ./results

Configuration is read from ~/.cwljob.yaml and CWLJOB_* environment
variables; flags take precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadCLI(viper.GetViper(), cfgFile)
		if err != nil {
			return err
		}
		if cfg.MetricsPort != "" {
			startMetricsServer(cmd)
		}
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		rootCmd.PrintErrln("Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.cwljob.yaml)")
	rootCmd.PersistentFlags().String("service", "", "name of the service to talk to")
	rootCmd.PersistentFlags().String("host", "", "service host, for services not managed by cwljob")
	rootCmd.PersistentFlags().Int("port", 0, "service port")
	rootCmd.PersistentFlags().String("metrics-port", "", "serve Prometheus metrics on this port")

	_ = viper.BindPFlag("service_name", rootCmd.PersistentFlags().Lookup("service"))
	_ = viper.BindPFlag("host", rootCmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("metrics_port", rootCmd.PersistentFlags().Lookup("metrics-port"))
}

// startMetricsServer exposes the client's Prometheus metrics for
// long-running invocations such as submit --wait.
func startMetricsServer(cmd *cobra.Command) {
	m, handler, err := observability.NewMetrics(cmd.Context())
	if err != nil {
		slog.Warn("Metrics disabled", "error", err)
		return
	}
	metrics = m

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	server := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Serving metrics", "port", cfg.MetricsPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("Metrics server failed", "error", err)
		}
	}()
}

// openRegistry opens the persisted service-reference store.
func openRegistry() (*registry.Registry, error) {
	return registry.Open(cfg.RegistryPath)
}

// resolveService returns a handle on the configured service: the persisted
// reference when the service name is registered, the configured host and
// port otherwise.
func resolveService(cmd *cobra.Command) (*client.Service, error) {
	reg, err := openRegistry()
	if err != nil {
		return nil, err
	}
	defer reg.Close()

	if ref, err := reg.Get(cmd.Context(), cfg.ServiceName); err == nil {
		return client.NewServiceWithConfig(client.Config{
			Host:    ref.Host,
			Port:    ref.Port,
			Metrics: metrics,
		}), nil
	}
	return client.NewServiceWithConfig(client.Config{
		Host:    cfg.Host,
		Port:    cfg.Port,
		Metrics: metrics,
	}), nil
}
