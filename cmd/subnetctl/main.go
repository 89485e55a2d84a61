// Command subnetctl assigns instances to VPC subnets, detaches them again
// and reports subnet capacity.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/config"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/lib"
	"github.com/johnlam90/vpc-subnet-assigner/pkg/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootOptions holds the global flags and what they produce
type rootOptions struct {
	envFile string
	debug   bool
	dryRun  bool
	timeout time.Duration

	logger logr.Logger
	zapLog *zap.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{logger: logr.Discard()}

	rootCmd := &cobra.Command{
		Use:           "subnetctl",
		Short:         "Assign instances to VPC subnets",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(opts.envFile); err != nil {
				return err
			}
			return opts.setupLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.zapLog != nil {
				_ = opts.zapLog.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", "", "Load environment variables from this .env file")
	flags.BoolVar(&opts.debug, "debug", false, "Enable development logging with debug verbosity")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the requests that would be sent without contacting the API")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Overall timeout of a command")

	rootCmd.AddCommand(capacityCommand(opts))
	rootCmd.AddCommand(recommendCommand(opts))
	rootCmd.AddCommand(assignCommand(opts))
	rootCmd.AddCommand(unassignCommand(opts))
	rootCmd.AddCommand(routingCheckCommand(opts))

	return rootCmd
}

func (o *rootOptions) setupLogger() error {
	var (
		zapLog *zap.Logger
		err    error
	)
	if o.debug {
		zapLog, err = zap.NewDevelopment()
	} else {
		zapLog, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	o.zapLog = zapLog
	o.logger = zapr.NewLogger(zapLog).WithName("subnetctl")
	return nil
}

// context returns a context bounded by the --timeout flag
func (o *rootOptions) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.timeout)
}

// manager loads the configuration from the environment and creates a
// Manager over the configured backend
func (o *rootOptions) manager(ctx context.Context) (*lib.Manager, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	m, err := lib.NewManager(ctx, cfg, o.logger, lib.Options{Metrics: observability.NewMetrics()})
	if err != nil {
		return nil, nil, err
	}
	return m, cfg, nil
}
