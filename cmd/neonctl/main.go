// Command neonctl builds queries and filters and sends them to the query
// service from the command line.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"neon/backend/config"
	"neon/backend/logger"
	"neon/backend/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type app struct {
	configFile string
	serverURL  string

	out     io.Writer
	query   *services.QueryService
	filters *services.FilterService
}

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:          "neonctl",
		Short:        "Talk to the Neon query service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "path to a config file")
	root.PersistentFlags().StringVar(&a.serverURL, "server", "", "query service base URL, overrides the config")

	root.AddCommand(
		a.queryCommand(),
		a.fieldsCommand(),
		a.filterCommand(),
		a.hostnamesCommand(),
		a.connectCommand(),
		a.databasesCommand(),
		a.tablesCommand(),
		a.columnsCommand(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.serverURL != "" {
		cfg.ServerBaseURL = a.serverURL
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: "console"})
	if err != nil {
		log = zap.NewNop()
	}

	a.query = services.NewQueryServiceFromConfig(cfg, log)
	a.filters = services.NewFilterServiceFromConfig(cfg, log)
	return nil
}

func (a *app) print(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
