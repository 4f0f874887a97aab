package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"milestone-service/internal/app"
	"milestone-service/pkg/config"
)

var (
	configEnv string
	configDir string
	jsonOut   bool
)

var rootCmd = &cobra.Command{
	Use:           "milestonectl",
	Short:         "Operate the milestone service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configEnv, "env", config.GetConfigEnv(), "config environment (base.yaml + <env>.yaml)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.GetEnv("CONFIG_DIR", "config"), "directory holding the YAML config")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print JSON instead of text")
}

// openDeps connects with the configured backends. The CLI only logs warnings.
func openDeps() (*app.Deps, error) {
	cfg, err := config.Load(configEnv, configDir)
	if err != nil {
		return nil, err
	}
	log := zap.NewNop()
	if configEnv == "local" {
		log, _ = zap.NewDevelopment(zap.IncreaseLevel(zap.WarnLevel))
	}
	return app.Open(cfg, log)
}

func requirePostgres(d *app.Deps) error {
	if d.Pool == nil {
		return fmt.Errorf("this command needs storage.driver=%s", app.DriverPostgres)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
