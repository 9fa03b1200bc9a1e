// Command concurrentbench exercises the collections in this module
// end to end: each subcommand runs one of the scenarios the package was
// designed against and records Prometheus metrics for it.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	log      = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "concurrentbench",
	Short: "Exercises the concurrent collections package against realistic scenarios",
	Long: `concurrentbench drives the reentrant locks, read/write lock, segmented
map, blocking queue/deque and copy-on-write collections through the
scenarios they were built against, recording Prometheus metrics for each
run in the process's default registry (nothing is printed; serve-metrics
exposes that registry over HTTP).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("parsing log level: %w", err)
		}
		log.SetLevel(lvl)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(mapCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(conditionCmd)
	rootCmd.AddCommand(cowlistCmd)
	rootCmd.AddCommand(metricsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
