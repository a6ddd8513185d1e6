// solerctl is the back-office admin CLI: schema migrations and on-demand
// background sweeps without going through the HTTP surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:     "solerctl",
	Short:   "Solera billing administration CLI",
	Version: version,
	Long: `solerctl administers the Solera billing service: applying schema
migrations and triggering background sweeps outside their schedule.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
