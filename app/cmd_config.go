package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func NewCmdConfig(out io.Writer, config *Config) *cobra.Command {
	var showSecrets bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doConfig(out, config, showSecrets)
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print the JWT key and the Postgres DSN")

	return cmd
}

func doConfig(out io.Writer, config *Config, showSecrets bool) error {
	fmt.Fprintln(out, "\n################################################################# Configuration")
	_, err := fmt.Fprintf(out, "%s", config.render(!showSecrets))
	return err
}
