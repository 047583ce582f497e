package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var dbTimeout time.Duration

var dbhealthCmd = &cobra.Command{
	Use:   "dbhealth",
	Short: "Open the database, apply the schema and ping it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := build(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.DB.HealthCheck(cmd.Context(), dbTimeout); err != nil {
			return fmt.Errorf("database unhealthy: %w", err)
		}
		fmt.Println("database OK")
		return nil
	},
}

func init() {
	dbhealthCmd.Flags().DurationVar(&dbTimeout, "timeout", 3*time.Second, "ping timeout")
}
