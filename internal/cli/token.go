package cli

import (
	"fmt"
	"strings"

	"github.com/DukeRupert/quotaledger/internal/middleware"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "API token helpers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "hash TOKEN",
		Short: "Print the bcrypt hash to use as API_TOKEN_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(args[0])
			if len(token) < 16 {
				return fmt.Errorf("token must be at least 16 characters")
			}
			hash, err := middleware.HashToken(token)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	})

	return cmd
}
