package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"postmark-backend/internal/mailbox/domain"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync for a mailbox connection",
	Long:  "Runs a single full or delta sync for one connection and prints the result as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		connectionID, _ := cmd.Flags().GetString("connection")
		rawMode, _ := cmd.Flags().GetString("mode")
		maxResults, _ := cmd.Flags().GetInt("max-results")

		if connectionID == "" {
			return fmt.Errorf("--connection is required")
		}
		mode, err := domain.ParseSyncMode(rawMode)
		if err != nil {
			return err
		}

		db, err := openValidatedDatabase()
		if err != nil {
			return err
		}
		s := buildServices(db)

		ctx := context.Background()
		conn, err := s.connections.FindByID(ctx, connectionID)
		if err != nil {
			return err
		}
		if conn == nil {
			return domain.ErrConnectionNotFound
		}

		result, err := s.mailbox.SyncConnection(ctx, conn, mode, maxResults)
		if err != nil {
			if guidance := domain.Guidance(err); guidance != "" {
				return fmt.Errorf("%w\n%s", err, guidance)
			}
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	syncCmd.Flags().String("connection", "", "Mailbox connection ID")
	syncCmd.Flags().String("mode", string(domain.SyncModeDelta), "Sync mode: full or delta")
	syncCmd.Flags().Int("max-results", 0, "Messages to fetch in query mode (default from SYNC_DEFAULT_MAX_RESULTS)")
}
