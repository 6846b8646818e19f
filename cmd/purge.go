package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"trusight/database"
)

var purgeCmd = &cobra.Command{
	Use:   "purge-shares",
	Short: "Delete expired share links once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DbUrl == "" {
			return errors.New("DB_URL is not set")
		}
		db, err := database.InitDB(cmd.Context(), cfg.DbUrl)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()

		n, err := database.NewShareStore(db).PurgeExpired(cmd.Context())
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Println("Nothing to purge.")
		} else {
			fmt.Printf("Purged %d expired share link(s).\n", n)
		}
		return nil
	},
}
