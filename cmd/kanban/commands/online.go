package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/AnirudhanSS/kanban-app-sub000/internal/printer"
)

var onlineCmd = &cobra.Command{
	Use:   "online <board-id>",
	Short: "List the users currently online on a board",
	Args:  cobra.ExactArgs(1),
	RunE:  runOnline,
}

func init() {
	rootCmd.AddCommand(onlineCmd)
}

func runOnline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newCollabClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	boardID := args[0]
	userIDs, err := client.ListOnline(ctx, boardID)
	if err != nil {
		return printer.Error("Failed to list online users", err.Error(), []string{
			"Check that Redis is reachable and the instance name matches the server",
		})
	}

	if len(userIDs) == 0 {
		printer.Info("No users online on board %s\n", boardID)
		return nil
	}
	printer.Success("%d user(s) online on board %s\n", len(userIDs), boardID)
	for _, userID := range userIDs {
		printer.Printf("  %s\n", userID)
	}
	return nil
}
