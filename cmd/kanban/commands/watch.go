package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AnirudhanSS/kanban-app-sub000/internal/printer"
	"github.com/AnirudhanSS/kanban-app-sub000/pkg/collab"
)

var watchCmd = &cobra.Command{
	Use:   "watch [board-id]",
	Short: "Tail room events as they are broadcast",
	Long: `Subscribes to the event bus and prints every room event as it
happens. With a board id only that board's room is followed; without
one, every room in the instance namespace is.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newCollabClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sub *collab.Subscription
	if len(args) == 1 {
		sub, err = client.SubscribeRooms(ctx, collab.BoardRoom(args[0]))
		printer.Step("Watching board %s (Ctrl-C to stop)\n", args[0])
	} else {
		sub, err = client.SubscribeAllRooms(ctx)
		printer.Step("Watching all rooms in instance %q (Ctrl-C to stop)\n", cfg.Instance)
	}
	if err != nil {
		return printer.Error("Failed to subscribe", err.Error(), []string{
			"Check that Redis is reachable and the instance name matches the server",
		})
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			printer.Println()
			printer.Info("Stopped watching.\n")
			return nil
		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			printer.Warning("subscription error: %v\n", err)
		case msg, ok := <-sub.Events():
			if !ok {
				return nil
			}
			printer.Printf("%-24s %-18s %s\n", msg.Room, msg.Envelope.Event, string(msg.Envelope.Data))
		}
	}
}
