package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockup-labs/lockup/internal/daemon"
	"github.com/lockup-labs/lockup/internal/domain"
	"github.com/lockup-labs/lockup/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show task counts by state",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.DB.Close()

	states := []domain.TaskStatus{
		domain.StatusPending, domain.StatusActive, domain.StatusVoting,
		domain.StatusVotingPassed, domain.StatusCompleted, domain.StatusFailed,
		domain.StatusOpen, domain.StatusTaken, domain.StatusSubmitted,
	}
	for _, st := range states {
		tasks, err := d.Lifecycle.List(sqlite.TaskFilter{Status: st})
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			continue
		}
		fmt.Printf("%-14s %d\n", st, len(tasks))
	}

	queue, err := d.Pinning.Queue()
	if err != nil {
		return err
	}
	if len(queue) > 0 {
		fmt.Printf("\npin queue:\n")
		for _, p := range queue {
			slot := "queued"
			if p.Position > 0 {
				slot = fmt.Sprintf("slot %d", p.Position)
			}
			fmt.Printf("  %-8s %s (expires %s)\n", slot, p.PinnedUser, p.ExpiresAt.Format("15:04:05"))
		}
	}
	return nil
}
