package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockup-labs/lockup/internal/daemon"
)

func init() {
	rootCmd.AddCommand(sweepCmd)
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run all due maintenance sweeps once and exit",
	Long: `Resolves expired voting windows, disburses outstanding hourly rewards,
rebalances the pinning queue, and settles board tasks past their deadline.
All sweeps are idempotent; running this redundantly is safe.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.DB.Close()

	votes, err := d.Voting.ResolveDue()
	if err != nil {
		return fmt.Errorf("resolve votes: %w", err)
	}
	hours, err := d.Reward.ProcessHourly()
	if err != nil {
		return fmt.Errorf("process rewards: %w", err)
	}
	pins, err := d.Pinning.UpdateQueue()
	if err != nil {
		return fmt.Errorf("update pin queue: %w", err)
	}
	boards, err := d.Lifecycle.SettleDue()
	if err != nil {
		return fmt.Errorf("settle boards: %w", err)
	}

	fmt.Printf("votes resolved:   %d\n", votes)
	fmt.Printf("hours disbursed:  %d\n", hours)
	fmt.Printf("pins expired:     %d (promoted %d, queued %d)\n", pins.Expired, pins.Promoted, pins.Queued)
	fmt.Printf("boards settled:   %d\n", boards)
	return nil
}
