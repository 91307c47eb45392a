package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockup-labs/lockup/internal/app/ledger"
	"github.com/lockup-labs/lockup/internal/daemon"
	"github.com/lockup-labs/lockup/internal/domain"
)

var ledgerLimit int

func init() {
	ledgerCmd.Flags().IntVar(&ledgerLimit, "limit", 20, "number of entries to show")
	rootCmd.AddCommand(ledgerCmd)
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger <user-id>",
	Short: "Show a user's coin balance and recent entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedger,
}

func runLedger(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.DB.Close()

	svc := ledger.NewService(d.DB)
	balance, err := svc.Balance(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("balance: %d coins\n", balance)

	entries, err := svc.History(args[0], ledgerLimit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		sign := "+"
		if e.EntryType == domain.EntryDebit {
			sign = "-"
		}
		fmt.Printf("%s  %s%d  %-18s %s\n",
			e.Timestamp.Format("2006-01-02 15:04"), sign, e.Amount, e.Type, e.Description)
	}
	return nil
}
