package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steward-ai/steward/internal/gate"
)

var evalLevel string

// evaluateCmd is a one-shot gate check: what would happen to this action at
// this level. Useful for sanity-checking the allowlist without a server.
var evaluateCmd = &cobra.Command{
	Use:   "evaluate <action>",
	Short: "Evaluate an action against the permission gate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		decision := gate.New().EvaluateRaw(args[0], evalLevel)
		fmt.Println(decision)
		if decision == gate.Rejected {
			return fmt.Errorf("action %q rejected at level %s", args[0], evalLevel)
		}
		return nil
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evalLevel, "level", string(gate.ReadOnly), "permission level")
}
