package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

var reactIterations int

var reactCmd = &cobra.Command{
	Use:   "react [query]",
	Short: "Process a query with the iterative reasoning loop",
	Long: `Run the bounded Reasoning-Acting-Observing loop: the model sees each
tool result and may request further tools, up to the iteration limit.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReact,
}

func init() {
	reactCmd.Flags().IntVar(&reactIterations, "iterations", -1, "iteration limit (-1 uses the configured default)")
	reactCmd.Flags().BoolVar(&runGrantModifying, "grant-modifying", false, "auto-approve modifying tools (headless mode)")
	rootCmd.AddCommand(reactCmd)
}

func runReact(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntimeForQuery()
	if err != nil {
		return err
	}
	defer rt.close()

	query := strings.Join(args, " ")
	response := rt.orchestrator.ExecuteReActCycle(cmd.Context(), userID, query, reactIterations)
	printResponse(response)
	return nil
}
