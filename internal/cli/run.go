package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toolgate/toolgate/pkg/agent"
	"github.com/toolgate/toolgate/pkg/security"
)

var runGrantModifying bool

var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Process a single query through the tool pipeline",
	Long: `Run one query: the model is prompted once, any tool directives in
its answer are executed through the security pipeline, and the final
response is printed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runGrantModifying, "grant-modifying", false, "auto-approve modifying tools (headless mode)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntimeForQuery()
	if err != nil {
		return err
	}
	defer rt.close()

	query := strings.Join(args, " ")
	response := rt.orchestrator.ProcessQuery(cmd.Context(), userID, query)
	printResponse(response)
	return nil
}

func buildRuntimeForQuery() (*runtime, error) {
	if runGrantModifying {
		return buildRuntime(&security.SimulatedApprovalProvider{GrantModifying: true})
	}
	return buildRuntime(nil)
}

func printResponse(response agent.AgentResponse) {
	fmt.Println(response.ResponseText)

	if len(response.ToolExecutions) > 0 {
		fmt.Println()
		fmt.Printf("Tools executed (%d):\n", len(response.ToolExecutions))
		for _, exec := range response.ToolExecutions {
			status := "ok"
			if !exec.Result.Success {
				status = "failed: " + exec.Result.ErrorMessage
			}
			fmt.Printf("  %s  %s\n", exec.Call.ToolName, status)
		}
	}
	for _, warning := range response.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
	for _, errText := range response.Errors {
		fmt.Printf("error: %s\n", errText)
	}
	fmt.Printf("\ncomplete=%v duration=%s\n", response.IsComplete, response.ProcessingTime)
}
