package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolgate/toolgate/pkg/security"
)

var (
	auditUser string
	auditFrom string
	auditTo   string
	auditJSON bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the tool execution audit trail",
	Long: `List audit entries, newest first. Filters narrow by user and time
window; the trail itself is append-only and never mutated by reads.`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditUser, "filter-user", "", "only entries for this user")
	auditCmd.Flags().StringVar(&auditFrom, "from", "", "only entries at or after this time (RFC 3339)")
	auditCmd.Flags().StringVar(&auditTo, "to", "", "only entries at or before this time (RFC 3339)")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "emit entries as JSON")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(nil)
	if err != nil {
		return err
	}
	defer rt.close()

	filter := security.AuditFilter{}
	if auditUser != "" {
		filter.UserID = auditUser
	}
	if auditFrom != "" {
		from, err := time.Parse(time.RFC3339, auditFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}
		filter.FromDate = &from
	}
	if auditTo != "" {
		to, err := time.Parse(time.RFC3339, auditTo)
		if err != nil {
			return fmt.Errorf("invalid --to value: %w", err)
		}
		filter.ToDate = &to
	}

	entries, err := rt.manager.GetAuditTrail(cmd.Context(), filter)
	if err != nil {
		return err
	}

	if auditJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("no audit entries")
		return nil
	}

	for _, entry := range entries {
		status := "ok"
		if !entry.IsSuccess {
			status = "FAILED"
		}
		fmt.Printf("%s  %-8s %-20s user=%s %s\n",
			entry.Timestamp.Format(time.RFC3339), status, entry.ToolName, entry.UserID, entry.ResultSummary)
		if entry.BackupID != "" {
			fmt.Printf("%41s backup=%s\n", "", entry.BackupID)
		}
	}
	fmt.Printf("\n%d entries\n", len(entries))
	return nil
}
