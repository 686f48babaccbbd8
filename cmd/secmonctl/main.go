package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/secmon/internal/client"
	"github.com/telhawk-systems/secmon/internal/models"
)

var (
	serverURL    string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "secmonctl",
	Short: "Security monitor CLI",
	Long: `secmonctl is the command-line interface for the secmon service.

Submit security events, inspect alerts, and check pipeline status
from your terminal.`,
	Version: "0.1.0",
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Alert management",
	Long:  "View and acknowledge security alerts",
}

var alertsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List security alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		var acknowledged *bool
		if cmd.Flags().Changed("acknowledged") {
			value, _ := cmd.Flags().GetBool("acknowledged")
			acknowledged = &value
		}

		alerts, err := client.New(serverURL).ListAlerts(context.Background(), acknowledged)
		if err != nil {
			return fmt.Errorf("failed to list alerts: %w", err)
		}

		if outputFormat == "json" {
			return printJSON(alerts)
		}

		if len(alerts) == 0 {
			fmt.Println("No alerts found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSEVERITY\tSOURCE\tACKED\tCREATED")
		for _, alert := range alerts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
				alert.ID, alert.Title, alert.Severity, alert.SourceID,
				alert.Acknowledged, alert.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack [id]",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.New(serverURL).AcknowledgeAlert(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to acknowledge alert: %w", err)
		}
		fmt.Printf("Alert %s acknowledged\n", args[0])
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline status",
	Long:  "Display the threat score, alert counts, and ingestion statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := client.New(serverURL).Snapshot(context.Background())
		if err != nil {
			return fmt.Errorf("failed to fetch status: %w", err)
		}

		if outputFormat == "json" {
			return printJSON(snap)
		}

		fmt.Printf("Threat score:     %.1f (%s)\n", snap.ThreatScore, snap.ThreatBand)
		fmt.Printf("Active alerts:    %d (%d unacknowledged)\n", snap.ActiveAlerts, snap.UnacknowledgedAlerts)
		fmt.Printf("Blocked sources:  %d\n", snap.BlockedSources)
		fmt.Printf("Deduped alerts:   %d\n", snap.DedupedAlerts)
		fmt.Printf("Dropped alerts:   %d\n", snap.DroppedAlerts)
		if len(snap.EventCounts) > 0 {
			fmt.Println("Events by type:")
			for eventType, count := range snap.EventCounts {
				fmt.Printf("  %-24s %d\n", eventType, count)
			}
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Event submission",
}

var eventsSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Submit a security event",
	RunE: func(cmd *cobra.Command, args []string) error {
		eventType, _ := cmd.Flags().GetString("type")
		source, _ := cmd.Flags().GetString("source")
		endpoint, _ := cmd.Flags().GetString("endpoint")

		event := &models.SecurityEvent{
			EventType: models.EventType(eventType),
			SourceID:  source,
			Endpoint:  endpoint,
		}

		id, err := client.New(serverURL).RecordEvent(context.Background(), event)
		if err != nil {
			return fmt.Errorf("failed to record event: %w", err)
		}
		fmt.Printf("Event recorded: %s\n", id)
		return nil
	},
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8086", "secmon server URL")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table, json")

	alertsListCmd.Flags().Bool("acknowledged", false, "filter by acknowledgment state")
	eventsSendCmd.Flags().String("type", "", "event type (e.g. login_failed)")
	eventsSendCmd.Flags().String("source", "", "source identifier (e.g. client IP)")
	eventsSendCmd.Flags().String("endpoint", "", "endpoint the event was observed on")
	_ = eventsSendCmd.MarkFlagRequired("type")
	_ = eventsSendCmd.MarkFlagRequired("source")

	alertsCmd.AddCommand(alertsListCmd, alertsAckCmd)
	eventsCmd.AddCommand(eventsSendCmd)
	rootCmd.AddCommand(alertsCmd, eventsCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
