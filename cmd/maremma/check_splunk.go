package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/maremma/maremma/internal/checks"
	"github.com/maremma/maremma/internal/store"
)

// Nagios-compatible exit codes.
const (
	nagiosOK       = 0
	nagiosWarning  = 1
	nagiosCritical = 2
	nagiosUnknown  = 3
)

var checkSplunkCmd = &cobra.Command{
	Use:   "check-splunk",
	Short: "Nagios-compatible probe of a Splunk HTTP endpoint",
	RunE:  runCheckSplunk,
}

func init() {
	checkSplunkCmd.Flags().String("hostname", "", "Splunk management host to probe (required)")
	checkSplunkCmd.Flags().String("uri", "services/server/info", "HTTP path to request")
	checkSplunkCmd.Flags().Int("expected-status", 200, "HTTP status code that counts as healthy")
	checkSplunkCmd.Flags().Int("timeout", 10, "request timeout in seconds")
	checkSplunkCmd.MarkFlagRequired("hostname")
}

// runCheckSplunk reuses the HTTP runner's transport and status-mapping
// logic (same check kind the scheduler dispatches for service
// type=http), wrapped in the Nagios plugin exit-code contract instead
// of persisting a ServiceCheck row.
func runCheckSplunk(cmd *cobra.Command, args []string) error {
	hostname, _ := cmd.Flags().GetString("hostname")
	uri, _ := cmd.Flags().GetString("uri")
	expectedStatus, _ := cmd.Flags().GetInt("expected-status")
	timeoutSeconds, _ := cmd.Flags().GetInt("timeout")

	target := checks.Target{
		Host: store.Host{Hostname: hostname},
		ExtraConfig: map[string]any{
			"http_uri":    uri,
			"http_status": expectedStatus,
			"timeout":     timeoutSeconds,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSeconds+5)*time.Second)
	defer cancel()

	result, err := (checks.HTTPRunner{}).Run(ctx, target)
	if err != nil {
		fmt.Printf("UNKNOWN: %v\n", err)
		os.Exit(nagiosUnknown)
	}

	switch result.Status {
	case store.StatusOK:
		fmt.Printf("OK: %s\n", result.ResultText)
		os.Exit(nagiosOK)
	case store.StatusWarning:
		fmt.Printf("WARNING: %s\n", result.ResultText)
		os.Exit(nagiosWarning)
	case store.StatusCritical:
		fmt.Printf("CRITICAL: %s\n", result.ResultText)
		os.Exit(nagiosCritical)
	default:
		fmt.Printf("UNKNOWN: %s\n", result.ResultText)
		os.Exit(nagiosUnknown)
	}
	return nil
}
