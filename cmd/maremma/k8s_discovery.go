package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maremma/maremma/internal/checks"
)

var k8sDiscoveryCmd = &cobra.Command{
	Use:   "k8s-discovery",
	Short: "list Kubernetes Services in a namespace as a maremma hosts fragment",
	RunE:  runK8sDiscovery,
}

func init() {
	k8sDiscoveryCmd.Flags().String("api-host", "", "Kubernetes API server host (required)")
	k8sDiscoveryCmd.Flags().Int("api-port", 6443, "Kubernetes API server port")
	k8sDiscoveryCmd.Flags().String("namespace", "default", "namespace to list Services from")
	k8sDiscoveryCmd.MarkFlagRequired("api-host")
}

// discoveredHost mirrors the shape of a single entry under the
// configuration file's "hosts" map, keyed by Service name.
type discoveredHost struct {
	Hostname string `json:"hostname"`
	Check    string `json:"check"`
}

func runK8sDiscovery(cmd *cobra.Command, args []string) error {
	apiHost, _ := cmd.Flags().GetString("api-host")
	apiPort, _ := cmd.Flags().GetInt("api-port")
	namespace, _ := cmd.Flags().GetString("namespace")

	client, err := checks.NewKubeClient(checks.DefaultKubeClientConfig(apiHost, apiPort))
	if err != nil {
		return fmt.Errorf("build kube client: %w", err)
	}
	defer client.Close()

	ctx := context.Background()
	services, err := client.ListServices(ctx, namespace)
	if err != nil {
		return fmt.Errorf("list services: %w", err)
	}

	hosts := make(map[string]discoveredHost, len(services))
	for _, svc := range services {
		fqdn := fmt.Sprintf("%s.%s.svc.cluster.local", svc.Name, svc.Namespace)
		hosts[svc.Name] = discoveredHost{Hostname: fqdn, Check: "none"}
	}

	out, err := json.MarshalIndent(map[string]any{"hosts": hosts}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
