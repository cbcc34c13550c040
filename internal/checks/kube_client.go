// Kubernetes client wrapper used by the kube HostCheck and the
// k8s-discovery command: a thin layer over k8s.io/client-go exposing
// only the two operations either caller needs — a liveness probe and
// a namespace's Service listing.
package checks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// KubeClient is the interface both the kube HostCheck and the
// k8s-discovery command consume.
type KubeClient interface {
	// Healthz probes the API server's /healthz endpoint. A non-nil
	// error means the host should be considered down.
	Healthz(ctx context.Context) error

	// ListServices returns every Service in namespace.
	ListServices(ctx context.Context, namespace string) ([]corev1.Service, error)

	Close() error
}

// KubeClientConfig configures API access and retry behavior.
type KubeClientConfig struct {
	APIHost         string
	APIPort         int
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	Logger          *slog.Logger
}

// DefaultKubeClientConfig returns configuration with sensible defaults
// for an API host dialed over the cluster's usual :6443.
func DefaultKubeClientConfig(apiHost string, apiPort int) *KubeClientConfig {
	return &KubeClientConfig{
		APIHost:         apiHost,
		APIPort:         apiPort,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
		Logger:          slog.Default(),
	}
}

// DefaultKubeClient implements KubeClient using k8s.io/client-go.
type DefaultKubeClient struct {
	clientset kubernetes.Interface
	config    *KubeClientConfig
	logger    *slog.Logger
}

// NewKubeClient builds a REST config from the pod's in-cluster service
// account (token and CA bundle) but targets the host:port named by
// config, which lets the kube HostCheck probe any host in the
// configured set rather than only its own control plane.
func NewKubeClient(config *KubeClientConfig) (KubeClient, error) {
	if config == nil {
		return nil, fmt.Errorf("kube client config is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	restConfig, err := rest.InClusterConfig()
	if err != nil {
		return nil, NewConnectionError("failed to load in-cluster credentials", err)
	}
	restConfig.Host = fmt.Sprintf("https://%s:%d", config.APIHost, config.APIPort)
	restConfig.Timeout = config.Timeout

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, NewConnectionError("failed to create clientset", err)
	}

	return &DefaultKubeClient{clientset: clientset, config: config, logger: logger}, nil
}

// Healthz issues a raw GET against /healthz via the discovery client's
// REST client, the same lightweight probe kubelet itself uses.
func (c *DefaultKubeClient) Healthz(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := c.clientset.Discovery().RESTClient().Get().AbsPath("/healthz").DoRaw(healthCtx)
	if err != nil {
		return NewConnectionError("API server unreachable", err)
	}
	if string(body) != "ok" {
		return NewConnectionError(fmt.Sprintf("unhealthy response: %s", body), nil)
	}
	return nil
}

// ListServices returns every Service in namespace, retrying transient
// failures with exponential backoff.
func (c *DefaultKubeClient) ListServices(ctx context.Context, namespace string) ([]corev1.Service, error) {
	var services []corev1.Service
	err := c.retryWithBackoff(ctx, func() error {
		list, err := c.clientset.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{Limit: 1000})
		if err != nil {
			return err
		}
		services = list.Items
		return nil
	})
	if err != nil {
		return nil, wrapK8sError("list services", err)
	}
	return services, nil
}

func (c *DefaultKubeClient) Close() error {
	c.clientset = nil
	return nil
}

func (c *DefaultKubeClient) retryWithBackoff(ctx context.Context, operation func() error) error {
	backoff := c.config.RetryBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return NewTimeoutError("operation cancelled", ctx.Err())
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		if !isRetryableError(err) {
			return err
		}
		if attempt == c.config.MaxRetries {
			return err
		}

		c.logger.Warn("retrying kube operation", "attempt", attempt+1, "max_retries", c.config.MaxRetries, "backoff", backoff, "error", err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return NewTimeoutError("operation cancelled during backoff", ctx.Err())
		}

		backoff *= 2
		if backoff > c.config.MaxRetryBackoff {
			backoff = c.config.MaxRetryBackoff
		}
	}

	return fmt.Errorf("operation failed after %d retries", c.config.MaxRetries)
}
