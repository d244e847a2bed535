/*
Copyright 2022.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package tunnel provides the transport used to reach a remote sidecar's
// control endpoint. Two interchangeable implementations exist: one mediated
// by the kubectl binary and one using the Kubernetes API machinery
// in-process. Both present the tunnel as a local port.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"k8s.io/client-go/rest"

	"github.com/go-logr/logr"
)

const (
	// MethodKubectl selects the external-binary-mediated tunnel.
	MethodKubectl = "kubectl"

	// MethodNative selects the in-process tunnel.
	MethodNative = "native"

	// readinessAttempts bounds the health polling performed after a tunnel
	// is established and before it is handed to the caller.
	readinessAttempts = 5

	// readinessInterval is the pause between health polls.
	readinessInterval = time.Second

	// readinessProbeTimeout caps each individual health request.
	readinessProbeTimeout = 2 * time.Second
)

// Forwarder tunnels to a pod's port and exposes it locally. Start blocks
// until the tunnel is ready or fails; Stop tears the tunnel down and must be
// safe to call on every exit path, including after a failed Start.
type Forwarder interface {
	Start(ctx context.Context, namespace, podName string, remotePort int) (int, error)
	Stop()
}

// New returns the Forwarder for the given method selector. The rest config
// is only required by the native method.
func New(method string, config *rest.Config, logger logr.Logger) (Forwarder, error) {
	switch method {
	case MethodKubectl:
		return NewKubectlForwarder(logger), nil
	case MethodNative:
		if config == nil {
			return nil, fmt.Errorf("native tunnel requires a rest config")
		}
		return NewNativeForwarder(config, logger), nil
	default:
		return nil, fmt.Errorf("unknown tunnel method %q", method)
	}
}

// FreePort asks the kernel for an unused local TCP port.
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to allocate a local port: %w", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitReady polls the sidecar health endpoint through the tunnel with
// bounded retries. This wait is the operation's timeout floor, separate from
// any caller-supplied timeout on the data fetch itself.
func waitReady(ctx context.Context, localPort int, logger logr.Logger) error {
	client := &http.Client{Timeout: readinessProbeTimeout}
	url := fmt.Sprintf("http://localhost:%d/health", localPort)

	for attempt := 0; attempt < readinessAttempts; attempt++ {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		response, err := client.Do(request)
		if err == nil {
			response.Body.Close()
			if response.StatusCode == http.StatusOK {
				logger.V(1).Info("tunnel ready", "localPort", localPort)
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readinessInterval):
		}
	}

	return fmt.Errorf("tunnel to local port %d never became ready", localPort)
}
