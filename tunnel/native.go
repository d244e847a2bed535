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

package tunnel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"

	"github.com/go-logr/logr"
)

// NativeForwarder tunnels through the Kubernetes API server's port-forward
// subresource over SPDY, without requiring the kubectl binary.
type NativeForwarder struct {
	config   *rest.Config
	logger   logr.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	errCh    chan error
}

// NewNativeForwarder returns an unstarted in-process Forwarder.
func NewNativeForwarder(config *rest.Config, logger logr.Logger) *NativeForwarder {
	return &NativeForwarder{config: config, logger: logger}
}

// Start establishes the port-forward on a kernel-assigned local port and
// blocks until the sidecar behind it answers health checks. The tunnel is
// torn down before returning an error.
func (f *NativeForwarder) Start(ctx context.Context, namespace, podName string, remotePort int) (int, error) {
	roundTripper, upgrader, err := spdy.RoundTripperFor(f.config)
	if err != nil {
		return 0, fmt.Errorf("failed to create SPDY round tripper: %w", err)
	}

	serverURL, err := url.Parse(f.config.Host)
	if err != nil {
		return 0, fmt.Errorf("failed to parse API server host %q: %w", f.config.Host, err)
	}
	serverURL.Path = path.Join(serverURL.Path,
		fmt.Sprintf("/api/v1/namespaces/%s/pods/%s/portforward", namespace, podName))

	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: roundTripper}, http.MethodPost, serverURL)

	f.stopCh = make(chan struct{})
	f.stopOnce = sync.Once{}
	readyCh := make(chan struct{})

	forwarder, err := portforward.New(dialer,
		[]string{fmt.Sprintf("0:%d", remotePort)},
		f.stopCh, readyCh, io.Discard, io.Discard)
	if err != nil {
		return 0, fmt.Errorf("failed to create port forwarder: %w", err)
	}

	f.errCh = make(chan error, 1)
	go func() {
		f.errCh <- forwarder.ForwardPorts()
	}()

	select {
	case <-readyCh:
	case err := <-f.errCh:
		return 0, fmt.Errorf("port-forward to pod %s failed: %w", podName, err)
	case <-ctx.Done():
		f.Stop()
		return 0, ctx.Err()
	}

	ports, err := forwarder.GetPorts()
	if err != nil || len(ports) == 0 {
		f.Stop()
		return 0, fmt.Errorf("failed to resolve forwarded ports: %w", err)
	}
	localPort := int(ports[0].Local)

	f.logger.Info("native port-forward established", "pod", podName, "localPort", localPort, "remotePort", remotePort)

	if err := waitReady(ctx, localPort, f.logger); err != nil {
		f.Stop()
		return 0, err
	}

	return localPort, nil
}

// Stop closes the tunnel. Safe to call repeatedly and when Start never ran.
func (f *NativeForwarder) Stop() {
	if f.stopCh == nil {
		return
	}
	f.stopOnce.Do(func() {
		close(f.stopCh)
	})
}
