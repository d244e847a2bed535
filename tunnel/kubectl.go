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
	"os/exec"
	"time"

	"github.com/go-logr/logr"
)

// stopGracePeriod bounds the wait for the port-forward process to exit after
// termination is requested, before it is killed.
const stopGracePeriod = 5 * time.Second

// KubectlForwarder tunnels through a `kubectl port-forward` child process.
type KubectlForwarder struct {
	logger logr.Logger
	cmd    *exec.Cmd
	done   chan error
}

// NewKubectlForwarder returns an unstarted kubectl-mediated Forwarder.
func NewKubectlForwarder(logger logr.Logger) *KubectlForwarder {
	return &KubectlForwarder{logger: logger}
}

// Start spawns the port-forward process on a free local port and blocks
// until the sidecar behind it answers health checks. The process is torn
// down before returning an error.
func (f *KubectlForwarder) Start(ctx context.Context, namespace, podName string, remotePort int) (int, error) {
	localPort, err := FreePort()
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, "kubectl", "port-forward",
		"-n", namespace,
		podName,
		fmt.Sprintf("%d:%d", localPort, remotePort))
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start kubectl port-forward: %w", err)
	}
	f.cmd = cmd
	f.done = make(chan error, 1)
	go func() {
		f.done <- cmd.Wait()
	}()

	f.logger.Info("kubectl port-forward started", "pod", podName, "localPort", localPort, "remotePort", remotePort)

	if err := waitReady(ctx, localPort, f.logger); err != nil {
		f.Stop()
		return 0, err
	}

	return localPort, nil
}

// Stop terminates the port-forward process, waiting up to the grace period
// before killing it. Safe to call when Start never ran or already failed.
func (f *KubectlForwarder) Stop() {
	if f.cmd == nil || f.cmd.Process == nil {
		return
	}

	if err := f.cmd.Process.Signal(terminationSignal); err != nil {
		f.cmd.Process.Kill()
		f.cmd = nil
		return
	}

	select {
	case <-f.done:
	case <-time.After(stopGracePeriod):
		f.logger.Info("kubectl port-forward did not exit, killing it")
		f.cmd.Process.Kill()
		<-f.done
	}
	f.cmd = nil
}
