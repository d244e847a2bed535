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

package sidecar

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/go-logr/logr"
)

// RunTarget launches the target program under the control endpoint and
// blocks until it exits. The endpoint serves for as long as the target runs;
// collection is paused once the target is gone so late dump requests observe
// a stable final state.
func RunTarget(ctx context.Context, collector Collector, port int, argv []string, logger logr.Logger) error {
	if len(argv) == 0 {
		return fmt.Errorf("no target command given")
	}

	server := NewServer(collector, logger)
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go server.Start(serverCtx, port)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	logger.Info("running target", "command", argv)
	err := cmd.Run()
	collector.Pause()
	if err != nil {
		return fmt.Errorf("target exited with error: %w", err)
	}

	return nil
}
