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

import "context"

// LocalForwarder is a no-op Forwarder for sidecars already reachable on
// localhost, such as an in-process sidecar under test.
type LocalForwarder struct {
	// Port is the local port the sidecar listens on.
	Port int
}

// Start returns the configured local port unchanged.
func (f *LocalForwarder) Start(_ context.Context, _, _ string, _ int) (int, error) {
	return f.Port, nil
}

// Stop is a no-op.
func (f *LocalForwarder) Stop() {}
