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
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/client-go/rest"

	"github.com/go-logr/logr"
)

var _ = Describe("Tunnel", func() {

	Context("New", func() {
		It("returns a kubectl forwarder for the kubectl method", func() {
			forwarder, err := New(MethodKubectl, nil, logr.Discard())
			Expect(err).NotTo(HaveOccurred())
			Expect(forwarder).To(BeAssignableToTypeOf(&KubectlForwarder{}))
		})

		It("returns a native forwarder for the native method", func() {
			forwarder, err := New(MethodNative, &rest.Config{Host: "https://localhost:6443"}, logr.Discard())
			Expect(err).NotTo(HaveOccurred())
			Expect(forwarder).To(BeAssignableToTypeOf(&NativeForwarder{}))
		})

		It("rejects the native method without a rest config", func() {
			_, err := New(MethodNative, nil, logr.Discard())
			Expect(err).To(HaveOccurred())
		})

		It("rejects an unknown method", func() {
			_, err := New("carrier-pigeon", nil, logr.Discard())
			Expect(err).To(HaveOccurred())
		})
	})

	Context("FreePort", func() {
		It("returns a port that can be bound", func() {
			port, err := FreePort()
			Expect(err).NotTo(HaveOccurred())
			Expect(port).To(BeNumerically(">", 0))

			listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
			Expect(err).NotTo(HaveOccurred())
			listener.Close()
		})
	})

	Context("LocalForwarder", func() {
		It("hands back its configured port", func() {
			forwarder := &LocalForwarder{Port: 9095}
			port, err := forwarder.Start(context.Background(), "default", "pod", 9095)
			Expect(err).NotTo(HaveOccurred())
			Expect(port).To(Equal(9095))
			forwarder.Stop()
		})
	})

	Context("Stop on an unstarted forwarder", func() {
		It("is safe for the kubectl forwarder", func() {
			NewKubectlForwarder(logr.Discard()).Stop()
		})

		It("is safe and repeatable for the native forwarder", func() {
			forwarder := NewNativeForwarder(&rest.Config{Host: "https://localhost:6443"}, logr.Discard())
			forwarder.Stop()
			forwarder.Stop()
		})
	})
})
