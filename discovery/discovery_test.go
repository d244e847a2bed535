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

package discovery

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func newPod(name, namespace string, labels map[string]string, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
		},
		Status: corev1.PodStatus{
			Phase: phase,
		},
	}
}

var _ = Describe("Discovery", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("FirstRunningPod", func() {
		selector := "app=coverage-demo"
		labels := map[string]string{"app": "coverage-demo"}

		It("returns the first running pod matching the selector", func() {
			clientset := fake.NewSimpleClientset(
				newPod("demo-pending", "default", labels, corev1.PodPending),
				newPod("demo-running", "default", labels, corev1.PodRunning),
			)

			name, err := FirstRunningPod(ctx, clientset, "default", selector)
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("demo-running"))
		})

		It("ignores running pods that do not match the selector", func() {
			clientset := fake.NewSimpleClientset(
				newPod("other", "default", map[string]string{"app": "other"}, corev1.PodRunning),
			)

			_, err := FirstRunningPod(ctx, clientset, "default", selector)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("no running pod found"))
		})

		It("ignores matching pods in other namespaces", func() {
			clientset := fake.NewSimpleClientset(
				newPod("demo", "staging", labels, corev1.PodRunning),
			)

			_, err := FirstRunningPod(ctx, clientset, "default", selector)
			Expect(err).To(HaveOccurred())
		})

		It("fails when no pod is running", func() {
			clientset := fake.NewSimpleClientset(
				newPod("demo", "default", labels, corev1.PodFailed),
			)

			_, err := FirstRunningPod(ctx, clientset, "default", selector)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("no running pod found"))
		})
	})
})
