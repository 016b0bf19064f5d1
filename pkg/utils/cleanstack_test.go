/*
Copyright © 2022 - 2025 SUSE LLC

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

package utils_test

import (
	"errors"

	"github.com/hashicorp/go-multierror"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rancher/chorut/pkg/utils"
)

var _ = Describe("CleanStack", Label("cleanstack", "utils"), func() {
	var cleaner *utils.CleanStack
	var calls []string

	record := func(name string, err error) utils.CleanFunc {
		return func() error {
			calls = append(calls, name)
			return err
		}
	}

	BeforeEach(func() {
		cleaner = utils.NewCleanStack()
		calls = []string{}
	})
	It("runs jobs in reverse order", func() {
		cleaner.Push(record("first", nil))
		cleaner.Push(record("second", nil))
		cleaner.Push(record("third", nil))
		Expect(cleaner.Len()).To(Equal(3))
		Expect(cleaner.Cleanup(nil)).To(Succeed())
		Expect(calls).To(Equal([]string{"third", "second", "first"}))
		Expect(cleaner.Len()).To(Equal(0))
	})
	It("pops nothing from an empty stack", func() {
		Expect(cleaner.Pop()).To(BeNil())
	})
	It("runs error only jobs on error", func() {
		cleaner.Push(record("always", nil))
		cleaner.PushErrorOnly(record("rollback", nil))
		cleaner.PushSuccessOnly(record("commit", nil))

		err := errors.New("setup failed")
		Expect(cleaner.Cleanup(err)).To(Equal(err))
		Expect(calls).To(Equal([]string{"rollback", "always"}))
	})
	It("runs success only jobs on success", func() {
		cleaner.Push(record("always", nil))
		cleaner.PushErrorOnly(record("rollback", nil))
		cleaner.PushSuccessOnly(record("commit", nil))

		Expect(cleaner.Cleanup(nil)).To(Succeed())
		Expect(calls).To(Equal([]string{"commit", "always"}))
	})
	It("returns a job failure as is", func() {
		jobErr := errors.New("unmount failed")
		cleaner.Push(record("unmount", jobErr))
		Expect(cleaner.Cleanup(nil)).To(Equal(jobErr))
	})
	It("runs every job and aggregates their failures", func() {
		cause := errors.New("mount failed")
		first := errors.New("first unmount failed")
		second := errors.New("second unmount failed")
		cleaner.PushErrorOnly(record("first", first))
		cleaner.PushErrorOnly(record("second", second))

		err := cleaner.Cleanup(cause)
		Expect(calls).To(Equal([]string{"second", "first"}))

		var merr *multierror.Error
		Expect(errors.As(err, &merr)).To(BeTrue())
		Expect(merr.Errors).To(Equal([]error{cause, second, first}))
		Expect(errors.Is(err, cause)).To(BeTrue())
		Expect(errors.Is(err, first)).To(BeTrue())
	})
})
