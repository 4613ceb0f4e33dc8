// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("EventQueue", func() {
	var (
		form *Form
		fld  *Field
	)

	BeforeEach(func() {
		var err error
		form, err = NewForm(map[string]any{
			"items": []any{
				map[string]any{"id": "name", "name": "name", "fieldType": "text-input"},
			},
		})
		Expect(err).ToNot(HaveOccurred())
		fld = fieldByID(form, "name")
	})

	It("Should hold construction actions until drained", func() {
		q := form.Queue()
		Expect(q.Len()).To(BeNumerically(">", 0))
		Expect(q.IsQueued(form, FormLoad())).To(BeTrue())
		Expect(q.IsQueued(fld, Initialize())).To(BeTrue())

		q.RunPending()
		Expect(q.Len()).To(Equal(0))
		Expect(q.IsQueued(form, FormLoad())).To(BeFalse())
		Expect(q.Processing()).To(BeFalse())
	})

	It("Should place priority actions first", func() {
		form.Queue().Queue(fld, true, Invalid())
		Expect(form.Queue().pending[0].action.Type).To(Equal(InvalidType))
		Expect(form.Queue().pending[0].node).To(BeIdenticalTo(element(fld)))
	})

	It("Should cap repeated actions per node during a drain", func() {
		q := form.Queue()

		count := func() int {
			c := 0
			for _, e := range q.pending {
				if e.node == element(fld) && e.action.Type == ExecuteRuleType {
					c++
				}
			}
			return c
		}

		Expect(count()).To(Equal(1))

		for range 20 {
			q.Queue(fld, false, ExecuteRule())
		}
		Expect(count()).To(Equal(MaxEventCycleCount))

		q.RunPending()
		q.Queue(fld, false, ExecuteRule())
		Expect(count()).To(Equal(1))
	})

	It("Should set the target of queued actions", func() {
		form.Queue().Queue(fld, false, Click())
		last := form.Queue().pending[form.Queue().Len()-1]
		Expect(last.action.Target).To(BeIdenticalTo(Node(fld)))
	})
})

var _ = Describe("IdPool", func() {
	It("Should hand out unique ids", func() {
		p := NewIdPool(5)
		seen := map[string]bool{}
		for range 100 {
			id := p.Next()
			Expect(id).To(HaveLen(idLength))
			Expect(seen).ToNot(HaveKey(id))
			seen[id] = true
		}
	})

	It("Should never return reserved ids", func() {
		p := NewIdPool(1)
		p.Reserve("fixed")
		for range 50 {
			Expect(p.Next()).ToNot(Equal("fixed"))
		}
	})
})

var _ = Describe("Actions", func() {
	DescribeTable("NewAction",
		func(name string, payload any, typ string, custom bool) {
			a, err := NewAction(name, payload)
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Type).To(Equal(typ))
			Expect(a.IsCustom()).To(Equal(custom))
		},
		Entry("click", "click", nil, ClickType, false),
		Entry("reset", "reset", nil, ResetType, false),
		Entry("addItem", "addItem", 1.0, AddItemType, false),
		Entry("removeInstance", "removeInstance", nil, RemoveInstanceType, false),
		Entry("custom", "custom:saved", map[string]any{}, "saved", true),
	)

	It("Should reject unknown actions", func() {
		_, err := NewAction("explode", nil)
		Expect(err).To(MatchError(ContainSubstring("unknown action")))
	})

	It("Should normalize item indexes", func() {
		Expect(indexPayload(2.0)).To(Equal(2))
		Expect(indexPayload(3)).To(Equal(3))
		Expect(indexPayload(nil)).To(Equal(-1))
		Expect(indexPayload("x")).To(Equal(-1))
	})

	It("Should mark custom events for item dispatch", func() {
		Expect(CustomEvent("custom:x", nil, true).dispatchToItems()).To(BeTrue())
		Expect(CustomEvent("x", nil, false).dispatchToItems()).To(BeFalse())
		Expect(CustomEvent("custom:x", nil, true).String()).To(Equal("custom:x"))
	})

	It("Should expose change payloads as plain values", func() {
		p := eventPayload(ChangePayload{Changes: []PropertyChange{{PropertyName: "value", CurrentValue: 1.0}}})
		Expect(p).To(Equal(map[string]any{
			"changes": []any{map[string]any{"propertyName": "value", "prevValue": nil, "currentValue": 1.0}},
		}))
	})
})
