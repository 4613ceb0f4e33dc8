// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Container", func() {
	var (
		form *Form
		rep  *Container
	)

	instanceField := func(i int) *Field {
		GinkgoHelper()

		inst, ok := rep.Items()[i].(*Container)
		Expect(ok).To(BeTrue())
		fld, ok := inst.Items()[0].(*Field)
		Expect(ok).To(BeTrue())

		return fld
	}

	contacts := func() []any {
		GinkgoHelper()

		exported, ok := form.ExportData().(map[string]any)
		Expect(ok).To(BeTrue())
		res, ok := exported["contacts"].([]any)
		Expect(ok).To(BeTrue())

		return res
	}

	BeforeEach(func() {
		form = mustForm(map[string]any{
			"items": []any{
				map[string]any{
					"id":         "contacts",
					"name":       "contacts",
					"fieldType":  "panel",
					"repeatable": true,
					"minOccur":   1.0,
					"maxOccur":   3.0,
					"items": []any{
						map[string]any{"id": "email", "name": "email", "fieldType": "text-input"},
					},
				},
			},
		})

		var ok bool
		rep, ok = form.Items()[0].(*Container)
		Expect(ok).To(BeTrue())
	})

	Describe("Repeatable instances", func() {
		It("Should wrap the definition in an instance manager", func() {
			Expect(rep.IsRepeatable()).To(BeTrue())
			Expect(rep.Kind()).To(Equal(RepeatableKind))
			Expect(rep.Type()).To(Equal("array"))
			Expect(rep.Name()).To(Equal("contacts"))
			Expect(rep.MinItems()).To(Equal(1))
			Expect(rep.MaxItems()).To(Equal(3))
			Expect(rep.Items()).To(HaveLen(1))

			inst := rep.Items()[0]
			Expect(inst.ID()).To(Equal("contacts"))
			Expect(form.GetElement("contacts")).To(BeIdenticalTo(inst))
			Expect(rep.ID()).ToNot(Equal("contacts"))
			Expect(inst.Type()).To(Equal("object"))
			Expect(inst.QualifiedName()).To(Equal("$form.contacts[0]"))
			Expect(instanceField(0).QualifiedName()).To(Equal("$form.contacts[0].email"))
			Expect(contacts()).To(Equal([]any{map[string]any{}}))
		})

		It("Should add instances up to maxItems", func() {
			rep.Dispatch(AddItem(-1))
			rep.Dispatch(AddInstance(-1))
			Expect(rep.Items()).To(HaveLen(3))

			rep.Dispatch(AddItem(-1))
			Expect(rep.Items()).To(HaveLen(3))

			ids := map[string]bool{}
			for _, item := range rep.Items() {
				ids[item.ID()] = true
			}
			Expect(ids).To(HaveLen(3))
			Expect(form.GetElement(rep.Items()[2].ID())).ToNot(BeNil())
		})

		It("Should bind new instances to their own data", func() {
			rep.Dispatch(AddItem(-1))
			instanceField(0).SetValue("a@example.net")
			instanceField(1).SetValue("b@example.net")

			Expect(contacts()).To(Equal([]any{
				map[string]any{"email": "a@example.net"},
				map[string]any{"email": "b@example.net"},
			}))
		})

		It("Should insert instances at an index", func() {
			instanceField(0).SetValue("first")
			rep.Dispatch(AddItem(0))

			Expect(rep.Items()).To(HaveLen(2))
			Expect(instanceField(1).Value()).To(Equal("first"))

			instanceField(0).SetValue("inserted")
			Expect(contacts()).To(Equal([]any{
				map[string]any{"email": "inserted"},
				map[string]any{"email": "first"},
			}))
		})

		It("Should remove instances down to minItems", func() {
			rep.Dispatch(AddItem(-1))
			instanceField(1).SetValue("kept")
			removed := rep.Items()[0].ID()

			rep.Dispatch(RemoveItem(0))
			Expect(rep.Items()).To(HaveLen(1))
			Expect(rep.Items()[0].QualifiedName()).To(Equal("$form.contacts[0]"))
			Expect(form.GetElement(removed)).To(BeNil())
			Expect(contacts()).To(Equal([]any{map[string]any{"email": "kept"}}))

			rep.Dispatch(RemoveInstance(-1))
			Expect(rep.Items()).To(HaveLen(1))
		})

		It("Should notify item changes", func() {
			var changes []PropertyChange
			rep.Subscribe(func(a Action) {
				changes = append(changes, a.Payload.(ChangePayload).Changes...)
			}, "")

			rep.Dispatch(AddItem(-1))
			Expect(changes).To(HaveLen(1))
			Expect(changes[0].PropertyName).To(Equal("items"))
			Expect(changes[0].CurrentValue).To(BeAssignableToTypeOf(State{}))
		})

		It("Should trim instances when maxItems is lowered", func() {
			rep.Dispatch(AddItem(-1))
			rep.Dispatch(AddItem(-1))
			Expect(rep.Items()).To(HaveLen(3))

			rep.SetProperty("maxItems", 2.0)
			Expect(rep.MaxItems()).To(Equal(2))
			Expect(rep.Items()).To(HaveLen(2))
		})

		It("Should keep instances when maxItems becomes unbounded", func() {
			rep.Dispatch(AddItem(-1))
			rep.SetProperty("maxItems", -1.0)

			Expect(rep.Items()).To(HaveLen(2))
			rep.Dispatch(AddItem(-1))
			rep.Dispatch(AddItem(-1))
			Expect(rep.Items()).To(HaveLen(4))
		})
	})

	Describe("Importing data", func() {
		It("Should grow instances to fit the data within maxItems", func() {
			Expect(form.ImportData(map[string]any{
				"contacts": []any{
					map[string]any{"email": "a"},
					map[string]any{"email": "b"},
					map[string]any{"email": "c"},
					map[string]any{"email": "d"},
				},
			})).To(Succeed())

			Expect(rep.Items()).To(HaveLen(3))
			Expect(instanceField(0).Value()).To(Equal("a"))
			Expect(instanceField(2).Value()).To(Equal("c"))
		})

		It("Should shrink instances to fit the data within minItems", func() {
			rep.Dispatch(AddItem(-1))
			rep.Dispatch(AddItem(-1))

			Expect(form.ImportData(map[string]any{
				"contacts": []any{map[string]any{"email": "only"}},
			})).To(Succeed())

			Expect(rep.Items()).To(HaveLen(1))
			Expect(instanceField(0).Value()).To(Equal("only"))

			Expect(form.ImportData(map[string]any{"contacts": []any{}})).To(Succeed())
			Expect(rep.Items()).To(HaveLen(1))
		})
	})

	Describe("Rules on repeatable panels", func() {
		It("Should re-run rules reading the instances when items change", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{
						"name":       "rows",
						"fieldType":  "panel",
						"repeatable": true,
						"items": []any{
							map[string]any{"name": "amount", "fieldType": "number-input", "type": "number"},
						},
					},
					map[string]any{"id": "count", "name": "count", "fieldType": "number-input", "type": "number", "rules": map[string]any{
						"value": "len(rows.$items)",
					}},
				},
			})

			rows := form.Items()[0].(*Container)
			Expect(fieldByID(form, "count").Value()).To(Equal(1.0))

			rows.Dispatch(AddItem(-1))
			Expect(fieldByID(form, "count").Value()).To(Equal(2.0))
		})
	})

	Describe("Transparent panels", func() {
		It("Should expose the children of unnamed panels to their siblings", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"fieldType": "panel", "items": []any{
						map[string]any{"id": "first", "name": "first", "fieldType": "text-input", "default": "Ada"},
					}},
					map[string]any{"id": "greeting", "name": "greeting", "fieldType": "text-input", "rules": map[string]any{
						"value": "'Hello ' + first",
					}},
				},
			})

			Expect(form.Items()[0].IsTransparent()).To(BeTrue())
			Expect(form.Items()[0].QualifiedName()).To(Equal(""))
			Expect(fieldByID(form, "first").QualifiedName()).To(Equal("$form.first"))
			Expect(fieldByID(form, "greeting").Value()).To(Equal("Hello Ada"))

			fieldByID(form, "first").SetValue("Grace")
			Expect(fieldByID(form, "greeting").Value()).To(Equal("Hello Grace"))
		})
	})
})
