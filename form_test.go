// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Form", func() {
	var log *testLogger

	BeforeEach(func() {
		log = &testLogger{}
	})

	Describe("CreateFormInstance", func() {
		It("Should build the node hierarchy", func() {
			form := mustForm(map[string]any{
				"title": "Contact",
				"lang":  "de",
				"items": []any{
					map[string]any{"id": "name", "name": "name", "fieldType": "text-input", "label": map[string]any{"value": "Name"}},
					map[string]any{"id": "address", "name": "address", "fieldType": "panel", "items": []any{
						map[string]any{"id": "city", "name": "city", "fieldType": "text-input"},
					}},
				},
			})

			Expect(form.ID()).To(Equal(FormID))
			Expect(form.Title()).To(Equal("Contact"))
			Expect(form.Lang()).To(Equal("de"))
			Expect(form.Items()).To(HaveLen(2))
			Expect(form.Queue().Len()).To(Equal(0))

			name := fieldByID(form, "name")
			Expect(name.Label()).To(Equal("Name"))
			Expect(name.Kind()).To(Equal(TextKind))
			Expect(name.Type()).To(Equal("string"))
			Expect(name.QualifiedName()).To(Equal("$form.name"))
			Expect(name.Parent()).To(BeIdenticalTo(&form.Container))

			city := fieldByID(form, "city")
			Expect(city.QualifiedName()).To(Equal("$form.address.city"))
			Expect(containerByID(form, "address").Kind()).To(Equal(PanelKind))
		})

		It("Should import schema data and invoke the callback", func() {
			called := false
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "name", "name": "name", "fieldType": "text-input"},
				},
				"data": map[string]any{"name": "bob"},
			}, WithCallback(func(f *Form) {
				called = true
				Expect(f.Queue().Len()).To(BeNumerically(">", 0))
			}))

			Expect(called).To(BeTrue())
			Expect(fieldByID(form, "name").Value()).To(Equal("bob"))
			Expect(form.ExportData()).To(Equal(map[string]any{"name": "bob"}))
		})

		It("Should default missing field types and log the omission", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "age", "name": "age", "type": "number"},
				},
			}, WithLogger(log))

			Expect(fieldByID(form, "age").FieldType()).To(Equal("number-input"))
			Expect(log.contains("fieldType property is mandatory")).To(BeTrue())
		})

		It("Should map alternate field types", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "notes", "name": "notes", "fieldType": "textarea"},
				},
			})

			Expect(fieldByID(form, "notes").FieldType()).To(Equal("multiline-input"))
			Expect(fieldByID(form, "notes").Kind()).To(Equal(MultilineKind))
		})
	})

	Describe("Data binding", func() {
		It("Should bind dataRef paths creating intermediate nodes", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "first", "name": "first", "fieldType": "text-input", "dataRef": "$.a.b[0]"},
				},
			})

			fieldByID(form, "first").SetValue("x")
			Expect(form.ExportData()).To(Equal(map[string]any{"a": map[string]any{"b": []any{"x"}}}))

			Expect(form.ImportData(map[string]any{"a": map[string]any{"b": []any{"y"}}})).To(Succeed())
			Expect(fieldByID(form, "first").Value()).To(Equal("y"))
		})

		It("Should keep fields sharing a data node in sync", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "one", "name": "one", "fieldType": "text-input", "dataRef": "shared"},
					map[string]any{"id": "two", "name": "two", "fieldType": "text-input", "dataRef": "shared"},
				},
			})

			fieldByID(form, "one").SetValue("same")
			Expect(fieldByID(form, "two").Value()).To(Equal("same"))
			Expect(form.ExportData()).To(Equal(map[string]any{"shared": "same"}))
		})

		It("Should exclude disabled fields and unbound fields from the export", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "kept", "name": "kept", "fieldType": "text-input", "default": "a"},
					map[string]any{"id": "off", "name": "off", "fieldType": "text-input", "default": "b", "enabled": false},
					map[string]any{"id": "none", "name": "none", "fieldType": "text-input", "default": "c", "dataRef": nil},
				},
			})

			Expect(form.ExportData()).To(Equal(map[string]any{"kept": "a"}))
		})

		It("Should coerce values to the field type", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "age", "name": "age", "fieldType": "number-input", "type": "number"},
				},
			})

			fieldByID(form, "age").SetValue("42")
			Expect(fieldByID(form, "age").Value()).To(Equal(42.0))
			Expect(form.ExportData()).To(Equal(map[string]any{"age": 42.0}))
		})
	})

	Describe("Rules", func() {
		var form *Form

		BeforeEach(func() {
			form = mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "price", "name": "price", "fieldType": "number-input", "type": "number", "default": 10.0},
					map[string]any{"id": "qty", "name": "qty", "fieldType": "number-input", "type": "number", "default": 2.0},
					map[string]any{"id": "total", "name": "total", "fieldType": "number-input", "type": "number", "rules": map[string]any{
						"value":   "price * qty",
						"visible": "qty > 1",
					}},
				},
			}, WithLogger(log), WithLogLevel(DebugLevel))
		})

		It("Should evaluate rules on creation", func() {
			Expect(fieldByID(form, "total").Value()).To(Equal(20.0))
			Expect(fieldByID(form, "total").Visible()).To(BeTrue())
		})

		It("Should re-run rules when dependencies change", func() {
			fieldByID(form, "price").SetValue(5.0)
			Expect(fieldByID(form, "total").Value()).To(Equal(10.0))

			fieldByID(form, "qty").SetValue(1.0)
			Expect(fieldByID(form, "total").Value()).To(Equal(5.0))
			Expect(fieldByID(form, "total").Visible()).To(BeFalse())
		})

		It("Should register dependents once", func() {
			fieldByID(form, "price").SetValue(3.0)
			fieldByID(form, "price").SetValue(4.0)
			Expect(fieldByID(form, "price").dependents).To(HaveLen(1))
			Expect(fieldByID(form, "price").dependents[0].node).To(BeIdenticalTo(element(fieldByID(form, "total"))))
		})

		It("Should leave values untouched when a rule fails", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "a", "name": "a", "fieldType": "text-input", "default": "x", "rules": map[string]any{
						"value": "missing.deeper + 1",
					}},
				},
			}, WithLogger(log))

			Expect(fieldByID(form, "a").Value()).To(Equal("x"))
			Expect(log.contains("error:")).To(BeTrue())
		})

		It("Should log compile errors", func() {
			mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "a", "name": "a", "fieldType": "text-input", "rules": map[string]any{"value": "1 +"}},
				},
			}, WithLogger(log))

			Expect(log.contains("Unable to compile rule")).To(BeTrue())
		})

		It("Should terminate mutually dependent rules", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "a", "name": "a", "fieldType": "number-input", "type": "number", "default": 0.0, "rules": map[string]any{"value": "b + 1"}},
					map[string]any{"id": "b", "name": "b", "fieldType": "number-input", "type": "number", "default": 0.0, "rules": map[string]any{"value": "a + 1"}},
				},
			}, WithLogger(log), WithLogLevel(InfoLevel))

			Expect(form.Queue().Len()).To(Equal(0))
			Expect(fieldByID(form, "a").Value()).To(BeNumerically(">", 0))
			Expect(log.contains("Skipped queueing event")).To(BeTrue())
		})

		It("Should warn about rules for properties that are not editable", func() {
			mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "a", "name": "a", "fieldType": "text-input", "rules": map[string]any{"fieldType": "'panel'"}},
				},
			}, WithLogger(log), WithLogLevel(WarnLevel))

			Expect(log.contains("fieldType is not a valid editable property.")).To(BeTrue())
		})
	})

	Describe("Events", func() {
		It("Should apply the result of event formulas", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "age", "name": "age", "fieldType": "number-input", "type": "number"},
					map[string]any{"id": "note", "name": "note", "fieldType": "text-input", "events": map[string]any{
						"custom:check": "{visible: $event.payload.age > 17, label: 'adult'}",
					}},
				},
			})

			note := fieldByID(form, "note")
			note.Dispatch(CustomEvent("check", map[string]any{"age": 20.0}, false))
			Expect(note.Visible()).To(BeTrue())
			Expect(note.Label()).To(Equal("adult"))

			note.Dispatch(CustomEvent("check", map[string]any{"age": 10.0}, false))
			Expect(note.Visible()).To(BeFalse())
		})

		It("Should pass change details to change events", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "name", "name": "name", "fieldType": "text-input", "events": map[string]any{
						"change": []any{"{description: $event.payload.changes[0].currentValue}"},
					}},
				},
			})

			fieldByID(form, "name").SetValue("hello")
			Expect(fieldByID(form, "name").Description()).To(Equal("hello"))
		})

		It("Should deliver custom events dispatched on the form to every item", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "name", "name": "name", "fieldType": "text-input", "events": map[string]any{
						"custom:lock": "{enabled: false}",
					}},
				},
				"events": map[string]any{
					"custom:start": "dispatchEvent('custom:lock')",
				},
			})

			form.Dispatch(CustomEvent("start", nil, false))
			Expect(fieldByID(form, "name").Enabled()).To(BeFalse())
		})

		It("Should notify subscribers and the form of field changes", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "name", "name": "name", "fieldType": "text-input"},
				},
			})

			var changes []PropertyChange
			var fieldChanged []Action
			fieldByID(form, "name").Subscribe(func(a Action) {
				changes = append(changes, a.Payload.(ChangePayload).Changes...)
			}, "")
			sub := form.Subscribe(func(a Action) {
				fieldChanged = append(fieldChanged, a)
			}, FieldChangedType)

			fieldByID(form, "name").SetValue("x")
			Expect(changes).ToNot(BeEmpty())
			Expect(changes[0].PropertyName).To(Equal("value"))
			Expect(changes[0].CurrentValue).To(Equal("x"))
			Expect(fieldChanged).To(HaveLen(1))
			Expect(fieldChanged[0].Payload.(FieldChangedPayload).Field.ID()).To(Equal("name"))

			sub.Unsubscribe()
			fieldByID(form, "name").SetValue("y")
			Expect(fieldChanged).To(HaveLen(1))
		})
	})

	Describe("Focus", func() {
		It("Should keep a single active path", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "p1", "name": "p1", "fieldType": "panel", "items": []any{
						map[string]any{"id": "a", "name": "a", "fieldType": "text-input"},
					}},
					map[string]any{"id": "p2", "name": "p2", "fieldType": "panel", "items": []any{
						map[string]any{"id": "b", "name": "b", "fieldType": "text-input"},
					}},
				},
			})

			fieldByID(form, "a").Focus()
			Expect(form.ActiveChild().ID()).To(Equal("p1"))
			Expect(containerByID(form, "p1").ActiveChild().ID()).To(Equal("a"))

			fieldByID(form, "b").Focus()
			Expect(form.ActiveChild().ID()).To(Equal("p2"))
			Expect(containerByID(form, "p2").ActiveChild().ID()).To(Equal("b"))
			Expect(containerByID(form, "p1").ActiveChild()).To(BeNil())
			Expect(containerByID(form, "p1").State()).ToNot(HaveKey("activeChild"))
		})
	})

	Describe("Validation", func() {
		var form *Form

		BeforeEach(func() {
			form = mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "age", "name": "age", "fieldType": "number-input", "type": "number", "required": true,
						"constraintMessages": map[string]any{"required": "age is required", "type": "age must be a number"}},
					map[string]any{"id": "step", "name": "step", "fieldType": "number-input", "type": "number", "step": 0.1},
					map[string]any{"id": "code", "name": "code", "fieldType": "text-input", "pattern": "^[A-Z]+$", "maxLength": 3},
				},
			})
		})

		It("Should report required fields", func() {
			errs := form.Validate()
			Expect(errs).To(Equal([]ValidationError{{FieldName: "age", ErrorMessages: []string{"age is required"}}}))
			Expect(form.IsValid()).To(BeFalse())
		})

		It("Should distinguish type failures from required failures", func() {
			age := fieldByID(form, "age")

			age.SetValue("abc")
			Expect(age.IsValid()).To(BeFalse())
			Expect(age.ErrorMessage()).To(Equal("age must be a number"))

			age.SetValue(30.0)
			Expect(age.IsValid()).To(BeTrue())
			Expect(age.ErrorMessage()).To(Equal(""))
			Expect(form.IsValid()).To(BeTrue())
		})

		It("Should tolerate binary float artifacts when checking steps", func() {
			step := fieldByID(form, "step")

			step.SetValue(0.30000000000000004)
			Expect(step.IsValid()).To(BeTrue())

			step.SetValue(0.35)
			Expect(step.IsValid()).To(BeFalse())
		})

		It("Should evaluate string constraints in order", func() {
			code := fieldByID(form, "code")

			code.SetValue("abc")
			Expect(code.IsValid()).To(BeFalse())

			code.SetValue("ABCD")
			Expect(code.IsValid()).To(BeFalse())

			code.SetValue("ABC")
			Expect(code.IsValid()).To(BeTrue())
		})

		It("Should dispatch validationComplete", func() {
			var got []ValidationError
			form.Subscribe(func(a Action) {
				got = a.Payload.([]ValidationError)
			}, ValidationCompleteType)

			form.Validate()
			Expect(got).To(HaveLen(1))
		})

		It("Should validate with expressions", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "min", "name": "min", "fieldType": "number-input", "type": "number", "default": 5.0},
					map[string]any{"id": "max", "name": "max", "fieldType": "number-input", "type": "number", "validationExpression": "max > min"},
				},
			})

			fieldByID(form, "max").SetValue(3.0)
			Expect(fieldByID(form, "max").IsValid()).To(BeFalse())

			fieldByID(form, "max").SetValue(8.0)
			Expect(fieldByID(form, "max").IsValid()).To(BeTrue())
		})
	})

	Describe("Reset", func() {
		It("Should restore defaults and clear validity", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "name", "name": "name", "fieldType": "text-input", "default": "start"},
				},
			})

			fieldByID(form, "name").SetValue("changed")
			form.Validate()
			Expect(fieldByID(form, "name").State()).To(HaveKeyWithValue("valid", true))

			form.Reset()
			Expect(fieldByID(form, "name").Value()).To(Equal("start"))
			Expect(fieldByID(form, "name").State()).ToNot(HaveKey("valid"))
			Expect(form.ExportData()).To(Equal(map[string]any{"name": "start"}))
		})
	})

	Describe("State", func() {
		It("Should snapshot the form", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "name", "name": "name", "fieldType": "text-input", "default": "x", "rules": map[string]any{"visible": "true"}},
				},
			})

			s := form.FormState()
			Expect(s.ID()).To(Equal(FormID))
			Expect(s.State["lang"]).To(Equal("en"))
			Expect(s.Items()).To(HaveLen(1))
			Expect(s.Items()[0].Value()).To(Equal("x"))
			Expect(s.Items()[0]).ToNot(HaveKey("rules"))
			Expect(s.Items()[0]["qualifiedName"]).To(Equal("$form.name"))
			Expect(s.Data()).To(Equal(map[string]any{"name": "x"}))
			Expect(s.Attachments()).To(BeEmpty())
		})
	})

	Describe("Public validation helpers", func() {
		schema := map[string]any{
			"items": []any{
				map[string]any{"id": "email", "name": "email", "fieldType": "text-input", "required": true},
			},
		}

		It("Should validate data against a schema", func() {
			ok, err := ValidateFormInstance(schema, map[string]any{"email": "a@example.net"})
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())

			v, err := ValidateFormData(schema, map[string]any{})
			Expect(err).ToNot(HaveOccurred())
			Expect(v.Valid).To(BeFalse())
			Expect(v.Errors).To(HaveLen(1))
			Expect(v.Errors[0].FieldName).To(Equal("email"))
		})

		It("Should reject schemas without items", func() {
			_, err := ValidateFormData(map[string]any{}, nil)
			Expect(err).To(MatchError(ErrNoItems))
		})
	})
})
