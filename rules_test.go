// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RuleEngine", func() {
	var log *testLogger

	BeforeEach(func() {
		log = &testLogger{}
	})

	Describe("Compile", func() {
		It("Should cache compiled rules", func() {
			e := NewRuleEngine(nil, nil)

			a, err := e.Compile("price * 2")
			Expect(err).ToNot(HaveOccurred())
			b, err := e.Compile("price * 2")
			Expect(err).ToNot(HaveOccurred())
			Expect(a).To(BeIdenticalTo(b))
			Expect(a.Formula).To(Equal("price * 2"))
		})

		It("Should fail on syntax errors", func() {
			_, err := NewRuleEngine(nil, nil).Compile("price *")
			Expect(err).To(HaveOccurred())
		})

		It("Should refuse to execute missing rules", func() {
			_, err := NewRuleEngine(nil, nil).Execute(nil, nil, nil, false)
			Expect(err).To(MatchError("no rule to execute"))
		})
	})

	Describe("Name resolution", func() {
		It("Should read properties of the field with $ names", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "first", "name": "first", "fieldType": "text-input", "rules": map[string]any{
						"description": "$name + ' at ' + $field.$qualifiedName",
						"label":       "self.$id",
					}},
				},
			})

			Expect(fieldByID(form, "first").Description()).To(Equal("first at $form.first"))
			Expect(fieldByID(form, "first").Label()).To(Equal("first"))
		})

		It("Should navigate containers by name", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"name": "address", "fieldType": "panel", "items": []any{
						map[string]any{"name": "city", "fieldType": "text-input", "default": "Cape Town"},
					}},
					map[string]any{"id": "summary", "name": "summary", "fieldType": "text-input", "rules": map[string]any{
						"value": "address.city + ' / ' + $form.address.city",
					}},
				},
			})

			Expect(fieldByID(form, "summary").Value()).To(Equal("Cape Town / Cape Town"))
		})

		It("Should index array values", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "tags", "name": "tags", "fieldType": "checkbox-group", "type": "string[]",
						"enum": []any{"a", "b", "c"}, "default": []any{"b", "c"}},
					map[string]any{"id": "firstTag", "name": "firstTag", "fieldType": "text-input", "rules": map[string]any{
						"value": "tags[0]",
					}},
				},
			})

			Expect(fieldByID(form, "firstTag").Value()).To(Equal("b"))
		})

		It("Should resolve unknown names to nil", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "a", "name": "a", "fieldType": "text-input", "rules": map[string]any{
						"value": "missing == nil ? 'none' : 'some'",
					}},
				},
			})

			Expect(fieldByID(form, "a").Value()).To(Equal("none"))
		})
	})

	Describe("Functions", func() {
		It("Should provide sprig and expr functions", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "first", "name": "first", "fieldType": "text-input", "default": "ada lovelace"},
					map[string]any{"id": "display", "name": "display", "fieldType": "text-input", "rules": map[string]any{
						"value":       "title(first)",
						"description": "upper(first)",
					}},
				},
			})

			Expect(fieldByID(form, "display").Value()).To(Equal("Ada Lovelace"))
			Expect(fieldByID(form, "display").Description()).To(Equal("ADA LOVELACE"))
		})

		It("Should call functions registered with the form", func() {
			funcs := NewFunctions()
			Expect(funcs.Register(map[string]any{
				"shout": func(s string) string { return strings.ToUpper(s) + "!" },
				"owner": Function(func(ctx *FunctionContext, args ...any) (any, error) {
					return fmt.Sprintf("%s:%v", ctx.Field.ID(), args), nil
				}),
			})).To(Succeed())
			Expect(funcs.Names()).To(Equal([]string{"owner", "shout"}))

			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "first", "name": "first", "fieldType": "text-input", "default": "hi"},
					map[string]any{"id": "out", "name": "out", "fieldType": "text-input", "rules": map[string]any{
						"value":       "shout(first)",
						"description": "owner(1)",
					}},
				},
			}, WithFunctions(funcs))

			Expect(fieldByID(form, "out").Value()).To(Equal("HI!"))
			Expect(fieldByID(form, "out").Description()).To(Equal("out:[1]"))
		})

		It("Should call globally registered functions", func() {
			Expect(RegisterFunctions(map[string]any{
				"answer": func() float64 { return 42 },
			})).To(Succeed())
			DeferCleanup(func() { UnregisterFunctions("answer") })

			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "n", "name": "n", "fieldType": "number-input", "type": "number", "rules": map[string]any{"value": "answer()"}},
				},
			})

			Expect(fieldByID(form, "n").Value()).To(Equal(42.0))
		})

		It("Should reject values that are not functions", func() {
			err := NewFunctions().Register(map[string]any{"bad": 1})
			Expect(err).To(MatchError("unable to register function with name bad"))
		})

		It("Should forget unregistered functions", func() {
			funcs := NewFunctions()
			Expect(funcs.Register(map[string]any{"x": func() int { return 1 }})).To(Succeed())
			funcs.Unregister("x")
			Expect(funcs.Names()).To(BeEmpty())
		})
	})

	Describe("Built in functions", func() {
		var form *Form

		BeforeEach(func() {
			form = mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "name", "name": "name", "fieldType": "text-input", "required": true,
						"constraintMessages": map[string]any{"required": "name please"},
						"events": map[string]any{
							"custom:greet": "{description: 'hello ' + $event.payload.who}",
						}},
					map[string]any{"id": "other", "name": "other", "fieldType": "text-input"},
					map[string]any{"id": "go", "name": "go", "fieldType": "button", "events": map[string]any{
						"click": []any{
							"setFocus(other)",
							"dispatchEvent(name, 'custom:greet', {who: 'world'})",
						},
						"custom:check": "{label: len(validate()) > 0 ? 'invalid' : 'valid'}",
						"custom:load":  "importData({name: 'imported'})",
						"custom:copy":  "{description: exportData().name}",
						"custom:old":   "{description: getData().name}",
					}},
				},
			}, WithLogger(log), WithLogLevel(WarnLevel))
		})

		It("Should focus nodes and dispatch events to them", func() {
			form.GetElement("go").Dispatch(Click())

			Expect(form.ActiveChild().ID()).To(Equal("other"))
			Expect(fieldByID(form, "name").Description()).To(Equal("hello world"))
		})

		It("Should validate the form", func() {
			btn := fieldByID(form, "go")

			btn.Dispatch(CustomEvent("check", nil, false))
			Expect(btn.Label()).To(Equal("invalid"))
			Expect(fieldByID(form, "name").ErrorMessage()).To(Equal("name please"))
			Expect(log.contains("Form Validation Error")).To(BeTrue())

			fieldByID(form, "name").SetValue("bob")
			btn.Dispatch(CustomEvent("check", nil, false))
			Expect(btn.Label()).To(Equal("valid"))
		})

		It("Should import and export data", func() {
			btn := fieldByID(form, "go")

			btn.Dispatch(CustomEvent("load", nil, false))
			Expect(fieldByID(form, "name").Value()).To(Equal("imported"))

			btn.Dispatch(CustomEvent("copy", nil, false))
			Expect(btn.Description()).To(Equal("imported"))
		})

		It("Should warn about getData", func() {
			fieldByID(form, "name").SetValue("old")
			btn := fieldByID(form, "go")

			btn.Dispatch(CustomEvent("old", nil, false))
			Expect(btn.Description()).To(Equal("old"))
			Expect(log.contains("The `getData` function is deprecated")).To(BeTrue())
		})

		It("Should log invalid focus targets", func() {
			form := mustForm(map[string]any{
				"items": []any{
					map[string]any{"id": "b", "name": "b", "fieldType": "button", "events": map[string]any{"click": "setFocus('nowhere')"}},
				},
			}, WithLogger(log))

			form.GetElement("b").Dispatch(Click())
			Expect(log.contains("Invalid argument passed in setFocus")).To(BeTrue())
		})
	})
})
