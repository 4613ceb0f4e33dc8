// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package forms

import (
	"github.com/jedib0t/go-pretty/v6/text"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("colorMarkup", func() {
	red := func(s string) string { return text.Colors{text.FgRed}.Sprint(s) }
	blue := func(s string) string { return text.Colors{text.FgBlue}.Sprint(s) }

	DescribeTable("Markup",
		func(input string, expected string) {
			Expect(colorMarkup(input)).To(Equal(expected))
		},
		Entry("plain text", "Hello World", "Hello World"),
		Entry("single tag", "{red}Hello{/red} World", red("Hello")+" World"),
		Entry("multiple tags", "{red}Hello{/red} {blue}World{/blue}", red("Hello")+" "+blue("World")),
		Entry("nested tags", "{red}Outer {green}Inner{/green} Text{/red}",
			red("Outer "+text.Colors{text.FgGreen}.Sprint("Inner")+" Text")),
		Entry("mixed case names", "{RED}Hello{/RED} {Blue}World{/Blue}", red("Hello")+" "+blue("World")),
		Entry("high intensity", "{hired}Error{/hired}", text.Colors{text.FgHiRed}.Sprint("Error")),
		Entry("bold", "{bold}Title{/bold}", text.Colors{text.Bold}.Sprint("Title")),
		Entry("unknown colors", "{red}Valid{/red} {invalid}Invalid{/invalid}", red("Valid")+" Invalid"),
		Entry("empty content", "{red}{/red}", red("")),
		Entry("mismatched tags", "{red}Text{/blue}", "{red}Text{/blue}"),
		Entry("braces in text", "use {{ .Value }} here", "use {{ .Value }} here"),
	)
})
