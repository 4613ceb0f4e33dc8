// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package forms

import (
	"bytes"
	"os"
	"regexp"
	"strings"
	"text/template"

	"github.com/jedib0t/go-pretty/v6/text"
	terminal "golang.org/x/term"

	"github.com/choria-io/adaptiveform/internal/sprig"
)

var (
	// matches a tag pair with no other tag inside it
	markupTag = regexp.MustCompile(`\{([a-zA-Z]+)\}([^{]*)\{/([a-zA-Z]+)\}`)

	markupColors = map[string]text.Color{
		"bold":      text.Bold,
		"black":     text.FgBlack,
		"red":       text.FgRed,
		"green":     text.FgGreen,
		"yellow":    text.FgYellow,
		"blue":      text.FgBlue,
		"magenta":   text.FgMagenta,
		"cyan":      text.FgCyan,
		"white":     text.FgWhite,
		"hiblack":   text.FgHiBlack,
		"hired":     text.FgHiRed,
		"higreen":   text.FgHiGreen,
		"hiyellow":  text.FgHiYellow,
		"hiblue":    text.FgHiBlue,
		"himagenta": text.FgHiMagenta,
		"hicyan":    text.FgHiCyan,
		"hiwhite":   text.FgHiWhite,
	}
)

func isTerminal() bool {
	return terminal.IsTerminal(int(os.Stdin.Fd())) && terminal.IsTerminal(int(os.Stdout.Fd()))
}

// renderTemplate renders labels and descriptions as text templates with sprig functions and color markup
func renderTemplate(tmpl string, env map[string]any) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return colorMarkup(tmpl), nil
	}

	t, err := template.New("form").Funcs(sprig.TxtFuncMap()).Parse(tmpl)
	if err != nil {
		return "", err
	}

	out := bytes.NewBuffer([]byte{})
	err = t.Execute(out, env)
	if err != nil {
		return "", err
	}

	return colorMarkup(out.String()), nil
}

// colorMarkup colorizes {color}text{/color} markup, nested tags are handled from the inside out
// and tags naming unknown colors are removed
func colorMarkup(input string) string {
	result := input

	for {
		changed := false

		result = markupTag.ReplaceAllStringFunc(result, func(m string) string {
			parts := markupTag.FindStringSubmatch(m)
			if parts[1] != parts[3] {
				return m
			}

			changed = true

			color, ok := markupColors[strings.ToLower(parts[1])]
			if !ok {
				return parts[2]
			}

			return text.Colors{color}.Sprint(parts[2])
		})

		if !changed {
			return result
		}
	}
}
