// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package forms fills adaptive forms interactively on a terminal.
//
// Every visible item of the form is presented in order and answers are set on the
// form as they are given, so rules, events and constraints react exactly as they would
// in any other client: later items may appear or disappear based on earlier answers
// and invalid answers are rejected with the constraint message of the field.
// Repeatable panels ask for further instances until declined or maxItems is reached.
//
// The result is the exported form data once the whole form validates.
package forms

//go:generate mockgen -source forms.go -destination mock_test.go -package forms -typed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/kballard/go-shellquote"
	"github.com/choria-io/adaptiveform"
	"github.com/choria-io/adaptiveform/constraints"
)

// surveyor abstracts the survey library for testability.
type surveyor interface {
	AskOne(p survey.Prompt, response any, opts ...survey.AskOpt) error
}

type defaultSurveyor struct{}

func (d *defaultSurveyor) AskOne(p survey.Prompt, response any, opts ...survey.AskOpt) error {
	return survey.AskOne(p, response, opts...)
}

type processOption func(*processor)

func withSurveyor(s surveyor) processOption {
	return func(p *processor) {
		p.surveyor = s
	}
}

func withIsTerminal(f func() bool) processOption {
	return func(p *processor) {
		p.isTerminal = f
	}
}

func withOutput(w io.Writer) processOption {
	return func(p *processor) {
		p.output = w
	}
}

// processor holds what is needed to present a single form
type processor struct {
	ctx        context.Context
	form       *adaptiveform.Form
	surveyor   surveyor
	isTerminal func() bool
	output     io.Writer
}

// FillFile loads a JSON or YAML form definition from file, imports data when given and fills it interactively
func FillFile(ctx context.Context, file string, data map[string]any, opts ...processOption) (map[string]any, error) {
	schema, err := adaptiveform.LoadSchemaFile(file)
	if err != nil {
		return nil, err
	}

	return FillSchema(ctx, schema, data, opts...)
}

// FillSchema creates a form from schema, imports data when given and fills it interactively
func FillSchema(ctx context.Context, schema map[string]any, data map[string]any, opts ...processOption) (map[string]any, error) {
	form, err := adaptiveform.CreateFormInstance(schema)
	if err != nil {
		return nil, err
	}

	if data != nil {
		err = form.ImportData(data)
		if err != nil {
			return nil, err
		}
	}

	return Fill(ctx, form, opts...)
}

// Fill presents form on a terminal and returns the exported data once every answer was given
// and the form validates. It requires a valid terminal (stdin and stdout).
func Fill(ctx context.Context, form *adaptiveform.Form, opts ...processOption) (map[string]any, error) {
	proc := &processor{
		ctx:        ctx,
		form:       form,
		surveyor:   &defaultSurveyor{},
		isTerminal: isTerminal,
		output:     os.Stdout,
	}

	for _, o := range opts {
		o(proc)
	}

	if !proc.isTerminal() {
		return nil, fmt.Errorf("can only process forms on a valid terminal")
	}

	if len(form.Items()) == 0 {
		return nil, fmt.Errorf("no items defined")
	}

	title, err := renderTemplate(form.Title(), proc.templateEnv(form))
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(proc.output, title)
	fmt.Fprintln(proc.output)

	var start string
	err = proc.surveyor.AskOne(&survey.Input{Message: "Press enter to start"}, &start)
	if err != nil {
		return nil, err
	}

	err = proc.askItems(form.Items())
	if err != nil {
		return nil, err
	}

	errs := form.Validate()
	if len(errs) > 0 {
		return nil, validationError(form, errs)
	}

	switch res := form.ExportData().(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return res, nil
	default:
		return nil, fmt.Errorf("unexpected form result type %T", res)
	}
}

func validationError(form *adaptiveform.Form, errs []adaptiveform.ValidationError) error {
	var msgs []string
	for _, e := range errs {
		name := e.FieldName
		if n := form.GetElement(e.FieldName); n != nil {
			name = label(n)
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", name, strings.Join(e.ErrorMessages, ", ")))
	}

	return fmt.Errorf("form is not valid: %s", strings.Join(msgs, "; "))
}

// askItems presents every item that is visible at the time it is reached
func (p *processor) askItems(items []adaptiveform.Node) error {
	for _, item := range items {
		if !item.Visible() {
			continue
		}

		err := p.askNode(item)
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *processor) askNode(n adaptiveform.Node) error {
	switch node := n.(type) {
	case *adaptiveform.Container:
		return p.askContainer(node)
	case *adaptiveform.Field:
		return p.askField(node)
	default:
		return fmt.Errorf("unsupported item %s", n.ID())
	}
}

// askContainer presents the items of a panel, for repeatable panels every existing instance
// is presented before asking for more
func (p *processor) askContainer(c *adaptiveform.Container) error {
	err := p.describe(c)
	if err != nil {
		return err
	}

	if !c.IsRepeatable() {
		return p.askItems(c.Items())
	}

	for i := 0; ; {
		items := c.Items()
		if i < len(items) {
			err = p.askNode(items[i])
			if err != nil {
				return err
			}
			i++
			continue
		}

		if mx := c.MaxItems(); mx != -1 && len(items) >= mx {
			return nil
		}

		ok, err := p.askConfirmation(fmt.Sprintf("Add %s entry", entryLabel(c)), false)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		c.Dispatch(adaptiveform.AddItem(-1))
		if len(c.Items()) == len(items) {
			return nil
		}
	}
}

func (p *processor) askField(f *adaptiveform.Field) error {
	switch {
	case f.Kind() == adaptiveform.PlainTextKind:
		txt, err := renderTemplate(valueString(f), p.templateEnv(f))
		if err != nil {
			return err
		}
		fmt.Fprintln(p.output, txt)
		return nil

	case f.Kind().IsStatic():
		return nil

	case f.Kind() == adaptiveform.ButtonKind:
		return p.askButton(f)

	case !f.Enabled() || f.ReadProperty("readOnly", nil) == true:
		fmt.Fprintf(p.output, "%s: %v\n", label(f), displayValue(f))
		return nil
	}

	err := p.describe(f)
	if err != nil {
		return err
	}

	var ans any

	switch f.Kind() {
	case adaptiveform.CheckboxKind:
		ans, err = p.askCheckbox(f)
	case adaptiveform.SelectKind, adaptiveform.RadioKind:
		ans, err = p.askSelect(f)
	case adaptiveform.CheckboxGroupKind:
		ans, err = p.askMultiSelect(f)
	case adaptiveform.FileKind:
		ans, err = p.askFile(f)
	default:
		ans, err = p.askInput(f)
	}
	if err != nil {
		return err
	}

	f.SetValue(ans)
	if !f.IsValid() {
		return fmt.Errorf("invalid value for %s: %s", label(f), errorMessage(f))
	}

	return nil
}

// askButton clicks the button when confirmed, waiting for any request it starts
func (p *processor) askButton(f *adaptiveform.Field) error {
	ok, err := p.askConfirmation(label(f), false)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	f.Dispatch(adaptiveform.Click())

	return p.form.AwaitPending(p.ctx)
}

func (p *processor) askInput(f *adaptiveform.Field) (any, error) {
	var ans string

	opts := []survey.AskOpt{survey.WithValidator(p.validator(f))}

	if f.Kind() == adaptiveform.MultilineKind {
		err := p.surveyor.AskOne(&survey.Multiline{
			Message: label(f),
			Help:    help(f),
			Default: valueString(f),
		}, &ans, opts...)
		return ans, err
	}

	err := p.surveyor.AskOne(&survey.Input{
		Message: label(f),
		Help:    help(f),
		Default: valueString(f),
	}, &ans, opts...)
	if err != nil {
		return nil, err
	}

	return answerValue(f, ans)
}

// answerValue splits answers for array typed fields shell style so values may hold spaces
func answerValue(f *adaptiveform.Field, ans any) (any, error) {
	s, ok := ans.(string)
	if !ok || !constraints.IsArrayType(f.Type()) {
		return ans, nil
	}

	parts, err := shellquote.Split(s)
	if err != nil {
		return nil, err
	}

	res := make([]any, len(parts))
	for i, p := range parts {
		res[i] = p
	}

	return res, nil
}

// askCheckbox maps a confirmation onto the on and off values of the checkbox
func (p *processor) askCheckbox(f *adaptiveform.Field) (any, error) {
	enum := enumValues(f)

	var on, off any = true, false
	if len(enum) > 0 {
		on = enum[0]
		off = nil
	}
	if len(enum) > 1 {
		off = enum[1]
	}

	ans := constraints.Equal(f.Value(), on)
	err := p.surveyor.AskOne(&survey.Confirm{
		Message: label(f),
		Help:    help(f),
		Default: ans,
	}, &ans)
	if err != nil {
		return nil, err
	}

	if ans {
		return on, nil
	}

	return off, nil
}

func (p *processor) askSelect(f *adaptiveform.Field) (any, error) {
	enum := enumValues(f)
	if len(enum) == 0 {
		return p.askInput(f)
	}

	names := enumNames(f, enum)

	var opts []survey.AskOpt
	if f.ReadProperty("required", nil) == true {
		opts = append(opts, survey.WithValidator(survey.Required))
	}

	dflt := names[0]
	for i, v := range enum {
		if constraints.Equal(v, f.Value()) {
			dflt = names[i]
		}
	}

	var ans string
	err := p.surveyor.AskOne(&survey.Select{
		Message: label(f),
		Help:    help(f),
		Default: dflt,
		Options: names,
	}, &ans, opts...)
	if err != nil {
		return nil, err
	}

	for i, n := range names {
		if n == ans {
			return enum[i], nil
		}
	}

	return nil, nil
}

func (p *processor) askMultiSelect(f *adaptiveform.Field) (any, error) {
	enum := enumValues(f)
	names := enumNames(f, enum)

	var dflt []string
	current, _ := f.Value().([]any)
	for i, v := range enum {
		for _, c := range current {
			if constraints.Equal(v, c) {
				dflt = append(dflt, names[i])
			}
		}
	}

	var ans []string
	err := p.surveyor.AskOne(&survey.MultiSelect{
		Message: label(f),
		Help:    help(f),
		Default: dflt,
		Options: names,
	}, &ans)
	if err != nil {
		return nil, err
	}

	res := []any{}
	for _, a := range ans {
		for i, n := range names {
			if n == a {
				res = append(res, enum[i])
				break
			}
		}
	}

	return res, nil
}

// askFile asks for a path and attaches the file content
func (p *processor) askFile(f *adaptiveform.Field) (any, error) {
	var ans string
	err := p.surveyor.AskOne(&survey.Input{
		Message: label(f) + " (path)",
		Help:    help(f),
	}, &ans, survey.WithValidator(fileValidator))
	if err != nil {
		return nil, err
	}

	if ans == "" {
		return nil, nil
	}

	return readFile(ans)
}

func fileValidator(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}

	st, err := os.Stat(s)
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("%s is a directory", s)
	}

	return nil
}

func readFile(path string) (*constraints.FileObject, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	mt := mime.TypeByExtension(filepath.Ext(path))
	if mt == "" {
		mt = constraints.DefaultMediaType
	}
	if i := strings.IndexByte(mt, ';'); i > -1 {
		mt = mt[:i]
	}

	return &constraints.FileObject{
		Name:      filepath.Base(path),
		MediaType: mt,
		Size:      int64(len(b)),
		Data:      path,
		Content:   b,
	}, nil
}

// validator sets each answer on the field so the form constraints decide what is accepted
func (p *processor) validator(f *adaptiveform.Field) survey.Validator {
	return func(v any) error {
		ans, err := answerValue(f, v)
		if err != nil {
			return err
		}

		f.SetValue(ans)
		if f.IsValid() {
			return nil
		}

		return errors.New(errorMessage(f))
	}
}

func (p *processor) askConfirmation(prompt string, dflt bool) (bool, error) {
	ans := dflt

	err := p.surveyor.AskOne(&survey.Confirm{
		Message: prompt,
		Default: dflt,
	}, &ans)

	return ans, err
}

// describe shows the label and rendered description of a node
func (p *processor) describe(n adaptiveform.Node) error {
	d, err := renderTemplate(n.Description(), p.templateEnv(n))
	if err != nil {
		return err
	}

	if c, ok := n.(*adaptiveform.Container); ok && c.Label() != "" {
		fmt.Fprintln(p.output)
		fmt.Fprintln(p.output, colorMarkup("{bold}"+c.Label()+"{/bold}"))
	}

	if d != "" {
		fmt.Fprintln(p.output)
		fmt.Fprintln(p.output, d)
		fmt.Fprintln(p.output)
	}

	return nil
}

func (p *processor) templateEnv(n adaptiveform.Node) map[string]any {
	return map[string]any{
		"Data": p.form.ExportData(),
		"Item": map[string]any(n.State()),
	}
}

func label(n adaptiveform.Node) string {
	if l := n.Label(); l != "" {
		return l
	}
	if n.Name() != "" {
		return n.Name()
	}

	return n.ID()
}

// entryLabel names the instances of a repeatable panel, the panel definition label
// lives on its instances
func entryLabel(c *adaptiveform.Container) string {
	if c.Label() == "" {
		if items := c.Items(); len(items) > 0 && items[0].Label() != "" {
			return items[0].Label()
		}
	}

	return label(c)
}

func help(f *adaptiveform.Field) string {
	s, _ := f.State()["tooltip"].(string)
	return s
}

func errorMessage(f *adaptiveform.Field) string {
	if msg := f.ErrorMessage(); msg != "" {
		return msg
	}

	return "invalid value"
}

func valueString(f *adaptiveform.Field) string {
	switch v := f.Value().(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, len(v))
		for i, p := range v {
			parts[i] = constraints.ToString(p)
		}
		return shellquote.Join(parts...)
	default:
		return constraints.ToString(v)
	}
}

func displayValue(f *adaptiveform.Field) any {
	if v := f.ReadProperty("displayValue", nil); v != nil {
		return v
	}

	return f.Value()
}

func enumValues(f *adaptiveform.Field) []any {
	enum, _ := f.ReadProperty("enum", nil).([]any)
	return enum
}

func enumNames(f *adaptiveform.Field, enum []any) []string {
	names, _ := f.State()["enumNames"].([]any)

	res := make([]string, len(enum))
	for i, v := range enum {
		if i < len(names) && names[i] != nil {
			res[i] = constraints.ToString(names[i])
		} else {
			res[i] = constraints.ToString(v)
		}
	}

	return res
}
