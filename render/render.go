// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package render turns exported form data into text using Go templates or Jet
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"text/template"

	"github.com/CloudyKit/jet/v6"
	"github.com/kballard/go-shellquote"

	"github.com/choria-io/adaptiveform/internal/sprig"
)

// Engine is a template engine name
type Engine string

const (
	// GoEngine renders using text/template with sprig functions
	GoEngine Engine = "go"
	// JetEngine renders using the Jet template language
	JetEngine Engine = "jet"
)

// ErrSkippedEmpty is returned when SkipEmpty is set and a template rendered only white space
var ErrSkippedEmpty = errors.New("skipped rendering")

// Config configures a renderer
type Config struct {
	// Engine is the template engine to use, defaults to GoEngine
	Engine Engine `yaml:"engine"`
	// TemplateDirectory is where templates passed to include are found, defaults to the current directory
	TemplateDirectory string `yaml:"template_directory"`
	// Post configures post-processing of written files using filepath globs
	Post []map[string]string `yaml:"post"`
	// SkipEmpty fails with ErrSkippedEmpty for output that is only white space
	SkipEmpty bool `yaml:"skip_empty"`
	// Sets a custom template delimiter, useful for generating templates from templates
	CustomLeftDelimiter string `yaml:"left_delimiter"`
	// Sets a custom template delimiter, useful for generating templates from templates
	CustomRightDelimiter string `yaml:"right_delimiter"`
	// Funcs are extra functions for the Go template engine
	Funcs template.FuncMap `yaml:"-"`
	// JetFuncs are extra functions for the Jet template engine
	JetFuncs map[string]jet.Func `yaml:"-"`
}

type Logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
}

// Renderer renders templates against form data
type Renderer struct {
	cfg *Config
	log Logger
}

// New creates a renderer
func New(cfg Config) (*Renderer, error) {
	switch cfg.Engine {
	case "":
		cfg.Engine = GoEngine
	case GoEngine, JetEngine:
	default:
		return nil, fmt.Errorf("unknown template engine %q", cfg.Engine)
	}

	if (cfg.CustomLeftDelimiter == "") != (cfg.CustomRightDelimiter == "") {
		return nil, fmt.Errorf("both left and right delimiters are required")
	}

	if cfg.TemplateDirectory == "" {
		cfg.TemplateDirectory = "."
	}

	var err error
	cfg.TemplateDirectory, err = filepath.Abs(cfg.TemplateDirectory)
	if err != nil {
		return nil, fmt.Errorf("invalid template directory %s: %v", cfg.TemplateDirectory, err)
	}

	st, err := os.Stat(cfg.TemplateDirectory)
	if err != nil {
		return nil, fmt.Errorf("cannot read template directory: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("template directory %s is not a directory", cfg.TemplateDirectory)
	}

	return &Renderer{cfg: &cfg}, nil
}

// Logger configures a logger to use, no logging is done without this
func (r *Renderer) Logger(log Logger) {
	r.log = log
}

// Engine is the engine in use
func (r *Renderer) Engine() Engine {
	return r.cfg.Engine
}

// RenderString renders tmpl with data
func (r *Renderer) RenderString(tmpl string, data any) (string, error) {
	res, err := r.renderBytes("string", []byte(tmpl), data)
	if err != nil {
		return "", err
	}

	return string(res), nil
}

// RenderFile renders the template in path with data
func (r *Renderer) RenderFile(path string, data any) (string, error) {
	res, err := r.renderFile(path, data)
	if err != nil {
		return "", err
	}

	return string(res), nil
}

// WriteFile renders the template in path into target and runs any matching post processors on it
func (r *Renderer) WriteFile(path string, target string, data any) error {
	res, err := r.renderFile(path, data)
	if err != nil {
		return err
	}

	err = os.WriteFile(target, res, 0644)
	if err != nil {
		return err
	}

	if r.log != nil {
		r.log.Debugf("Rendered %s into %s", path, target)
	}

	return r.postFile(target)
}

func (r *Renderer) renderFile(path string, data any) ([]byte, error) {
	td, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return r.renderBytes(filepath.Base(path), td, data)
}

func (r *Renderer) renderBytes(name string, tmpl []byte, data any) ([]byte, error) {
	var res []byte
	var err error

	switch r.cfg.Engine {
	case JetEngine:
		res, err = r.renderJet(name, tmpl, data)
	default:
		res, err = r.renderGo(name, tmpl, data)
	}
	if err != nil {
		return nil, err
	}

	if r.cfg.SkipEmpty && len(bytes.TrimSpace(res)) == 0 {
		return nil, ErrSkippedEmpty
	}

	return res, nil
}

func (r *Renderer) templateFuncs() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	for k, v := range r.cfg.Funcs {
		funcs[k] = v
	}

	funcs["include"] = func(tmpl string, data any) (string, error) {
		path, err := r.templatePath(tmpl)
		if err != nil {
			return "", err
		}

		res, err := r.renderFile(path, data)
		return string(res), err
	}

	return funcs
}

func (r *Renderer) jetFuncs() map[string]jet.Func {
	funcs := make(map[string]jet.Func)
	for k, v := range r.cfg.JetFuncs {
		funcs[k] = v
	}

	// include is a jet keyword
	funcs["render"] = func(args jet.Arguments) reflect.Value {
		args.RequireNumOfArguments("render", 2, 2)

		path, err := r.templatePath(args.Get(0).String())
		if err != nil {
			args.Panicf("render: %v", err)
		}

		res, err := r.renderFile(path, args.Get(1).Interface())
		if err != nil {
			args.Panicf("render: %v", err)
		}

		return reflect.ValueOf(string(res))
	}

	funcs["toJson"] = func(args jet.Arguments) reflect.Value {
		args.RequireNumOfArguments("toJson", 1, 1)

		j, err := json.Marshal(args.Get(0).Interface())
		if err != nil {
			args.Panicf("toJson: %v", err)
		}

		return reflect.ValueOf(string(j))
	}

	return funcs
}

func (r *Renderer) renderGo(name string, tmpl []byte, data any) ([]byte, error) {
	templ := template.New(name).Funcs(r.templateFuncs())

	if r.cfg.CustomLeftDelimiter != "" {
		templ.Delims(r.cfg.CustomLeftDelimiter, r.cfg.CustomRightDelimiter)
	}

	templ, err := templ.Parse(string(tmpl))
	if err != nil {
		return nil, fmt.Errorf("parsing template %v failed: %w", name, err)
	}

	buf := bytes.NewBuffer([]byte{})
	err = templ.Execute(buf, data)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (r *Renderer) renderJet(name string, tmpl []byte, data any) ([]byte, error) {
	loader := jet.NewInMemLoader()
	loader.Set(name, string(tmpl))

	opts := []jet.Option{jet.WithSafeWriter(nil)}
	if r.cfg.CustomLeftDelimiter != "" {
		opts = append(opts, jet.WithDelims(r.cfg.CustomLeftDelimiter, r.cfg.CustomRightDelimiter))
	}

	set := jet.NewSet(loader, opts...)
	for k, fn := range r.jetFuncs() {
		set.AddGlobalFunc(k, fn)
	}

	t, err := set.GetTemplate(name)
	if err != nil {
		return nil, fmt.Errorf("parsing template %v failed: %w", name, err)
	}

	buf := bytes.NewBuffer([]byte{})
	err = t.Execute(buf, nil, data)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func containedInDir(path string, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

// templatePath resolves included template names, refusing those outside the template directory
func (r *Renderer) templatePath(name string) (string, error) {
	path, err := filepath.Abs(filepath.Join(r.cfg.TemplateDirectory, name))
	if err != nil {
		return "", fmt.Errorf("invalid template path %s: %v", name, err)
	}

	if !containedInDir(path, r.cfg.TemplateDirectory) {
		return "", fmt.Errorf("%s is not in template directory %s", name, r.cfg.TemplateDirectory)
	}

	return path, nil
}

// postFile runs the post processors whose glob matches f, {} in the command is replaced by the file name
// which is otherwise appended
func (r *Renderer) postFile(f string) error {
	for _, p := range r.cfg.Post {
		for g, v := range p {
			matched, err := filepath.Match(g, filepath.Base(f))
			if err != nil {
				return err
			}
			if !matched {
				continue
			}

			parts, err := shellquote.Split(v)
			if err != nil {
				return err
			}
			if len(parts) == 0 {
				return fmt.Errorf("empty post processor for %s", g)
			}

			var args []string
			placed := false
			for _, a := range parts[1:] {
				if strings.Contains(a, "{}") {
					a = strings.ReplaceAll(a, "{}", f)
					placed = true
				}
				args = append(args, a)
			}
			if !placed {
				args = append(args, f)
			}

			if r.log != nil {
				r.log.Infof("Post processing using: %s %s", parts[0], strings.Join(args, " "))
			}

			out, err := exec.Command(parts[0], args...).CombinedOutput()
			if err != nil {
				return fmt.Errorf("failed to post process %s\nerror: %w\noutput: %q", f, err, out)
			}
		}
	}

	return nil
}
