// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/choria-io/adaptiveform/constraints"
)

// FunctionContext is passed to functions called from formulas
type FunctionContext struct {
	// Form is the form the formula belongs to
	Form *Form
	// Field is the node whose rule or event is being evaluated
	Field Node
	// Event is the action that triggered the evaluation, nil for rules run outside of events
	Event *Action
}

// Function is a function callable from formulas that has access to the form
type Function func(ctx *FunctionContext, args ...any) (any, error)

// Functions is a registry of functions made available to formulas
type Functions struct {
	funcs map[string]Function
	plain map[string]any
	mu    sync.RWMutex
}

// defaultFunctions are available to every form
var defaultFunctions = NewFunctions()

// NewFunctions creates an empty registry
func NewFunctions() *Functions {
	return &Functions{
		funcs: map[string]Function{},
		plain: map[string]any{},
	}
}

// RegisterFunctions adds functions to the registry shared by all forms
func RegisterFunctions(funcs map[string]any) error {
	return defaultFunctions.Register(funcs)
}

// UnregisterFunctions removes functions from the registry shared by all forms
func UnregisterFunctions(names ...string) {
	defaultFunctions.Unregister(names...)
}

// Register adds functions, values of type Function receive the form context while any other
// Go function is called with the formula arguments as is
func (r *Functions) Register(funcs map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch fn := funcs[name].(type) {
		case Function:
			r.funcs[name] = fn
			delete(r.plain, name)
		case func(*FunctionContext, ...any) (any, error):
			r.funcs[name] = fn
			delete(r.plain, name)
		default:
			if fn == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
				return fmt.Errorf("unable to register function with name %s", name)
			}
			r.plain[name] = fn
			delete(r.funcs, name)
		}
	}

	return nil
}

// Unregister removes functions by name
func (r *Functions) Unregister(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		delete(r.funcs, name)
		delete(r.plain, name)
	}
}

// Names are the names of all registered functions
func (r *Functions) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []string
	for k := range r.funcs {
		res = append(res, k)
	}
	for k := range r.plain {
		res = append(res, k)
	}
	sort.Strings(res)

	return res
}

func (r *Functions) each(cb func(name string, fn Function, plain any)) {
	if r == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for k, v := range r.funcs {
		cb(k, v, nil)
	}
	for k, v := range r.plain {
		cb(k, nil, v)
	}
}

// builtinFunctions are always available to formulas, registered functions override them
var builtinFunctions = map[string]Function{
	"validate":      validateFunc,
	"setFocus":      setFocusFunc,
	"getData":       getDataFunc,
	"exportData":    exportDataFunc,
	"importData":    importDataFunc,
	"submitForm":    submitFormFunc,
	"request":       requestFunc,
	"dispatchEvent": dispatchEventFunc,
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}

	return nil
}

// argString converts an argument to a string, missing and nil arguments are empty
func argString(args []any, i int) string {
	v := arg(args, i)
	if v == nil {
		return ""
	}

	return constraints.ToString(v)
}

func validateFunc(ctx *FunctionContext, args ...any) (any, error) {
	var errs []ValidationError

	switch target := arg(args, 0).(type) {
	case Node:
		errs = target.Validate()
	default:
		errs = ctx.Form.Validate()
	}

	if len(errs) > 0 {
		ctx.Form.log.Errorf("Form Validation Error")
	}

	return eventPayload(errs), nil
}

func setFocusFunc(ctx *FunctionContext, args ...any) (any, error) {
	target, ok := arg(args, 0).(Node)
	if !ok || target == nil {
		ctx.Form.log.Errorf("Invalid argument passed in setFocus. An element is expected")
		return nil, nil
	}

	target.Focus()

	return nil, nil
}

func getDataFunc(ctx *FunctionContext, _ ...any) (any, error) {
	ctx.Form.log.Warnf("The `getData` function is deprecated. Use `exportData` instead.")

	return ctx.Form.ExportData(), nil
}

func exportDataFunc(ctx *FunctionContext, _ ...any) (any, error) {
	return ctx.Form.ExportData(), nil
}

func importDataFunc(ctx *FunctionContext, args ...any) (any, error) {
	input, ok := plainValue(arg(args, 0)).(map[string]any)
	if ok {
		err := ctx.Form.ImportData(input)
		if err != nil {
			return nil, err
		}
	}

	return map[string]any{}, nil
}

func submitFormFunc(ctx *FunctionContext, args ...any) (any, error) {
	p := SubmitPayload{
		Success:  argString(args, 0),
		Error:    argString(args, 1),
		SubmitAs: "multipart/form-data",
	}
	if len(args) > 2 {
		p.SubmitAs = argString(args, 2)
	}
	if len(args) > 3 {
		p.Data = plainValue(args[3])
	}

	ctx.Form.Dispatch(Submit(p))

	return map[string]any{}, nil
}

func requestFunc(ctx *FunctionContext, args ...any) (any, error) {
	req := apiRequest{
		URI:     argString(args, 0),
		Verb:    argString(args, 1),
		Payload: plainValue(arg(args, 2)),
		Headers: map[string]any{},
	}

	if _, ok := arg(args, 3).(string); ok {
		ctx.Form.log.Warnf("This usage of request is deprecated. Please see the documentation and update")
		req.Success = argString(args, 3)
		req.Error = argString(args, 4)
	} else {
		if h, ok := plainValue(arg(args, 3)).(map[string]any); ok {
			req.Headers = h
		}
		req.Success = argString(args, 4)
		req.Error = argString(args, 5)
	}

	ctx.Form.request(req)

	return map[string]any{}, nil
}

func dispatchEventFunc(ctx *FunctionContext, args ...any) (any, error) {
	target := arg(args, 0)
	name, onForm := target.(string)

	var payload any
	if onForm {
		payload = plainValue(arg(args, 1))
	} else {
		name = argString(args, 1)
		payload = plainValue(arg(args, 2))
	}

	var action Action
	if strings.HasPrefix(name, customPrefix) {
		action = CustomEvent(name, payload, onForm)
	} else {
		var err error
		action, err = NewAction(name, payload)
		if err != nil {
			ctx.Form.log.Errorf("invalid action: %v", err)
			return map[string]any{}, nil
		}
	}

	if onForm {
		ctx.Form.Dispatch(action)
		return map[string]any{}, nil
	}

	node, ok := target.(Node)
	if !ok || node == nil {
		ctx.Form.log.Errorf("dispatchEvent expects an element or event name, got %v", target)
		return map[string]any{}, nil
	}

	node.Dispatch(action)

	return map[string]any{}, nil
}
