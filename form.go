// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"context"
	"fmt"
	"sync"

	"github.com/choria-io/adaptiveform/data"
)

// FormID is the id, name and qualified name of every form
const FormID = "$form"

// Option configures a Form
type Option func(*Form)

// WithLogger logs runtime events to log, without a logger nothing is logged
func WithLogger(log Logger) Option {
	return func(f *Form) {
		f.userLog = log
	}
}

// WithLogLevel sets the threshold for messages passed to the logger, defaults to ErrorLevel
func WithLogLevel(level LogLevel) Option {
	return func(f *Form) {
		f.level = level
	}
}

// WithHTTPClient sets the client used by submitForm and request
func WithHTTPClient(c HTTPDoer) Option {
	return func(f *Form) {
		f.client = c
	}
}

// WithFunctions makes the functions in r available to formulas in addition to the package defaults
func WithFunctions(r *Functions) Option {
	return func(f *Form) {
		f.functions = r
	}
}

// WithCallback is called once the form is created, before the queue is drained
func WithCallback(cb func(*Form)) Option {
	return func(f *Form) {
		f.callback = cb
	}
}

// WithFormatter formats edit and display values of fields
func WithFormatter(formatter Formatter) Option {
	return func(f *Form) {
		f.formatter = formatter
	}
}

// WithContext is the context HTTP requests are made with
func WithContext(ctx context.Context) Option {
	return func(f *Form) {
		f.ctx = ctx
	}
}

type completion struct {
	target element
	action Action
}

// Form is the root container of a form instance, it owns the event queue, the rule
// engine and the data graph
type Form struct {
	Container

	queue     *EventQueue
	ids       *IdPool
	engine    *RuleEngine
	functions *Functions
	elements  map[string]element
	invalid   []string

	log       Logger
	userLog   Logger
	level     LogLevel
	client    HTTPDoer
	formatter Formatter
	ctx       context.Context
	callback  func(*Form)

	mu       sync.Mutex
	done     []completion
	inflight int
	wake     chan struct{}
}

// NewForm creates a form from a schema, actions queued while building it are pending
// until the queue is next drained
func NewForm(schema map[string]any, opts ...Option) (*Form, error) {
	def, ok := deepClone(schema, nil).(map[string]any)
	if !ok || def == nil {
		return nil, fmt.Errorf("%w: form definition is empty", ErrInvalidSchema)
	}
	delete(def, "data")

	f := &Form{
		elements:  map[string]element{},
		level:     ErrorLevel,
		formatter: identityFormatter{},
		ctx:       context.Background(),
		wake:      make(chan struct{}, 1),
		ids:       NewIdPool(0),
	}

	for _, opt := range opts {
		opt(f)
	}

	f.log = NewLevelLogger(f.userLog, f.level)
	if f.functions == nil {
		f.functions = defaultFunctions
	}
	if f.client == nil {
		f.client = defaultHTTPClient()
	}

	f.queue = NewEventQueue(f.log)
	f.engine = NewRuleEngine(f.functions, f.log)

	def["id"] = FormID
	def["name"] = FormID
	def["type"] = data.ObjectType

	f.Container = Container{node: newNode(def, f, nil)}
	f.self = f
	f.kind = FormKind

	f.queueEvent(Initialize())
	f.queueEvent(ExecuteRule())

	err := f.bindToDataModel(data.NewGroup(data.Name(FormID), map[string]any{}))
	if err != nil {
		return nil, err
	}

	err = f.initialize()
	if err != nil {
		return nil, err
	}

	f.queueEvent(FormLoad())

	return f, nil
}

func (f *Form) FieldType() string { return "form" }

// Lang is the language of the form, defaults to en
func (f *Form) Lang() string {
	if l := stringProp(f.model, "lang"); l != "" {
		return l
	}

	return "en"
}

// Title is the form title
func (f *Form) Title() string { return stringProp(f.model, "title") }

// ActionURL is where the form submits to
func (f *Form) ActionURL() string { return stringProp(f.model, "action") }

// Queue is the event queue of the form
func (f *Form) Queue() *EventQueue { return f.queue }

// Engine is the rule engine of the form
func (f *Form) Engine() *RuleEngine { return f.engine }

// Logger is the leveled logger of the form
func (f *Form) Logger() Logger { return f.log }

// fieldAdded registers a new node and follows its validity and changes
func (f *Form) fieldAdded(el element) {
	f.elements[el.ID()] = el

	el.Subscribe(func(a Action) {
		for _, id := range f.invalid {
			if id == el.ID() {
				return
			}
		}
		f.invalid = append(f.invalid, el.ID())
	}, InvalidType)

	el.Subscribe(func(a Action) {
		f.dropInvalid(el.ID())
	}, ValidType)

	el.Subscribe(func(a Action) {
		p, ok := a.Payload.(ChangePayload)
		if !ok {
			return
		}
		f.Dispatch(FieldChanged(p.Changes, el.State()))
	}, ChangeType)
}

// fieldRemoved forgets a node and all its descendants
func (f *Form) fieldRemoved(el element) {
	delete(f.elements, el.ID())
	f.dropInvalid(el.ID())

	if c := containerOf(el); c != nil {
		for _, child := range c.children {
			f.fieldRemoved(child)
		}
	}
}

func (f *Form) dropInvalid(id string) {
	for i, e := range f.invalid {
		if e == id {
			f.invalid = append(f.invalid[:i:i], f.invalid[i+1:]...)
			return
		}
	}
}

// GetElement finds a node by id, nil when not found
func (f *Form) GetElement(id string) Node {
	if id == FormID {
		return f
	}

	el, ok := f.elements[id]
	if !ok {
		return nil
	}

	return el
}

// Visit calls cb for every node below the form, children before their container
func (f *Form) Visit(cb func(Node)) {
	visitChildren(&f.Container, cb)
}

func visitChildren(c *Container, cb func(Node)) {
	for _, child := range c.children {
		if cont := containerOf(child); cont != nil {
			visitChildren(cont, cb)
		}
		cb(child)
	}
}

// ImportData replaces the form data, synchronizing every field and repeatable container
func (f *Form) ImportData(d map[string]any) error {
	err := f.loadData(d)
	f.queue.RunPending()

	return err
}

// loadData rebinds the form to a copy of d queuing the resulting changes
func (f *Form) loadData(d map[string]any) error {
	v, _ := deepClone(d, nil).(map[string]any)
	if v == nil {
		v = map[string]any{}
	}

	err := f.bindToDataModel(data.NewGroup(data.Name(FormID), v))
	if err != nil {
		return err
	}

	return f.syncDataAndFormModel(f.data)
}

// ExportData is the current data of the form
func (f *Form) ExportData() any {
	if f.data == nil {
		return nil
	}

	return f.data.Value()
}

// Validate validates every field and dispatches a validationComplete event with the result
func (f *Form) Validate() []ValidationError {
	errs := f.validate()
	f.Dispatch(ValidationComplete(errs))

	return errs
}

// IsValid reports if no field is known to be invalid
func (f *Form) IsValid() bool { return len(f.invalid) == 0 }

func (f *Form) reset() {
	f.Container.reset()
	f.invalid = nil
}

func (f *Form) handle(a Action) {
	if a.Type == SubmitType {
		f.submit(a)
		return
	}

	f.Container.handle(a)
}

func (f *Form) submit(a Action) {
	if len(f.Validate()) > 0 {
		return
	}

	p, _ := a.Payload.(SubmitPayload)
	f.submitData(p)
}

func (f *Form) State() State {
	s := f.Container.State()
	s["id"] = FormID
	s["lang"] = f.Lang()

	return s
}

// FormState is the state of the form with lazily computed data and attachments
func (f *Form) FormState() FormState {
	return FormState{State: f.State(), form: f}
}

// async runs fn in the background, the action it returns is dispatched on target by AwaitPending
func (f *Form) async(target element, fn func() Action) {
	f.mu.Lock()
	f.inflight++
	f.mu.Unlock()

	go func() {
		a := fn()

		f.mu.Lock()
		f.done = append(f.done, completion{target: target, action: a})
		f.inflight--
		f.mu.Unlock()

		select {
		case f.wake <- struct{}{}:
		default:
		}
	}()
}

// Pending is the number of background operations not yet dispatched
func (f *Form) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.inflight + len(f.done)
}

// DispatchCompleted dispatches the results of finished background operations without waiting
func (f *Form) DispatchCompleted() int {
	f.mu.Lock()
	done := f.done
	f.done = nil
	f.mu.Unlock()

	for _, c := range done {
		c.target.Dispatch(c.action)
	}

	return len(done)
}

// AwaitPending waits for background operations such as submissions and dispatches their
// results on the calling goroutine until none remain
func (f *Form) AwaitPending(ctx context.Context) error {
	for {
		if f.DispatchCompleted() > 0 {
			continue
		}

		if f.Pending() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.wake:
		}
	}
}
