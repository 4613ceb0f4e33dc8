// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"fmt"
	"strings"
)

// Action types understood by form nodes
const (
	InitializeType         = "initialize"
	ExecuteRuleType        = "executeRule"
	ChangeType             = "change"
	ClickType              = "click"
	SubmitType             = "submit"
	AddItemType            = "addItem"
	RemoveItemType         = "removeItem"
	AddInstanceType        = "addInstance"
	RemoveInstanceType     = "removeInstance"
	ResetType              = "reset"
	ValidType              = "valid"
	InvalidType            = "invalid"
	ValidationCompleteType = "validationComplete"
	FieldChangedType       = "fieldChanged"
	FormLoadType           = "load"

	customPrefix = "custom:"
)

// PropertyChange describes one property that changed on a node
type PropertyChange struct {
	PropertyName string `json:"propertyName"`
	PrevValue    any    `json:"prevValue"`
	CurrentValue any    `json:"currentValue"`
}

// ChangePayload is carried by change actions
type ChangePayload struct {
	Changes []PropertyChange `json:"changes"`
}

// Assignment is a request to set a property, carried by change actions created with Assign
type Assignment struct {
	Property string
	Value    any
}

// FieldChangedPayload is dispatched on the form whenever any field changes
type FieldChangedPayload struct {
	Changes []PropertyChange
	Field   State
}

// SubmitPayload configures a submission, Success and Error name the custom events fired on completion
type SubmitPayload struct {
	Success  string
	Error    string
	SubmitAs string
	Data     any
}

// Action is a request dispatched to a form node
type Action struct {
	Type     string
	Payload  any
	Metadata map[string]any
	// Target is the node the action was queued on, set when queued
	Target Node

	custom bool
}

// IsCustom reports if the action is a custom event
func (a Action) IsCustom() bool { return a.custom }

func (a Action) withTarget(n Node) Action {
	a.Target = n
	return a
}

// dispatchToItems reports a custom event that should also reach a container's items
func (a Action) dispatchToItems() bool {
	v, _ := a.Metadata["dispatch"].(bool)
	return v
}

func (a Action) String() string {
	if a.custom {
		return customPrefix + a.Type
	}

	return a.Type
}

func simpleAction(t string, payload any) Action {
	return Action{Type: t, Payload: payload}
}

// Initialize compiles rules and events on a node
func Initialize() Action { return simpleAction(InitializeType, nil) }

// ExecuteRule evaluates every rule of a node
func ExecuteRule() Action { return simpleAction(ExecuteRuleType, nil) }

// Change notifies subscribers of property changes
func Change(changes ...PropertyChange) Action {
	return simpleAction(ChangeType, ChangePayload{Changes: changes})
}

// Assign requests a property to be set on the node the action is dispatched to
func Assign(property string, value any) Action {
	return simpleAction(ChangeType, Assignment{Property: property, Value: value})
}

// Click is dispatched when a button is activated
func Click() Action { return simpleAction(ClickType, nil) }

// Submit requests the form to be validated and submitted
func Submit(payload SubmitPayload) Action { return simpleAction(SubmitType, payload) }

// AddItem adds an item to a repeatable container at index, a negative index appends
func AddItem(index int) Action { return simpleAction(AddItemType, index) }

// RemoveItem removes the item at index from a repeatable container, a negative index removes the last
func RemoveItem(index int) Action { return simpleAction(RemoveItemType, index) }

// AddInstance is AddItem for repeatable panels
func AddInstance(index int) Action { return simpleAction(AddInstanceType, index) }

// RemoveInstance is RemoveItem for repeatable panels
func RemoveInstance(index int) Action { return simpleAction(RemoveInstanceType, index) }

// Reset restores defaults on a node and its children
func Reset() Action { return simpleAction(ResetType, nil) }

// Valid is dispatched when a field becomes valid
func Valid() Action { return simpleAction(ValidType, nil) }

// Invalid is dispatched when a field becomes invalid
func Invalid() Action { return simpleAction(InvalidType, nil) }

// ValidationComplete carries the result of validating the whole form
func ValidationComplete(errs []ValidationError) Action {
	return simpleAction(ValidationCompleteType, errs)
}

// FieldChanged is dispatched on the form for every field change
func FieldChanged(changes []PropertyChange, field State) Action {
	return simpleAction(FieldChangedType, FieldChangedPayload{Changes: changes, Field: field})
}

// FormLoad is dispatched once the form is constructed
func FormLoad() Action { return simpleAction(FormLoadType, nil) }

// CustomEvent creates an event handled by custom:name event formulas, when dispatch is
// set containers pass the event on to their items
func CustomEvent(name string, payload any, dispatch bool) Action {
	return Action{
		Type:     strings.TrimPrefix(name, customPrefix),
		Payload:  payload,
		Metadata: map[string]any{"dispatch": dispatch},
		custom:   true,
	}
}

// NewAction creates an action from an event name as used by formulas and user interfaces,
// names prefixed with custom: produce custom events
func NewAction(name string, payload any) (Action, error) {
	if strings.HasPrefix(name, customPrefix) {
		return CustomEvent(name, payload, false), nil
	}

	switch name {
	case ChangeType:
		if c, ok := payload.(ChangePayload); ok {
			return Change(c.Changes...), nil
		}
		return simpleAction(ChangeType, payload), nil

	case SubmitType:
		if s, ok := payload.(SubmitPayload); ok {
			return Submit(s), nil
		}
		return simpleAction(SubmitType, payload), nil

	case ClickType, ResetType:
		return simpleAction(name, payload), nil

	case AddItemType, RemoveItemType, AddInstanceType, RemoveInstanceType:
		return simpleAction(name, indexPayload(payload)), nil
	}

	return Action{}, fmt.Errorf("unknown action %q", name)
}

// indexPayload normalizes the item index carried by add and remove actions, -1 meaning unset
func indexPayload(p any) int {
	switch v := p.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return -1
	}
}

// eventPayload converts a payload into plain values for formulas
func eventPayload(p any) any {
	switch v := p.(type) {
	case ChangePayload:
		return map[string]any{"changes": changesValue(v.Changes)}
	case FieldChangedPayload:
		return map[string]any{"changes": changesValue(v.Changes), "field": map[string]any(v.Field)}
	case SubmitPayload:
		return map[string]any{"success": v.Success, "error": v.Error, "submit_as": v.SubmitAs, "data": v.Data}
	case []ValidationError:
		res := make([]any, len(v))
		for i, e := range v {
			msgs := make([]any, len(e.ErrorMessages))
			for j, m := range e.ErrorMessages {
				msgs[j] = m
			}
			res[i] = map[string]any{"fieldName": e.FieldName, "errorMessages": msgs}
		}
		return res
	default:
		return p
	}
}

func changesValue(changes []PropertyChange) []any {
	res := make([]any, len(changes))
	for i, c := range changes {
		res[i] = map[string]any{
			"propertyName": c.PropertyName,
			"prevValue":    plainValue(c.PrevValue),
			"currentValue": plainValue(c.CurrentValue),
		}
	}

	return res
}
