// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

// MaxEventCycleCount is how often the same action may be queued on the same node
// before further queuing is dropped, until the queue drains
const MaxEventCycleCount = 10

type queueEntry struct {
	node   element
	action Action
}

func (e queueEntry) key() string {
	return e.node.ID() + "__" + e.action.Type
}

// EventQueue is the single ordered queue every action of a form flows through.
//
// Running the queue is not re-entrant: actions queued while it runs are picked up by
// the running drain loop. Every (node, action type) pair may be queued at most
// MaxEventCycleCount times per drain which guarantees feedback loops between rules end.
type EventQueue struct {
	log        Logger
	pending    []queueEntry
	counts     map[string]int
	processing bool
}

// NewEventQueue creates an idle queue
func NewEventQueue(log Logger) *EventQueue {
	if log == nil {
		log = NewLevelLogger(nil, OffLevel)
	}

	return &EventQueue{log: log, counts: map[string]int{}}
}

// Len is the number of pending entries
func (q *EventQueue) Len() int { return len(q.pending) }

// Processing reports if the queue is being drained
func (q *EventQueue) Processing() bool { return q.processing }

// Queue adds actions for n, priority actions are placed ahead of every pending entry
func (q *EventQueue) Queue(n Node, priority bool, actions ...Action) {
	el, ok := n.(element)
	if !ok || el == nil {
		return
	}

	for _, a := range actions {
		entry := queueEntry{node: el, action: a.withTarget(n)}
		key := entry.key()
		count := q.counts[key]

		if count >= MaxEventCycleCount {
			q.log.Infof("Skipped queueing event : %s node: %s - %s with count=%d", a.Type, n.ID(), n.Name(), count)
			continue
		}

		q.log.Infof("Queued event : %s node: %s - %s", a.Type, n.ID(), n.Name())

		if priority {
			q.pending = append([]queueEntry{entry}, q.pending...)
		} else {
			q.pending = append(q.pending, entry)
		}

		q.counts[key] = count + 1
	}
}

// IsQueued reports if an action of the same type is pending for n
func (q *EventQueue) IsQueued(n Node, a Action) bool {
	for _, e := range q.pending {
		if Node(e.node) == n && e.action.Type == a.Type {
			return true
		}
	}

	return false
}

// RunPending drains the queue, it does nothing when called while already draining
func (q *EventQueue) RunPending() {
	if q.processing {
		return
	}

	q.processing = true
	defer func() {
		q.counts = map[string]int{}
		q.processing = false
	}()

	for len(q.pending) > 0 {
		e := q.pending[0]
		q.pending = q.pending[1:]

		q.log.Infof("Dequeued event : %s node: %s - %s", e.action.Type, e.node.ID(), e.node.Name())
		e.node.executeAction(e.action)
	}
}
