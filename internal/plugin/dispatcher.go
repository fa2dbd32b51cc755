package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/latticedb/resolver/internal/schema"
)

// Dispatcher holds the registered plugins and invokes their callbacks in
// priority order at each pipeline phase. Unlike a resilient event bus, a
// callback error here aborts the enclosing transaction: plugins are part
// of the resolver's control flow, not passive observers.
type Dispatcher struct {
	mu      sync.RWMutex
	plugins []*Plugin
	js      nats.JetStreamContext
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// SetJetStream attaches a JetStream context so lifecycle events are also
// published for external/distributed consumers, in addition to running
// local callbacks. Publishing failures are logged, never propagated — it
// is supplementary, not a prerequisite for the transaction to proceed.
func (d *Dispatcher) SetJetStream(js nats.JetStreamContext) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.js = js
}

// Register adds a plugin. Plugins are sorted by priority on each
// dispatch, so registration order only matters as a tiebreak.
func (d *Dispatcher) Register(p *Plugin) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plugins = append(d.plugins, p)
}

// RunPreRequisites runs every plugin's startup check against the prepared
// schema, in registration order, stopping at the first failure.
func (d *Dispatcher) RunPreRequisites(tables schema.DeclaredSchema) error {
	d.mu.RLock()
	plugins := append([]*Plugin(nil), d.plugins...)
	d.mu.RUnlock()

	for _, p := range plugins {
		if p.PreRequisite == nil {
			continue
		}
		if err := p.PreRequisite(tables); err != nil {
			return fmt.Errorf("plugin %q preRequisite: %w", p.Name, err)
		}
	}
	return nil
}

// Dispatch runs every plugin's callback for (phase, table), in priority
// order, awaiting each before starting the next. The first callback error
// stops the chain and is returned so the caller can abort the transaction.
func (d *Dispatcher) Dispatch(ctx context.Context, phase Phase, table string, evt *Event) error {
	d.mu.RLock()
	ordered := d.orderedLocked()
	js := d.js
	d.mu.RUnlock()

	for _, p := range ordered {
		cb, ok := p.callbackFor(phase, table)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cb(ctx, evt); err != nil {
			return fmt.Errorf("plugin %q %s(%s): %w", p.Name, phase, table, err)
		}
	}

	if js != nil {
		d.publish(js, phase, table, evt)
	}
	return nil
}

// RunOnSuccess runs every registered onSuccess hook, in priority order,
// before the transaction commits. Hook errors abort the commit (they are
// part of the transaction's success condition, unlike onError hooks).
func (d *Dispatcher) RunOnSuccess(ctx context.Context, results map[string]any, meta RequestMeta) error {
	d.mu.RLock()
	ordered := d.orderedLocked()
	d.mu.RUnlock()

	for _, p := range ordered {
		if p.OnSuccess == nil {
			continue
		}
		if err := p.OnSuccess(ctx, results, meta); err != nil {
			return fmt.Errorf("plugin %q onSuccess: %w", p.Name, err)
		}
	}
	return nil
}

// RunOnError runs every registered onError hook after rollback. Hook
// failures are logged but never replace the original failure.
func (d *Dispatcher) RunOnError(ctx context.Context, failure error, meta RequestMeta) {
	d.mu.RLock()
	ordered := d.orderedLocked()
	d.mu.RUnlock()

	for _, p := range ordered {
		if p.OnError == nil {
			continue
		}
		if err := p.OnError(ctx, failure, meta); err != nil {
			log.Printf("plugin %q onError hook itself failed: %v", p.Name, err)
		}
	}
}

// orderedLocked returns plugins sorted by priority (lowest first). Caller
// must hold at least a read lock.
func (d *Dispatcher) orderedLocked() []*Plugin {
	ordered := append([]*Plugin(nil), d.plugins...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })
	return ordered
}

func (d *Dispatcher) publish(js nats.JetStreamContext, phase Phase, table string, evt *Event) {
	subject := fmt.Sprintf("resolver.%s.%s", table, phase)
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("plugin: failed to marshal %s event for JetStream: %v", subject, err)
		return
	}
	if _, err := js.Publish(subject, data); err != nil {
		log.Printf("plugin: JetStream publish to %s failed: %v", subject, err)
	}
}
