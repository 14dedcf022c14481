// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 J. Blake / mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"sort"
	"strings"
	"sync"
)

// MessageHandler receives the messages arriving on a subscription.
type MessageHandler func(msg *Message)

// TopicsIndex is a prefix/trie tree of subscribed topic filters and the handlers
// which receive the messages matching them.
type TopicsIndex struct {
	root *particle // a leaf containing a handler and more leaves.
	mu   sync.RWMutex
}

// NewTopicsIndex returns a pointer to a new instance of Index.
func NewTopicsIndex() *TopicsIndex {
	return &TopicsIndex{
		root: newParticle("", nil),
	}
}

// Subscribe sets the handler for a topic filter, returning true if the filter
// was not already indexed.
func (x *TopicsIndex) Subscribe(filter string, handler MessageHandler) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	n := x.set(filter)
	existed := n.handler != nil
	n.filter = filter
	n.handler = handler
	return !existed
}

// Unsubscribe removes the handler of a topic filter, returning true if the
// filter was indexed.
func (x *TopicsIndex) Unsubscribe(filter string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	n := x.seek(filter)
	if n == nil || n.handler == nil {
		return false
	}

	n.handler = nil
	n.filter = ""
	x.trim(n)
	return true
}

// Len returns the number of indexed filters.
func (x *TopicsIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.root.count()
}

// Handlers returns the handlers of every filter matching a topic name, in
// filter order.
func (x *TopicsIndex) Handlers(topic string) []MessageHandler {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(topic) == 0 {
		return nil
	}

	matched := map[string]MessageHandler{}
	x.scanHandlers(topic, 0, x.root, matched)

	filters := make([]string, 0, len(matched))
	for f := range matched {
		filters = append(filters, f)
	}
	sort.Strings(filters)

	hs := make([]MessageHandler, 0, len(filters))
	for _, f := range filters {
		hs = append(hs, matched[f])
	}

	return hs
}

// set creates a filter address in the index and returns the final particle.
func (x *TopicsIndex) set(filter string) *particle {
	var key string
	var hasNext = true
	n := x.root
	for d := 0; hasNext; d++ {
		key, hasNext = isolateParticle(filter, d)
		p := n.particles[key]
		if p == nil {
			p = newParticle(key, n)
			n.particles[key] = p
		}
		n = p
	}

	return n
}

// seek finds the particle at the end of a topic filter.
func (x *TopicsIndex) seek(filter string) *particle {
	var key string
	var hasNext = true
	n := x.root
	for d := 0; hasNext; d++ {
		key, hasNext = isolateParticle(filter, d)
		n = n.particles[key]
		if n == nil {
			return nil
		}
	}

	return n
}

// trim removes empty filter particles from the index.
func (x *TopicsIndex) trim(n *particle) {
	for n.parent != nil && n.handler == nil && len(n.particles) == 0 {
		key := n.key
		n = n.parent
		delete(n.particles, key)
	}
}

// scanHandlers collects the handlers of filters matching the topic from level d onwards.
func (x *TopicsIndex) scanHandlers(topic string, d int, n *particle, matched map[string]MessageHandler) {
	key, hasNext := isolateParticle(topic, d)
	for _, partKey := range []string{key, "+", "#"} {
		p := n.particles[partKey]
		if p == nil {
			continue
		}

		// $ topics are not matched by top level wildcards.
		if d == 0 && partKey != key && strings.HasPrefix(topic, "$") {
			continue
		}

		if partKey == "#" {
			p.gather(matched)
			continue
		}

		if !hasNext {
			p.gather(matched)
			if wild := p.particles["#"]; wild != nil {
				wild.gather(matched) // filter/# also matches filter
			}
			continue
		}

		x.scanHandlers(topic, d+1, p, matched)
	}
}

// isolateParticle extracts a particle between d / and d+1 / without allocations.
func isolateParticle(filter string, d int) (particle string, hasNext bool) {
	var next, end int
	for i := 0; end > -1 && i <= d; i++ {
		end = strings.IndexRune(filter, '/')

		switch {
		case d > -1 && i == d && end > -1:
			hasNext = true
			particle = filter[next:end]
		case end > -1:
			hasNext = false
			filter = filter[end+1:]
		default:
			hasNext = false
			particle = filter[next:]
		}
	}

	return
}

// IsValidFilter returns true if the filter is valid. Topic names used for
// publishing may not contain wildcards.
func IsValidFilter(filter string, forPublish bool) bool {
	if len(filter) == 0 {
		return false
	}

	if forPublish {
		return !strings.ContainsAny(filter, "+#")
	}

	wildhash := strings.IndexRune(filter, '#')
	if wildhash >= 0 && wildhash != len(filter)-1 {
		return false
	}

	var key string
	var hasNext = true
	for d := 0; hasNext; d++ {
		key, hasNext = isolateParticle(filter, d)
		if len(key) > 1 && strings.ContainsAny(key, "+#") {
			return false // wildcards must occupy a whole level
		}
	}

	return true
}

// particle is a child node on the tree.
type particle struct {
	key       string               // the key of the particle
	parent    *particle            // a pointer to the parent of the particle
	particles map[string]*particle // child particles keyed on level
	filter    string               // the full filter ending at this particle
	handler   MessageHandler       // set when a filter ends at this particle
}

// newParticle returns a pointer to a new instance of particle.
func newParticle(key string, parent *particle) *particle {
	return &particle{
		key:       key,
		parent:    parent,
		particles: map[string]*particle{},
	}
}

// gather adds the particle's handler to matched, if it has one.
func (p *particle) gather(matched map[string]MessageHandler) {
	if p.handler != nil {
		matched[p.filter] = p.handler
	}
}

// count returns the number of handlers at and below the particle.
func (p *particle) count() int {
	var n int
	if p.handler != nil {
		n++
	}

	for _, c := range p.particles {
		n += c.count()
	}

	return n
}
