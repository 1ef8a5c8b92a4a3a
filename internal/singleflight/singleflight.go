// Package singleflight coalesces concurrent calls producing the same value,
// so N callers racing on one key trigger a single execution. Used to
// guarantee that concurrent first requests perform exactly one credential
// exchange.
package singleflight

import "sync"

// Group manages a set of in-flight calls keyed by string.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

type call struct {
	wg  sync.WaitGroup
	val string
	err error
}

// New creates an empty Group.
func New() *Group {
	return &Group{
		m: make(map[string]*call),
	}
}

// Do executes fn, making sure only one execution is in flight for key at a
// time. Duplicate callers wait for the original and receive the same
// results. The key is released as soon as the call completes, so a caller
// arriving after completion starts a fresh execution.
func (g *Group) Do(key string, fn func() (string, error)) (string, error) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err
	}

	c := &call{}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()

	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
	c.wg.Done()

	return c.val, c.err
}
