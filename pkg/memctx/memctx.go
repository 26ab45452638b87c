// Package memctx tracks the retained byte footprint of readers so a scan
// task's aggregate usage can be compared against operator memory budgets.
//
// A Context forms a tree: each reader owns a leaf created with
// [Context.Child], and every call to [Context.SetBytes] atomically folds the
// delta into all ancestors. Consumers poll the root with [Context.Bytes];
// budget enforcement is a collaborator concern and happens outside this
// package.
package memctx

import "go.uber.org/atomic"

// A Context accounts for the retained bytes of one owner plus all of its
// children.
type Context struct {
	parent *Context

	local atomic.Int64 // Bytes reported directly via SetBytes.
	total atomic.Int64 // local plus the totals of all children.
}

// New returns a root Context.
func New() *Context {
	return &Context{}
}

// Child creates a child Context whose reported bytes roll up into c.
func (c *Context) Child() *Context {
	return &Context{parent: c}
}

// SetBytes replaces the caller's current contribution with n and propagates
// the change to all ancestors. SetBytes is safe for concurrent use by
// different children, though a single child is expected to report from one
// goroutine.
func (c *Context) SetBytes(n int64) {
	old := c.local.Swap(n)
	c.add(n - old)
}

// Bytes returns the aggregate retained bytes of c and all of its children.
func (c *Context) Bytes() int64 {
	return c.total.Load()
}

func (c *Context) add(delta int64) {
	if delta == 0 {
		return
	}
	for ctx := c; ctx != nil; ctx = ctx.parent {
		ctx.total.Add(delta)
	}
}
