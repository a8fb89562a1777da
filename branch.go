package cyre

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// maxBranchDepth caps how deeply branches may nest (spec §4.4), guarding
// against runaway recursive tree construction.
const maxBranchDepth = 5

// Branch is a path-scoped namespace over the same underlying Runtime
// store. Every channel id registered through a Branch is stored under
// branch.path + "/" + id, so sibling branches can reuse short ids without
// colliding.
type Branch struct {
	rt     *Runtime
	id     string
	path   string
	depth  int
	parent *Branch

	mu        sync.Mutex
	children  map[string]*Branch
	destroyed bool
}

// makeBranch constructs a child branch under parentPath, normalizing id to
// NFC and rejecting ids that would break path segmentation.
func makeBranch(rt *Runtime, parent *Branch, parentPath string, depth int, id string) (*Branch, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id", Message: "branch id must not be empty", Blocking: true}
	}
	if strings.Contains(id, "/") {
		return nil, &ValidationError{Field: "id", Value: id, Message: "branch id must not contain '/'", Blocking: true}
	}
	if depth > maxBranchDepth {
		return nil, &ValidationError{Field: "id", Value: id, Message: fmt.Sprintf("branch nesting exceeds max depth %d", maxBranchDepth), Blocking: true}
	}

	normID := norm.NFC.String(id)
	path := normID
	if parentPath != "" {
		path = parentPath + "/" + normID
	}

	return &Branch{
		rt:       rt,
		id:       normID,
		path:     path,
		depth:    depth,
		parent:   parent,
		children: make(map[string]*Branch),
	}, nil
}

// Path returns this branch's fully-qualified path from the root.
func (b *Branch) Path() string { return b.path }

// Branch creates a nested child branch.
func (b *Branch) Branch(id string) (*Branch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil, &ErrBranchDestroyed{Path: b.path}
	}
	child, err := makeBranch(b.rt, b, b.path, b.depth+1, id)
	if err != nil {
		return nil, err
	}
	b.children[child.id] = child
	return child, nil
}

// Action registers a channel scoped to this branch.
func (b *Branch) Action(cfg ChannelConfig) ActionResult {
	if b.isDestroyed() {
		err := &ErrBranchDestroyed{Path: b.path}
		return ActionResult{OK: false, Message: err.Error(), Errors: []string{err.Error()}}
	}
	cfg.Path = b.qualify(cfg.ID)
	return b.rt.actionWithBranch(cfg, b.path)
}

// On registers a handler for a channel id scoped to this branch.
func (b *Branch) On(id string, h Handler) error {
	if b.isDestroyed() {
		return &ErrBranchDestroyed{Path: b.path}
	}
	return b.rt.on(b.qualify(id), h)
}

// Call invokes a channel scoped to this branch. Cross-branch targets
// (ids containing '/') are subject to isAllowed.
func (b *Branch) Call(ctx context.Context, id string, payload any) CallResult {
	if b.isDestroyed() {
		err := &ErrBranchDestroyed{Path: b.path}
		return CallResult{OK: false, Message: err.Error(), Error: err}
	}
	target := id
	if !strings.Contains(id, "/") {
		target = b.qualify(id)
	} else if !isAllowed(b.path, target) {
		err := &ErrCrossBranchDenied{Caller: b.path, Target: target}
		return CallResult{OK: false, Message: err.Error(), Error: err}
	}
	return b.rt.callInternal(ctx, target, payload, 0)
}

func (b *Branch) qualify(id string) string {
	return b.path + "/" + id
}

func (b *Branch) isDestroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

// Destroy cascades: every descendant branch is destroyed first, then
// every channel registered anywhere under this branch's path is removed
// and its timers cancelled (spec §4.4).
func (b *Branch) Destroy() {
	b.mu.Lock()
	children := make([]*Branch, 0, len(b.children))
	for _, c := range b.children {
		children = append(children, c)
	}
	b.destroyed = true
	b.mu.Unlock()

	for _, c := range children {
		c.Destroy()
	}

	for _, id := range b.rt.st.idsUnderBranch(b.path) {
		b.rt.forgetInternal(id)
	}

	if b.parent != nil {
		b.parent.mu.Lock()
		delete(b.parent.children, b.id)
		b.parent.mu.Unlock()
	}
}

// isAllowed decides whether a call originating inside callerPath may
// target targetPath directly (spec §9 Design Notes). A branch may call
// into itself or any of its own descendants; it may not reach sideways
// into a sibling or upward past its own root without going through the
// root Runtime, which has no caller path and is always allowed.
func isAllowed(callerPath, targetPath string) bool {
	if callerPath == "" {
		return true
	}
	if targetPath == callerPath {
		return true
	}
	return strings.HasPrefix(targetPath, callerPath+"/")
}
