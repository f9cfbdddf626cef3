// Package keymaster implements the hierarchical key-value store shared by
// the Controller and Components: configuration is read from it once at
// startup, and components publish their state into it as they transition.
//
// A document of nested maps, lists, and scalars is addressed by dotted
// path ("components.c1.state"), walked one segment at a time from the
// root Node.
package keymaster

import (
	"fmt"
	"strings"
)

// Node is a value in the Keymaster tree: a scalar, a list, or a map of
// further Nodes. Exactly one of the fields is meaningful, selected by
// Kind.
type Node struct {
	Kind  NodeKind
	Scalar string
	List  []Node
	Map   map[string]Node
}

type NodeKind int

const (
	KindScalar NodeKind = iota
	KindList
	KindMap
	KindNull
)

// Str returns a scalar Node wrapping s.
func Str(s string) Node { return Node{Kind: KindScalar, Scalar: s} }

// MapNode returns a map Node.
func MapNode(m map[string]Node) Node { return Node{Kind: KindMap, Map: m} }

// ListNode returns a list Node.
func ListNode(items []Node) Node { return Node{Kind: KindList, List: items} }

// Tree is the hierarchical document itself: a root Node plus dotted-path
// accessors. Not safe for concurrent use directly; callers use it only
// through Client, which serializes access.
type Tree struct {
	root Node
}

// NewTree returns an empty Tree rooted at an empty map.
func NewTree() *Tree {
	return &Tree{root: MapNode(map[string]Node{})}
}

// NewTreeFromNode returns a Tree rooted at root.
func NewTreeFromNode(root Node) *Tree {
	return &Tree{root: root}
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Get walks path (dot-separated) from the root and returns the Node
// found there, or an error if any segment does not exist or is not a map.
func (t *Tree) Get(path string) (Node, error) {
	segments := splitPath(path)
	cur := t.root
	for i, seg := range segments {
		if cur.Kind != KindMap {
			return Node{}, fmt.Errorf("keymaster: %q is not a map at segment %q", strings.Join(segments[:i], "."), seg)
		}
		child, ok := cur.Map[seg]
		if !ok {
			return Node{}, fmt.Errorf("keymaster: no such path %q", path)
		}
		cur = child
	}
	return cur, nil
}

// Put writes value at path, creating intermediate maps as needed.
// Overwrites whatever was previously at path.
func (t *Tree) Put(path string, value Node) error {
	segments := splitPath(path)
	if len(segments) == 0 {
		t.root = value
		return nil
	}
	return putInto(&t.root, segments, value)
}

func putInto(node *Node, segments []string, value Node) error {
	if node.Kind != KindMap {
		*node = MapNode(map[string]Node{})
	}
	if node.Map == nil {
		node.Map = map[string]Node{}
	}
	seg := segments[0]
	if len(segments) == 1 {
		node.Map[seg] = value
		return nil
	}
	child := node.Map[seg]
	if err := putInto(&child, segments[1:], value); err != nil {
		return err
	}
	node.Map[seg] = child
	return nil
}

// Walk visits every leaf (any node other than a non-empty map, so lists
// are reported whole) reachable at or below
// path, calling fn with its full dotted path and Node.
func (t *Tree) Walk(path string, fn func(path string, n Node)) error {
	start, err := t.Get(path)
	if err != nil {
		return err
	}
	walk(path, start, fn)
	return nil
}

func walk(path string, n Node, fn func(string, Node)) {
	if n.Kind != KindMap || len(n.Map) == 0 {
		fn(path, n)
		return
	}
	for k, v := range n.Map {
		child := k
		if path != "" {
			child = path + "." + k
		}
		walk(child, v, fn)
	}
}

// Root returns the tree's root Node.
func (t *Tree) Root() Node { return t.root }
