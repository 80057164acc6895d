// Package listing turns raw directory entries into typed nodes.
//
// Entries whose type the directory read already reported as a directory or
// regular file resolve immediately. Every other entry is classified with a
// follow-up stat, which follows symbolic links.
package listing

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/desertwitch/evfs/internal/backend"
	"github.com/desertwitch/evfs/internal/future"
	"github.com/desertwitch/evfs/internal/scheduler"
	eventloop "github.com/joeycumines/go-eventloop"
	"golang.org/x/sys/unix"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindFile
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindUnknown:
	}

	return "unknown"
}

// Node is a classified directory entry. Callers never see [KindUnknown].
// Symlink is set when the directory read reported a link, in which case Kind
// describes the link target.
type Node struct {
	Name    string
	Path    string
	Kind    Kind
	Symlink bool
}

// Policy decides how a resolution reacts to failed entries.
type Policy int

const (
	// PolicyFailFast rejects with the first entry failure.
	PolicyFailFast Policy = iota

	// PolicyCollectAll waits for every entry and rejects with a
	// [*ListingError] if any of them failed.
	PolicyCollectAll
)

func (p Policy) String() string {
	if p == PolicyCollectAll {
		return "collect-all"
	}

	return "fail-fast"
}

// ParsePolicy accepts "fail-fast" and "collect-all". The empty string is
// [PolicyFailFast].
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail-fast", "failfast":
		return PolicyFailFast, nil
	case "collect-all", "collectall":
		return PolicyCollectAll, nil
	}

	return PolicyFailFast, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

type invoker interface {
	InvokeCall(ctx context.Context, op backend.Op, args []any, passthrough bool) *future.Future[scheduler.Completion]
	Promises() *eventloop.JS
}

type Resolver struct {
	invoker invoker
	policy  Policy
}

func NewResolver(inv invoker, policy Policy) *Resolver {
	return &Resolver{
		invoker: inv,
		policy:  policy,
	}
}

func (r *Resolver) Policy() Policy {
	return r.policy
}

// ResolveListing classifies the raw entries of the directory base. The
// listing keeps the order of raw; a repeated name replaces the earlier node
// in place.
func (r *Resolver) ResolveListing(ctx context.Context, base string, raw []backend.DirEntry) *future.Future[*Listing] {
	js := r.invoker.Promises()
	nodes := make([]*future.Future[Node], len(raw))
	stats := 0

	for i, entry := range raw {
		path := filepath.Join(base, entry.Name)

		switch entry.Type { //nolint:exhaustive
		case backend.TypeDir:
			nodes[i] = future.Resolved(js, Node{Name: entry.Name, Path: path, Kind: KindDirectory})
		case backend.TypeRegular:
			nodes[i] = future.Resolved(js, Node{Name: entry.Name, Path: path, Kind: KindFile})
		default:
			nodes[i] = r.classify(ctx, entry.Name, path, entry.Type == backend.TypeSymlink)
			stats++
		}
	}

	slog.Debug("Resolving listing",
		"base", base,
		"entries", len(raw),
		"stats", stats,
		"policy", r.policy.String(),
	)

	if r.policy == PolicyCollectAll {
		return future.Map(future.AllSettled(js, nodes), func(results []future.Settled[Node]) (*Listing, error) {
			l := newListing(len(results))
			var errs []*EntryError

			for i, res := range results {
				if res.Err != nil {
					errs = append(errs, &EntryError{Name: raw[i].Name, Err: res.Err})

					continue
				}
				l.set(res.Value)
			}

			if len(errs) > 0 {
				return nil, &ListingError{Base: base, Listing: l, Errors: errs}
			}

			return l, nil
		})
	}

	return future.Map(future.All(js, nodes), func(values []Node) (*Listing, error) {
		l := newListing(len(values))
		for _, node := range values {
			l.set(node)
		}

		return l, nil
	})
}

func (r *Resolver) classify(ctx context.Context, name, path string, symlink bool) *future.Future[Node] {
	st := r.invoker.InvokeCall(ctx, backend.OpStat, []any{path}, false)

	return future.Map(st, func(c scheduler.Completion) (Node, error) {
		stat, ok := c.Data.(*unix.Stat_t)
		if !ok {
			return Node{}, fmt.Errorf("(listing) %s: %w: %T", path, ErrUnexpectedData, c.Data)
		}

		kind, err := Classify(path, stat.Mode)
		if err != nil {
			return Node{}, err
		}

		return Node{Name: name, Path: path, Kind: kind, Symlink: symlink}, nil
	})
}

// Classify maps the file type bits of mode to a [Kind].
func Classify(path string, mode uint32) (Kind, error) {
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return KindDirectory, nil
	case unix.S_IFREG:
		return KindFile, nil
	}

	return KindUnknown, &ClassificationError{Path: path, Mode: mode}
}

// Listing is a set of nodes keyed by name that keeps insertion order.
type Listing struct {
	names []string
	nodes map[string]Node
}

func newListing(capacity int) *Listing {
	return &Listing{
		names: make([]string, 0, capacity),
		nodes: make(map[string]Node, capacity),
	}
}

func (l *Listing) set(node Node) {
	if _, exists := l.nodes[node.Name]; !exists {
		l.names = append(l.names, node.Name)
	}
	l.nodes[node.Name] = node
}

func (l *Listing) Len() int {
	return len(l.names)
}

func (l *Listing) Get(name string) (Node, bool) {
	node, ok := l.nodes[name]

	return node, ok
}

// Names returns the entry names in listing order.
func (l *Listing) Names() []string {
	return append([]string(nil), l.names...)
}

// Nodes returns the nodes in listing order.
func (l *Listing) Nodes() []Node {
	nodes := make([]Node, 0, len(l.names))
	for _, name := range l.names {
		nodes = append(nodes, l.nodes[name])
	}

	return nodes
}

// Kinds returns the kind of every entry keyed by name.
func (l *Listing) Kinds() map[string]Kind {
	kinds := make(map[string]Kind, len(l.nodes))
	for name, node := range l.nodes {
		kinds[name] = node.Kind
	}

	return kinds
}
