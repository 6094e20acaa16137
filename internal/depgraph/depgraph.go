// Package depgraph builds the package dependency DAG (spec.md §4.2, C4)
// using gonum's directed graph, the same library the teacher's batch
// scheduler (distr1-distri/internal/batch) uses for its own package graph.
package depgraph

import (
	"sort"

	"github.com/butido/butido/internal/condition"
	"github.com/butido/butido/internal/pkgfile"
	"github.com/butido/butido/internal/pkgid"
	"github.com/butido/butido/internal/repository"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// EdgeKind labels a dependency edge as Build or Runtime (spec.md §3, Dag).
type EdgeKind int

const (
	Build EdgeKind = iota
	Runtime
)

func (k EdgeKind) String() string {
	if k == Runtime {
		return "Runtime"
	}
	return "Build"
}

type node struct {
	id  int64
	pkg pkgfile.Package
}

func (n *node) ID() int64 { return n.id }

type edge struct {
	f, t *node
	kind EdgeKind
}

func (e edge) From() graph.Node         { return e.f }
func (e edge) To() graph.Node           { return e.t }
func (e edge) ReversedEdge() graph.Edge { return edge{f: e.t, t: e.f, kind: e.kind} }

// Dag is an acyclic directed graph of packages with Build/Runtime labeled
// edges and a distinguished root (spec.md §3, Dag).
type Dag struct {
	g      *simple.DirectedGraph
	nodes  map[pkgid.ID]*node
	root   *node
}

// Root returns the root package of the DAG.
func (d *Dag) Root() pkgfile.Package { return d.root.pkg }

// Packages returns every package in the DAG (one per node), including the
// root.
func (d *Dag) Packages() []pkgfile.Package {
	out := make([]pkgfile.Package, 0, len(d.nodes))
	for _, n := range d.nodes {
		out = append(out, n.pkg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Edge describes one dependency edge for traversal by consumers (job
// materialization, introspection commands).
type Edge struct {
	From pkgfile.Package
	To   pkgfile.Package
	Kind EdgeKind
}

// DependenciesOf returns the direct dependency edges of pkg (the packages
// pkg depends on, i.e. the edges pkg -> dep).
func (d *Dag) DependenciesOf(id pkgid.ID) []Edge {
	n, ok := d.nodes[id]
	if !ok {
		return nil
	}
	var out []Edge
	it := d.g.From(n.id)
	for it.Next() {
		to := it.Node().(*node)
		e := d.g.Edge(n.id, to.id).(edge)
		out = append(out, Edge{From: n.pkg, To: to.pkg, Kind: e.kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].To.String() < out[j].To.String() })
	return out
}

// Dependents returns the edges of packages that depend on pkg (what_depends).
func (d *Dag) Dependents(id pkgid.ID) []Edge {
	n, ok := d.nodes[id]
	if !ok {
		return nil
	}
	var out []Edge
	it := d.g.To(n.id)
	for it.Next() {
		from := it.Node().(*node)
		e := d.g.Edge(from.id, n.id).(edge)
		out = append(out, Edge{From: from.pkg, To: n.pkg, Kind: e.kind})
	}
	return out
}

// Frontier returns the nodes whose out-edges all point to packages whose
// id is present in done (spec.md §4.3: the set of jobs ready to run).
func (d *Dag) Frontier(done map[pkgid.ID]bool) []pkgfile.Package {
	var out []pkgfile.Package
	for id, n := range d.nodes {
		if done[id] {
			continue
		}
		ready := true
		it := d.g.From(n.id)
		for it.Next() {
			dep := it.Node().(*node)
			if !done[dep.pkg.ID()] {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, n.pkg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Len returns the number of nodes (packages) in the DAG.
func (d *Dag) Len() int { return len(d.nodes) }

// reaches reports whether a path exists from `from` to `to` following
// out-edges, used to reject edges that would close a cycle (I2) before
// they are ever added.
func reaches(g *simple.DirectedGraph, from, to int64) bool {
	if from == to {
		return true
	}
	visited := make(map[int64]bool)
	stack := []int64{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		if cur == to {
			return true
		}
		it := g.From(cur)
		for it.Next() {
			stack = append(stack, it.Node().ID())
		}
	}
	return false
}

// Build expands root into an acyclic graph of {Build, Runtime} edges,
// resolving conditional dependencies against data and system dependencies
// being advertised but never expanded into nodes (spec.md §4.2).
func Build(repo *repository.Repository, root pkgfile.Package, data condition.Data) (*Dag, error) {
	g := simple.NewDirectedGraph()
	d := &Dag{g: g, nodes: make(map[pkgid.ID]*node)}

	var nextID int64
	newNode := func(pkg pkgfile.Package) *node {
		n := &node{id: nextID, pkg: pkg}
		nextID++
		g.AddNode(n)
		d.nodes[pkg.ID()] = n
		return n
	}

	d.root = newNode(root)

	var expand func(pkg pkgfile.Package, path []pkgid.ID) error
	expand = func(pkg pkgfile.Package, path []pkgid.ID) error {
		from := d.nodes[pkg.ID()]

		type wanted struct {
			name pkgid.Name
			c    pkgid.Constraint
			kind EdgeKind
		}
		seen := make(map[pkgid.ID]bool)
		var deps []wanted

		collect := func(list []pkgfile.Dependency, kind EdgeKind) error {
			for _, dep := range list {
				if dep.Gated && !dep.Condition.Matches(data) {
					continue
				}
				name, c, err := dep.NameAndConstraint()
				if err != nil {
					return xerrors.Errorf("package %s: %w", pkg.ID(), err)
				}
				deps = append(deps, wanted{name: name, c: c, kind: kind})
			}
			return nil
		}
		if err := collect(pkg.Build, Build); err != nil {
			return err
		}
		if err := collect(pkg.Runtime, Runtime); err != nil {
			return err
		}

		for _, w := range deps {
			candidates := repo.FindMatching(w.name, w.c)
			if len(candidates) == 0 {
				return xerrors.Errorf("package %s requires %s %s, but no matching package exists (demanded via %s)",
					pkg.ID(), w.name, w.c, demandPath(path, pkg.ID()))
			}
			// deterministic pick: lexicographically greatest version
			// (spec.md §9 open question), FindMatching already sorts
			// ascending by version.
			chosen := candidates[len(candidates)-1]
			chosenID := chosen.ID()

			if seen[chosenID] {
				continue // dedupe by (name, version)
			}
			seen[chosenID] = true

			to, exists := d.nodes[chosenID]
			if !exists {
				to = newNode(chosen)
			}

			if reaches(g, to.id, from.id) {
				return xerrors.Errorf("adding dependency %s -> %s would introduce a cycle", pkg.ID(), chosenID)
			}
			g.SetEdge(edge{f: from, t: to, kind: w.kind})

			if !exists {
				if err := expand(chosen, append(path, pkg.ID())); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := expand(root, nil); err != nil {
		return nil, err
	}
	return d, nil
}

func demandPath(path []pkgid.ID, last pkgid.ID) string {
	s := ""
	for _, p := range path {
		s += p.String() + " -> "
	}
	return s + last.String()
}
