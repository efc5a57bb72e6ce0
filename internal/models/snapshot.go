/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

// Snapshot is an immutable, ordered view of every player at one point in time.
type Snapshot struct {
	Players []MediaPlayer `json:"players"`
}

// Player looks a player up by entity id.
func (s Snapshot) Player(id string) (MediaPlayer, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return MediaPlayer{}, false
}

// Group is a set of players currently joined at the hub. It is derived from
// a Snapshot and never stored.
type Group struct {
	// ID is the coordinator reported by the hub, or the first entity of the
	// group in snapshot order when no member reports one.
	ID string `json:"id"`
	// EntityIDs holds ID first, then the other entities in snapshot order.
	EntityIDs []string `json:"entity_ids"`
	Playing   bool     `json:"playing"`
}

// Members returns the group's entities other than ID.
func (g Group) Members() []string {
	if len(g.EntityIDs) < 2 {
		return nil
	}
	return g.EntityIDs[1:]
}

// Contains reports whether id belongs to the group.
func (g Group) Contains(id string) bool {
	for _, e := range g.EntityIDs {
		if e == id {
			return true
		}
	}
	return false
}

// Groups computes the connected components of the membership graph.
// Membership is treated as symmetric, so a relation reported by only one side
// still joins both players. Components of a single player are not groups.
// Member ids missing from the snapshot still join the component; they are
// appended after the known players.
func (s Snapshot) Groups() []Group {
	index := make(map[string]int, len(s.Players))
	for i, p := range s.Players {
		index[p.ID] = i
	}

	parent := make(map[string]string)
	var find func(string) string
	find = func(id string) string {
		if _, ok := parent[id]; !ok {
			parent[id] = id
		}
		for parent[id] != id {
			parent[id] = parent[parent[id]]
			id = parent[id]
		}
		return id
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	var unknown []string
	for _, p := range s.Players {
		find(p.ID)
		for _, m := range p.Members {
			if m == p.ID {
				continue
			}
			if _, known := index[m]; !known {
				if _, seen := parent[m]; !seen {
					unknown = append(unknown, m)
				}
			}
			union(p.ID, m)
		}
	}

	order := make([]string, 0, len(s.Players)+len(unknown))
	for _, p := range s.Players {
		order = append(order, p.ID)
	}
	order = append(order, unknown...)

	byRoot := make(map[string]*Group)
	var roots []string
	for _, id := range order {
		root := find(id)
		g, ok := byRoot[root]
		if !ok {
			g = &Group{ID: id}
			byRoot[root] = g
			roots = append(roots, root)
		}
		g.EntityIDs = append(g.EntityIDs, id)
		if i, known := index[id]; known && s.Players[i].IsPlaying() {
			g.Playing = true
		}
	}

	groups := make([]Group, 0, len(roots))
	for _, root := range roots {
		g := byRoot[root]
		if len(g.EntityIDs) < 2 {
			continue
		}
		if c := s.coordinatorOf(*g); c != "" && c != g.ID {
			g.lead(c)
		}
		groups = append(groups, *g)
	}
	return groups
}

// coordinatorOf returns the first coordinator reported by a member of g that
// is itself part of g.
func (s Snapshot) coordinatorOf(g Group) string {
	for _, id := range g.EntityIDs {
		p, ok := s.Player(id)
		if ok && p.Coordinator != "" && g.Contains(p.Coordinator) {
			return p.Coordinator
		}
	}
	return ""
}

// lead moves id to the front of the group and makes it the group's ID.
func (g *Group) lead(id string) {
	ids := make([]string, 0, len(g.EntityIDs))
	ids = append(ids, id)
	for _, e := range g.EntityIDs {
		if e != id {
			ids = append(ids, e)
		}
	}
	g.ID = id
	g.EntityIDs = ids
}

// GroupOf returns the group containing id, if id is joined with anyone.
func (s Snapshot) GroupOf(id string) (Group, bool) {
	for _, g := range s.Groups() {
		if g.Contains(id) {
			return g, true
		}
	}
	return Group{}, false
}
