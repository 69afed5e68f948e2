// Package router implements the client-side routing table (spec.md §4.7):
// per-database reader/writer/router address sets with a TTL, refreshed via
// a single-flight call to whatever ROUTE implementation the caller plugs
// in, with round-robin server selection and address forgetting on routing
// failures.
package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Role selects which address set a caller wants a server for.
type Role int

const (
	RoleReader Role = iota
	RoleWriter
	RoleRouter
)

// Table is one database's current routing information.
type Table struct {
	Readers []string
	Writers []string
	Routers []string
	TTL     time.Duration
	fetched time.Time
}

func (t *Table) expired() bool {
	return time.Since(t.fetched) >= t.TTL
}

func (t *Table) addresses(role Role) []string {
	switch role {
	case RoleReader:
		return t.Readers
	case RoleWriter:
		return t.Writers
	default:
		return t.Routers
	}
}

// Refresher fetches a fresh Table for database by issuing ROUTE against a
// currently-known router address. Callers supply this; router has no
// transport dependency of its own.
type Refresher func(ctx context.Context, database string, knownRouters []string) (*Table, error)

// ErrNoRouters is returned when a database has no known router address to
// refresh against.
var ErrNoRouters = errors.New("router: no known router addresses")

// ErrNoServers is returned when Select finds no candidate address for the
// requested role.
var ErrNoServers = errors.New("router: no servers available for role")

type entry struct {
	mu        sync.Mutex
	table     *Table
	readerIdx int
	writerIdx int
	routerIdx int
}

// RoutingTable owns one entry per database name and coalesces concurrent
// refreshes of the same database via singleflight, the idiomatic fit for
// "a second caller that finds a refresh already in progress awaits its
// result" (spec.md §4.7).
type RoutingTable struct {
	refresh Refresher

	mu      sync.Mutex
	byDB    map[string]*entry
	flights singleflight.Group
}

// New builds a RoutingTable backed by refresh.
func New(refresh Refresher) *RoutingTable {
	return &RoutingTable{refresh: refresh, byDB: make(map[string]*entry)}
}

func (rt *RoutingTable) entryFor(database string) *entry {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	e, ok := rt.byDB[database]
	if !ok {
		e = &entry{}
		rt.byDB[database] = e
	}
	return e
}

// ensureFresh refreshes the table for database if it is missing or expired,
// or if role's address set is empty, de-duplicating concurrent callers for
// the same database.
func (rt *RoutingTable) ensureFresh(ctx context.Context, database string, role Role) (*Table, error) {
	e := rt.entryFor(database)

	e.mu.Lock()
	if e.table != nil && !e.table.expired() && len(e.table.addresses(role)) > 0 {
		t := e.table
		e.mu.Unlock()
		return t, nil
	}
	var known []string
	if e.table != nil {
		known = e.table.Routers
	}
	e.mu.Unlock()

	v, err, _ := rt.flights.Do(database, func() (any, error) {
		return rt.refresh(ctx, database, known)
	})
	if err != nil {
		return nil, err
	}
	table := v.(*Table)
	table.fetched = time.Now()

	e.mu.Lock()
	e.table = table
	e.readerIdx, e.writerIdx, e.routerIdx = 0, 0, 0
	e.mu.Unlock()
	return table, nil
}

// Select returns the next address for role against database, refreshing
// the table first if it is missing, expired, or empty for role, and
// round-robins across the candidate set on successive calls. If the set is
// still empty after that refresh (e.g. a concurrent ForgetWriter/ForgetAll
// emptied it again), Select refreshes and retries exactly once more before
// giving up.
func (rt *RoutingTable) Select(ctx context.Context, database string, role Role) (string, error) {
	table, err := rt.ensureFresh(ctx, database, role)
	if err != nil {
		return "", err
	}
	addr, err := rt.selectFrom(database, role, table)
	if err != ErrNoServers {
		return addr, err
	}

	table, err = rt.ensureFresh(ctx, database, role)
	if err != nil {
		return "", err
	}
	return rt.selectFrom(database, role, table)
}

func (rt *RoutingTable) selectFrom(database string, role Role, table *Table) (string, error) {
	e := rt.entryFor(database)
	e.mu.Lock()
	defer e.mu.Unlock()

	addrs := table.addresses(role)
	if len(addrs) == 0 {
		return "", ErrNoServers
	}
	var idx *int
	switch role {
	case RoleReader:
		idx = &e.readerIdx
	case RoleWriter:
		idx = &e.writerIdx
	default:
		idx = &e.routerIdx
	}
	addr := addrs[*idx%len(addrs)]
	*idx = (*idx + 1) % len(addrs)
	return addr, nil
}

// ForgetWriter removes address from just database's writers set, per
// spec.md §4.7's handling of a NotALeader / ForbiddenOnReadOnlyDatabase
// response: the address may still be a perfectly good reader or router, so
// only its writer eligibility is dropped. The address is removed
// immediately rather than waited out, and the next Select for RoleWriter
// (finding the set empty) triggers a fresh ROUTE.
func (rt *RoutingTable) ForgetWriter(database, address string) {
	e := rt.entryFor(database)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.table == nil {
		return
	}
	e.table.Writers = remove(e.table.Writers, address)
}

// ForgetAll removes address from every role of database's table, per
// spec.md §4.7's handling of a Neo.TransientError.General.DatabaseUnavailable
// response: the server is unreachable for any role, not just writing, so
// readers, writers, and routers all drop it immediately. The next Select
// (finding its set empty) or explicit Invalidate triggers a fresh ROUTE.
func (rt *RoutingTable) ForgetAll(database, address string) {
	e := rt.entryFor(database)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.table == nil {
		return
	}
	e.table.Readers = remove(e.table.Readers, address)
	e.table.Writers = remove(e.table.Writers, address)
	e.table.Routers = remove(e.table.Routers, address)
}

// Invalidate forces the next Select for database to refresh, regardless of
// TTL.
func (rt *RoutingTable) Invalidate(database string) {
	e := rt.entryFor(database)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.table != nil {
		e.table.fetched = time.Time{}
	}
}

func remove(addrs []string, target string) []string {
	out := addrs[:0]
	for _, a := range addrs {
		if a != target {
			out = append(out, a)
		}
	}
	return out
}
