package ecs

import "golang.org/x/sync/errgroup"

// scheduler.go implements the dependency-aware system scheduler (spec.md
// §4.9): systems are registered in a logical sequential order, optionally
// declaring reads/writes component sets, and grouped into a plan of
// parallel-safe batches. Two reference executors walk a Plan: Sequential
// and FanOutWait (spawn-per-system, join at group end), the latter
// grounded on the errgroup-based start/wait pattern used for bounded
// concurrent fan-out in the retrieval pack's solidcoredata-dca executor.

// System is one scheduled unit of work. Reads and Writes declare the
// component sets it touches; a System with both masks empty is treated
// conservatively as conflicting with every other system (spec.md §4.9).
type System struct {
	Name   string
	Reads  Mask
	Writes Mask
	Run    func(*Storage)
}

func (s System) declaresAccess() bool { return s.Reads.Any() || s.Writes.Any() }

// conflicts reports whether s cannot share a group whose accumulated
// access is (groupReads, groupWrites), per spec.md §4.9's three pairwise
// tests (write/write, write/read, read/write).
func conflicts(s System, groupReads, groupWrites Mask) bool {
	if s.Writes.ContainsAny(groupWrites) {
		return true
	}
	if s.Writes.ContainsAny(groupReads) {
		return true
	}
	if s.Reads.ContainsAny(groupWrites) {
		return true
	}
	return false
}

// Group is one parallel-safe batch of systems: every pair in a Group is
// proven not to conflict by read/write set.
type Group struct {
	Systems []System
	reads   Mask
	writes  Mask
	closed  bool
}

// Plan is an ordered sequence of Groups: groups execute in order, systems
// within a group may execute concurrently.
type Plan struct {
	Groups []Group
}

// Scheduler accumulates systems in registration order and derives a Plan.
type Scheduler struct {
	systems []System
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler { return &Scheduler{} }

// Register appends sys to the registration order.
func (s *Scheduler) Register(sys System) { s.systems = append(s.systems, sys) }

// Systems returns the registered systems in registration order.
func (s *Scheduler) Systems() []System { return s.systems }

// Plan derives a parallelization plan per spec.md §4.9: iterate systems in
// registration order; a system joins the currently-open group iff it
// declares some access and conflicts with none of that group's
// accumulated reads/writes. A system declaring no access always starts
// its own closed group of one, and a group opened by such a system never
// accepts later joins — both per spec.md §4.9's explicit rule. Checking
// only the group's accumulated (reads, writes) masks is equivalent to
// checking every still-unscheduled system already in the group
// individually, since the masks are exactly the union of every member
// added so far.
func (s *Scheduler) Plan() Plan {
	var groups []*Group
	for _, sys := range s.systems {
		declared := sys.declaresAccess()
		if declared && len(groups) > 0 {
			g := groups[len(groups)-1]
			if !g.closed && !conflicts(sys, g.reads, g.writes) {
				g.Systems = append(g.Systems, sys)
				g.reads = g.reads.Or(sys.Reads)
				g.writes = g.writes.Or(sys.Writes)
				continue
			}
		}
		groups = append(groups, &Group{
			Systems: []System{sys},
			reads:   sys.Reads,
			writes:  sys.Writes,
			closed:  !declared,
		})
	}
	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = *g
	}
	return Plan{Groups: out}
}

// Executor dispatches a Plan's groups against a Storage. Groups run in
// order; an Executor decides how systems within a group run.
type Executor interface {
	Run(plan Plan, storage *Storage) error
}

// SequentialExecutor runs every system, in every group, one at a time, in
// plan order — the degenerate single-thread reference executor.
type SequentialExecutor struct{}

// Run implements Executor.
func (SequentialExecutor) Run(plan Plan, storage *Storage) error {
	for _, g := range plan.Groups {
		for _, sys := range g.Systems {
			sys.Run(storage)
		}
	}
	return nil
}

// FanOutWaitExecutor spawns one goroutine per system in a group and joins
// before advancing to the next group (spec.md §4.9's fan-out-wait
// reference executor), using errgroup so a future System signature
// returning error propagates the first failure without extra plumbing.
type FanOutWaitExecutor struct{}

// Run implements Executor.
func (FanOutWaitExecutor) Run(plan Plan, storage *Storage) error {
	for _, g := range plan.Groups {
		if len(g.Systems) == 1 {
			g.Systems[0].Run(storage)
			continue
		}
		var eg errgroup.Group
		for _, sys := range g.Systems {
			sys := sys
			eg.Go(func() error {
				sys.Run(storage)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	return nil
}
