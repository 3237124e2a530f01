// Profiling:
// go build ./profile/entities
// go tool pprof -http=":8000" -nodefraction=0.001 ./entities mem.pprof

package main

import (
	"github.com/hiveframe/ecs"
	"github.com/pkg/profile"
)

type comp1 struct {
	V int64
	W int64
}

type comp2 struct {
	V int64
	W int64
}

func main() {
	count := 50
	iters := 10000
	entities := 1000
	p := profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
	run(count, iters, entities)
	p.Stop()
}

func run(rounds, iters, numEntities int) {
	for range rounds {
		registry := ecs.NewRegistry()
		comp1ID := ecs.MustRegisterComponent[comp1](registry)
		comp2ID := ecs.MustRegisterComponent[comp2](registry)

		storage := ecs.NewStorage(registry, ecs.DefaultConfig())
		query := ecs.NewQuery().Require(comp1ID, comp2ID)

		for range iters {
			created, _ := storage.CreateEntities(numEntities)
			ecs.AddComponents(storage, created, comp1ID, comp1{})
			ecs.AddComponents(storage, created, comp2ID, comp2{})

			view := ecs.NewView(storage, query)
			var toRemove []ecs.Entity
			for it := view.Iter(); it.Next(); {
				toRemove = append(toRemove, it.Entity())
				c1 := ecs.Get[comp1](it, comp1ID)
				c2 := ecs.Get[comp2](it, comp2ID)
				c1.V += c2.V
				c1.W += c2.W
			}
			storage.DestroyEntities(toRemove)
			storage.CleanupEmptyArchetypes(ecs.CleanupOptions{})
		}
	}
}
