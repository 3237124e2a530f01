// Profiling:
// go build ./profile/query
// go tool pprof -http=":8000" -nodefraction=0.001 ./query mem.prof

package main

import (
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/hiveframe/ecs"
)

type comp1 struct {
	V int64
	W int64
}

type comp2 struct {
	V int64
	W int64
}

type comp3 struct {
	V int64
	W int64
}

type comp4 struct {
	V int64
	W int64
}

type comp5 struct {
	V int64
	W int64
}

type comp6 struct {
	V int64
	W int64
}

func main() {
	// CPU Profiling
	f, _ := os.Create("cpu.prof")
	_ = pprof.StartCPUProfile(f)
	defer pprof.StopCPUProfile()

	count := 50
	iters := 10000
	entities := 100000
	run(count, iters, entities)

	// Memory Profiling
	memFile, _ := os.Create("mem.prof")
	defer memFile.Close()
	runtime.GC() // Trigger garbage collection
	_ = pprof.WriteHeapProfile(memFile)
}

func run(rounds, iters, numEntities int) {
	for range rounds {
		registry := ecs.NewRegistry()
		c1 := ecs.MustRegisterComponent[comp1](registry)
		c2 := ecs.MustRegisterComponent[comp2](registry)
		c3 := ecs.MustRegisterComponent[comp3](registry)
		c4 := ecs.MustRegisterComponent[comp4](registry)
		c5 := ecs.MustRegisterComponent[comp5](registry)
		c6 := ecs.MustRegisterComponent[comp6](registry)

		storage := ecs.NewStorage(registry, ecs.DefaultConfig())
		created, _ := storage.CreateEntities(numEntities)
		ecs.AddComponents(storage, created, c1, comp1{})
		ecs.AddComponents(storage, created, c2, comp2{})
		ecs.AddComponents(storage, created, c3, comp3{})
		ecs.AddComponents(storage, created, c4, comp4{})
		ecs.AddComponents(storage, created, c5, comp5{})
		ecs.AddComponents(storage, created, c6, comp6{})

		query := ecs.NewQuery().Require(c1, c2, c3, c4, c5, c6)

		for range iters {
			view := ecs.NewView(storage, query)
			for it := view.Iter(); it.Next(); {
				comp1, comp2 := ecs.Get[comp1](it, c1), ecs.Get[comp2](it, c2)
				comp1.V += comp2.V
				comp1.W += comp2.W
			}
		}
	}
}
