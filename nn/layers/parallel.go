package layers

import (
	"resnet_lib/envconfig"

	"golang.org/x/sync/errgroup"
)

// forEachBatch runs fn for every batch index, at most envconfig.NumThreads at a time.
func forEachBatch(n int, fn func(b int) error) error {
	if n == 1 {
		return fn(0)
	}
	var g errgroup.Group
	g.SetLimit(max(envconfig.NumThreads, 1))
	for b := 0; b < n; b++ {
		b := b
		g.Go(func() error {
			return fn(b)
		})
	}
	return g.Wait()
}
