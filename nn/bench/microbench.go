package bench

import (
	"fmt"
	"sync"
	"time"

	"resnet_lib/nn"
	"resnet_lib/tensor"
)

// TimeLayer runs m.Forward numRuns times on x and returns the mean duration
// together with the output of the last run.
func TimeLayer(m nn.Module, x *tensor.Tensor, numRuns int) (time.Duration, *tensor.Tensor, error) {
	if numRuns < 1 {
		numRuns = 1
	}
	var fwdSum time.Duration
	var out *tensor.Tensor
	for i := 0; i < numRuns; i++ {
		start := time.Now()
		y, err := m.Forward(x)
		fwdSum += time.Since(start)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: %w", m.Tag(), err)
		}
		out = y
	}
	return fwdSum / time.Duration(numRuns), out, nil
}

// TimeLayerParallel runs numIters forward passes of m on x spread over
// nWorkers goroutines and returns the mean latency of a single pass.
func TimeLayerParallel(m nn.Module, x *tensor.Tensor, numIters, nWorkers int) (time.Duration, error) {
	if numIters < 1 {
		numIters = 1
	}
	nWorkers = max(min(nWorkers, numIters), 1)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		total    time.Duration
		firstErr error
	)
	wg.Add(nWorkers)
	for w := 0; w < nWorkers; w++ {
		iters := numIters / nWorkers
		if w < numIters%nWorkers {
			iters++
		}
		go func() {
			defer wg.Done()
			var local time.Duration
			for j := 0; j < iters; j++ {
				start := time.Now()
				_, err := m.Forward(x)
				local += time.Since(start)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("%s: %w", m.Tag(), err)
					}
					mu.Unlock()
					return
				}
			}
			mu.Lock()
			total += local
			mu.Unlock()
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return 0, firstErr
	}
	return total / time.Duration(numIters), nil
}
