package nn

import "golang.org/x/exp/rand"

// Walk visits m and every module below it depth-first. Returning false from
// fn skips the children of the visited module.
func Walk(m Module, fn func(Module) bool) {
	if !fn(m) {
		return
	}
	if c, ok := m.(Container); ok {
		for _, child := range c.Children() {
			Walk(child, fn)
		}
	}
}

// Count returns the number of modules of type T at or below m.
func Count[T Module](m Module) int {
	n := 0
	Walk(m, func(x Module) bool {
		if _, ok := x.(T); ok {
			n++
		}
		return true
	})
	return n
}

// NumParams returns the total number of scalar parameters in m.
func NumParams(m Module) int {
	n := 0
	for _, p := range m.Params() {
		n += p.Value.Len()
	}
	return n
}

// SetTraining switches every module that distinguishes training from
// evaluation (batch normalization) into the requested mode.
func SetTraining(m Module, training bool) {
	Walk(m, func(x Module) bool {
		if t, ok := x.(interface{ SetTraining(bool) }); ok {
			t.SetTraining(training)
		}
		return true
	})
}

// Initialize resets the parameters of every module that has an
// initialization rule, drawing random values from src.
func Initialize(m Module, src rand.Source) {
	Walk(m, func(x Module) bool {
		if r, ok := x.(interface{ Reset(rand.Source) }); ok {
			r.Reset(src)
		}
		return true
	})
}
