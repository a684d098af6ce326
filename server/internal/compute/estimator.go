package compute

import "sync"

// Estimator keeps one exponentially weighted arrival rate per checkpoint.
//
// All exported methods are safe for concurrent use.
type Estimator struct {
	alpha float64

	mu     sync.Mutex
	values map[string]float64
}

// NewEstimator returns an Estimator with smoothing factor alpha. Callers are
// expected to pass alpha in (0, 1); config validation enforces it.
func NewEstimator(alpha float64) *Estimator {
	return &Estimator{alpha: alpha, values: make(map[string]float64)}
}

// Alpha returns the smoothing factor.
func (e *Estimator) Alpha() float64 { return e.alpha }

// Update folds observation x into the checkpoint's estimate and returns the
// new value. The first observation for a checkpoint is returned as is.
func (e *Estimator) Update(cp string, x float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev, ok := e.values[cp]
	if !ok {
		e.values[cp] = x
		return x
	}
	v := e.alpha*x + (1-e.alpha)*prev
	e.values[cp] = v
	return v
}
