// Package paralle runs bounded batches of independent work.
package paralle

import (
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Par runs functions on at most max goroutines and collects their errors.
type Par struct {
	slots chan struct{}
	group sync.WaitGroup

	lk   sync.Mutex
	errs *multierror.Error
}

// NewPar returns a pool of max slots. Values below one select runtime.NumCPU().
func NewPar(max int) *Par {
	if max < 1 {
		max = runtime.NumCPU()
	}
	return &Par{slots: make(chan struct{}, max)}
}

// Go blocks until a slot is free, then runs f on its own goroutine.
func (p *Par) Go(f func() error) {
	p.group.Add(1)
	p.slots <- struct{}{}

	go func() {
		defer func() {
			<-p.slots
			p.group.Done()
		}()

		if err := f(); err != nil {
			p.lk.Lock()
			p.errs = multierror.Append(p.errs, err)
			p.lk.Unlock()
		}
	}()
}

// Wait blocks until every function has returned. The result aggregates all
// failures, or is nil.
func (p *Par) Wait() error {
	p.group.Wait()

	p.lk.Lock()
	defer p.lk.Unlock()
	return p.errs.ErrorOrNil()
}
