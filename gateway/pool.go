package gateway

import "sync"

// taskPool runs request handlers, at most max at a time when max > 0.
// Go blocks while the pool is full, which pushes back on the accept loop.
type taskPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func newTaskPool(max int) *taskPool {
	p := &taskPool{}
	if max > 0 {
		p.sem = make(chan struct{}, max)
	}
	return p
}

func (p *taskPool) Go(fn func()) {
	if p.sem != nil {
		p.sem <- struct{}{}
	}
	p.wg.Add(1)
	go func() {
		defer func() {
			if p.sem != nil {
				<-p.sem
			}
			p.wg.Done()
		}()
		fn()
	}()
}

// Wait blocks until every started task returned
func (p *taskPool) Wait() {
	p.wg.Wait()
}
