package utils

import (
	"context"
	"errors"
	"sync"

	"github.com/twmb/murmur3"
	"go.uber.org/zap"

	logger "github.com/Gopher0727/SecretSanta/middleware/log"
)

var ErrPoolStopped = errors.New("worker pool stopped")

// KeyedPool runs jobs on a fixed set of lanes. Every key hashes onto one
// lane and each lane has a single worker, so jobs that share a key run one
// at a time in submission order while different keys proceed in parallel.
type KeyedPool struct {
	lanes  []chan func()
	wg     sync.WaitGroup
	quit   chan struct{}
	once   sync.Once
	logger *logger.Logger
}

// NewKeyedPool creates a pool with laneNum lanes, each buffering up to
// queueSize pending jobs.
func NewKeyedPool(laneNum, queueSize int, log *logger.Logger) *KeyedPool {
	if laneNum <= 0 {
		laneNum = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	lanes := make([]chan func(), laneNum)
	for i := range lanes {
		lanes[i] = make(chan func(), queueSize)
	}
	return &KeyedPool{
		lanes:  lanes,
		quit:   make(chan struct{}),
		logger: log.Named("pool"),
	}
}

func (p *KeyedPool) Start() {
	for i, lane := range p.lanes {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case job := <-lane:
					p.run(i, job)
				case <-p.quit:
					return
				}
			}
		}()
	}
	p.logger.Info("keyed pool started", zap.Int("lanes", len(p.lanes)))
}

// run keeps a panicking job from killing its lane.
func (p *KeyedPool) run(lane int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", zap.Int("lane", lane), zap.Any("panic", r))
		}
	}()
	job()
}

// Lane returns the lane index for key.
func (p *KeyedPool) Lane(key string) int {
	return int(murmur3.Sum32([]byte(key)) % uint32(len(p.lanes)))
}

// enqueue puts job on the lane of key, blocking while the lane is full.
func (p *KeyedPool) enqueue(ctx context.Context, key string, job func()) error {
	select {
	case <-p.quit:
		return ErrPoolStopped
	default:
	}
	select {
	case p.lanes[p.Lane(key)] <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolStopped
	}
}

// Do runs fn on the lane of key and waits for it to finish. If ctx ends
// first the job may still run later; Do returns ctx.Err() without waiting.
func (p *KeyedPool) Do(ctx context.Context, key string, fn func()) error {
	done := make(chan struct{})
	job := func() {
		defer close(done)
		if ctx.Err() != nil {
			return
		}
		fn()
	}
	if err := p.enqueue(ctx, key, job); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolStopped
	}
}

// Stop signals the workers and waits for the jobs in flight. Queued jobs
// that have not started are dropped.
func (p *KeyedPool) Stop() {
	p.once.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}
