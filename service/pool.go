package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	iface "NutBoltDetServer/interface"

	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

type jobPackage struct {
	image  iface.RawImage
	opts   iface.Options
	result chan jobResult
}

type jobResult struct {
	boxes []iface.RawBox
	err   error
}

// Pool runs detections on a fixed set of workers, each owning one detector.
type Pool struct {
	jobs      chan jobPackage
	detectors []iface.Detector
	names     []string
	log       *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool builds workers detectors from factory. If any detector fails to
// load, the ones already built are closed and the error is returned.
func NewPool(factory iface.Factory, workers int, log *zap.Logger) (*Pool, error) {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		jobs: make(chan jobPackage, workers*4),
		log:  log,
	}
	for i := 0; i < workers; i++ {
		det, err := factory()
		if err != nil {
			for _, d := range p.detectors {
				d.Close()
			}
			return nil, fmt.Errorf("create detector %d: %w", i, err)
		}
		p.detectors = append(p.detectors, det)
	}
	p.names = p.detectors[0].Names()
	for i, det := range p.detectors {
		p.wg.Add(1)
		go p.runWorker(i, det)
	}
	return p, nil
}

func (p *Pool) Names() []string {
	return append([]string(nil), p.names...)
}

func (p *Pool) Size() int {
	return len(p.detectors)
}

// Run queues one detection and waits for its result. Waiting for a queue
// slot honours ctx; a job already picked up by a worker runs to completion.
func (p *Pool) Run(ctx context.Context, img iface.RawImage, opts iface.Options) ([]iface.RawBox, error) {
	job := jobPackage{image: img, opts: opts, result: make(chan jobResult, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrPoolClosed
	}
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		p.mu.RUnlock()
		return nil, ctx.Err()
	}
	p.mu.RUnlock()

	res := <-job.result
	return res.boxes, res.err
}

func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	for i, det := range p.detectors {
		if err := det.Close(); err != nil {
			p.log.Warn("error closing detector", zap.Int("worker", i), zap.Error(err))
		}
	}
}

func (p *Pool) runWorker(workerID int, det iface.Detector) {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	p.log.Debug("worker created", zap.Int("worker", workerID))

	for job := range p.jobs {
		start := time.Now()
		boxes, err := safeDetect(det, job)
		if err != nil {
			p.log.Error("worker detection error", zap.Int("worker", workerID), zap.Error(err))
		} else {
			p.log.Debug("worker detection done", zap.Int("worker", workerID),
				zap.Int("boxes", len(boxes)), zap.Duration("took", time.Since(start)))
		}
		job.result <- jobResult{boxes: boxes, err: err}
	}
}

// safeDetect turns a detector panic into an error so the worker survives.
func safeDetect(det iface.Detector, job jobPackage) (boxes []iface.RawBox, err error) {
	defer func() {
		if r := recover(); r != nil {
			boxes = nil
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return det.Detect(job.image, job.opts)
}
