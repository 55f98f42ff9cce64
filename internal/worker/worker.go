package worker

import (
	"context"
	"log"
	"time"

	"github.com/reminisce-app/reminisce/internal/pipeline"
	"github.com/reminisce-app/reminisce/internal/queue"
)

// Worker binds the render queue to the pipeline: it dequeues jobs and executes
// one run per job under a bounded duration. The trigger endpoint has already
// claimed the project (status flipped to processing), so the worker only ever
// sees jobs whose single-flight guard passed.
type Worker struct {
	queue      *queue.Queue
	pipeline   *pipeline.Pipeline
	runTimeout time.Duration
}

func New(q *queue.Queue, p *pipeline.Pipeline, runTimeout time.Duration) *Worker {
	return &Worker{
		queue:      q,
		pipeline:   p,
		runTimeout: runTimeout,
	}
}

// Start runs the dequeue loops until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("[Worker] Started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx)
	}

	<-ctx.Done()
	log.Println("[Worker] Shutting down...")
}

func (w *Worker) processQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[Worker] Error dequeuing: %v", err)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			log.Printf("[Worker] Processing job %s (project: %s)", job.ID, job.ProjectID)

			runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
			err = w.pipeline.Run(runCtx, job.ProjectID)
			cancel()

			if err != nil {
				log.Printf("[Worker] Job %s failed: %v", job.ID, err)
			} else {
				log.Printf("[Worker] Job %s completed", job.ID)
			}
		}
	}
}
