// Package pageocr runs OCR over every page of a document in parallel and
// reassembles the page texts in page order.
//
// The Orchestrator fans the pages of one document out to a bounded pool of
// worker goroutines. Tasks go to the workers and results come back as plain
// values over channels; workers share no mutable state. Each worker owns its
// own OCR engine and replaces it after a fixed number of pages so native
// engine state cannot grow without bound.
//
// Results arrive in any order and are written into a slot addressed by page
// index. A page that cannot be rasterized or recognized degrades to a
// placeholder text; it never aborts the other pages or the document.
package pageocr

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/gardar/ocrreflow/pkg/ocr"
	"github.com/gardar/ocrreflow/pkg/raster"
)

var (
	// ErrPageCount is returned when the page count of a document cannot be
	// discovered. No page is dispatched in that case.
	ErrPageCount = errors.New("could not read page count")

	// ErrNotProcessed marks a page that never produced a result, for example
	// because the run was cancelled before the page was dispatched.
	ErrNotProcessed = errors.New("page was not processed")
)

const (
	// MaxWorkers caps the pool size regardless of CPU count.
	MaxWorkers = 8

	// DefaultMaxTasksPerWorker is the number of pages an engine instance
	// handles before the worker replaces it.
	DefaultMaxTasksPerWorker = 10
)

// DefaultWorkers returns min(NumCPU, MaxWorkers), at least 1.
func DefaultWorkers() int {
	return max(1, min(runtime.NumCPU(), MaxWorkers))
}

// Progress is reported after every completed page. Page counts completed
// pages, not page indexes, so it increases by one with every report.
type Progress struct {
	Document string
	Page     int
	Total    int
}

// Job describes one document run.
type Job struct {
	Path     string
	Language string
	DPI      int

	// Started is called once the page count is known, before any page is
	// dispatched. It is not called when the document cannot be opened.
	Started func(pages int)

	// Progress is called from the collecting goroutine after every page.
	Progress func(Progress)
}

// Options configures an Orchestrator.
type Options struct {
	Workers           int    // Pool size; zero means DefaultWorkers()
	MaxTasksPerWorker int    // Engine recycling threshold; zero means DefaultMaxTasksPerWorker
	EngineCommand     string // Copied into every task
}

// Orchestrator runs page OCR for one document at a time.
type Orchestrator struct {
	counter    raster.PageCounter
	rasterizer raster.Rasterizer
	factory    ocr.Factory
	command    string
	workers    int
	maxTasks   int
	logger     arbor.ILogger
}

// New creates an Orchestrator.
func New(
	counter raster.PageCounter,
	rasterizer raster.Rasterizer,
	factory ocr.Factory,
	logger arbor.ILogger,
	opts Options,
) *Orchestrator {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	maxTasks := opts.MaxTasksPerWorker
	if maxTasks <= 0 {
		maxTasks = DefaultMaxTasksPerWorker
	}
	return &Orchestrator{
		counter:    counter,
		rasterizer: rasterizer,
		factory:    factory,
		command:    opts.EngineCommand,
		workers:    workers,
		maxTasks:   maxTasks,
		logger:     logger,
	}
}

// Workers returns the configured pool size.
func (o *Orchestrator) Workers() int { return o.workers }

// MaxTasksPerWorker returns the engine recycling threshold.
func (o *Orchestrator) MaxTasksPerWorker() int { return o.maxTasks }

// Run discovers the page count of job.Path, recognizes every page and
// returns the reassembled document. The only error is a wrapped
// ErrPageCount; per-page failures are reported through the page results.
func (o *Orchestrator) Run(ctx context.Context, job Job) (*Document, error) {
	name := filepath.Base(job.Path)

	count, err := o.counter.PageCount(job.Path)
	if err != nil {
		o.logger.Error().Err(err).Str("document", name).Msg("Could not open PDF or read page count")
		return nil, fmt.Errorf("%w: %s: %w", ErrPageCount, name, err)
	}

	doc := &Document{Path: job.Path, PageCount: count}
	if job.Started != nil {
		job.Started(count)
	}
	if count == 0 {
		o.logger.Info().Str("document", name).Msg("PDF is empty or has no pages")
		return doc, nil
	}

	tasks := make([]Task, count)
	for i := range tasks {
		tasks[i] = Task{
			DocumentPath:  job.Path,
			PageIndex:     i,
			Language:      job.Language,
			DPI:           job.DPI,
			EngineCommand: o.command,
		}
	}

	o.logger.Info().
		Str("document", name).
		Int("pages", count).
		Int("workers", min(o.workers, count)).
		Int("max_tasks_per_worker", o.maxTasks).
		Msg("Starting OCR")

	doc.Pages = o.dispatch(ctx, tasks, func(p Progress) {
		if job.Progress != nil {
			job.Progress(p)
		}
	})

	if failedPages := doc.FailedPages(); len(failedPages) > 0 {
		o.logger.Warn().
			Str("document", name).
			Int("failed_pages", len(failedPages)).
			Msg("Some pages degraded to placeholders")
	}
	return doc, nil
}

// dispatch runs tasks on the worker pool and returns one result per task,
// ordered by page index.
func (o *Orchestrator) dispatch(ctx context.Context, tasks []Task, progress func(Progress)) []Result {
	taskCh := make(chan Task)
	resultCh := make(chan Result, len(tasks))

	var g errgroup.Group
	for id := 0; id < min(o.workers, len(tasks)); id++ {
		g.Go(func() error {
			o.work(ctx, id, taskCh, resultCh)
			return nil
		})
	}

	go func() {
		defer close(taskCh)
		for _, t := range tasks {
			select {
			case taskCh <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = g.Wait()
		close(resultCh)
	}()

	return o.collect(filepath.Base(tasks[0].DocumentPath), resultCh, len(tasks), progress)
}

// collect drains results into index-addressed slots. It is the only writer
// of the slot slice. Slots still empty when the channel closes are filled
// with an ErrNotProcessed placeholder.
func (o *Orchestrator) collect(name string, results <-chan Result, total int, progress func(Progress)) []Result {
	slots := make([]Result, total)
	filled := make([]bool, total)
	done := 0

	for r := range results {
		if r.PageIndex < 0 || r.PageIndex >= total {
			o.logger.Warn().
				Str("document", name).
				Int("page_index", r.PageIndex).
				Msg("Invalid page number returned from OCR result")
			continue
		}
		if filled[r.PageIndex] {
			o.logger.Warn().
				Str("document", name).
				Int("page", r.PageIndex+1).
				Msg("Duplicate OCR result ignored")
			continue
		}
		slots[r.PageIndex] = r
		filled[r.PageIndex] = true
		done++

		o.logger.Debug().
			Str("document", name).
			Int("page", done).
			Int("total", total).
			Msg("Page complete")
		progress(Progress{Document: name, Page: done, Total: total})
	}

	for i := range slots {
		if !filled[i] {
			slots[i] = failed(i, ErrNotProcessed)
		}
	}
	return slots
}

// work is the worker loop. The engine is created lazily and replaced after
// maxTasks pages.
func (o *Orchestrator) work(ctx context.Context, id int, tasks <-chan Task, results chan<- Result) {
	var engine ocr.Engine
	used := 0
	defer func() {
		o.closeEngine(id, engine)
	}()

	for task := range tasks {
		if err := ctx.Err(); err != nil {
			results <- failed(task.PageIndex, fmt.Errorf("%w: %w", ErrNotProcessed, err))
			continue
		}

		if engine != nil && used >= o.maxTasks {
			o.logger.Debug().
				Int("worker_id", id).
				Int("tasks", used).
				Msg("Recycling OCR engine")
			o.closeEngine(id, engine)
			engine, used = nil, 0
		}

		if engine == nil {
			e, err := o.factory(ctx, task.EngineCommand)
			if err != nil {
				o.logPageFailure(task, err)
				results <- failed(task.PageIndex, err)
				continue
			}
			engine = e
		}

		used++
		results <- o.execute(ctx, engine, task)
	}
}

// execute rasterizes and recognizes one page. Every failure, including a
// panic inside the engine, becomes a placeholder result.
func (o *Orchestrator) execute(ctx context.Context, engine ocr.Engine, task Task) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: panic: %v", ocr.ErrRecognition, r)
			o.logPageFailure(task, err)
			res = failed(task.PageIndex, err)
		}
	}()

	img, err := o.rasterizer.Rasterize(ctx, task.DocumentPath, task.PageIndex, task.DPI)
	if err != nil {
		o.logPageFailure(task, err)
		return failed(task.PageIndex, err)
	}

	text, err := engine.Recognize(ctx, img, task.Language)
	if err != nil {
		o.logPageFailure(task, err)
		return failed(task.PageIndex, err)
	}
	return Result{PageIndex: task.PageIndex, Text: text}
}

func (o *Orchestrator) closeEngine(id int, engine ocr.Engine) {
	if engine == nil {
		return
	}
	if err := engine.Close(); err != nil {
		o.logger.Warn().Err(err).Int("worker_id", id).Str("engine", engine.Name()).Msg("Failed to close OCR engine")
	}
}

func (o *Orchestrator) logPageFailure(task Task, err error) {
	msg := "OCR error"
	if errors.Is(err, ocr.ErrEngineNotFound) {
		msg = "OCR engine not found in worker"
	}
	o.logger.Warn().
		Err(err).
		Str("document", filepath.Base(task.DocumentPath)).
		Int("page", task.PageNumber()).
		Str("command", task.EngineCommand).
		Msg(msg)
}
