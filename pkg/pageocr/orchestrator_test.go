package pageocr

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/gardar/ocrreflow/pkg/ocr"
)

type countFunc func(path string) (int, error)

func (f countFunc) PageCount(path string) (int, error) { return f(path) }

type rasterFunc func(ctx context.Context, path string, pageIndex, dpi int) ([]byte, error)

func (f rasterFunc) Rasterize(ctx context.Context, path string, pageIndex, dpi int) ([]byte, error) {
	return f(ctx, path, pageIndex, dpi)
}

func pages(n int) countFunc {
	return func(string) (int, error) { return n, nil }
}

// pageImage encodes the page index as the image so the fake engine can echo
// it back.
func pageImage(_ context.Context, _ string, pageIndex, _ int) ([]byte, error) {
	return []byte(strconv.Itoa(pageIndex)), nil
}

type fakeEngine struct {
	closed *atomic.Int32
	calls  *atomic.Int32
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Recognize(_ context.Context, image []byte, language string) (string, error) {
	e.calls.Add(1)
	if string(image) == "panic" {
		panic("engine crashed")
	}
	time.Sleep(time.Duration(rand.IntN(3)) * time.Millisecond)
	return fmt.Sprintf("text %s (%s)", image, language), nil
}

func (e *fakeEngine) Close() error {
	e.closed.Add(1)
	return nil
}

type engineStats struct {
	created atomic.Int32
	closed  atomic.Int32
	calls   atomic.Int32
}

func (s *engineStats) factory(context.Context, string) (ocr.Engine, error) {
	s.created.Add(1)
	return &fakeEngine{closed: &s.closed, calls: &s.calls}, nil
}

func TestRunReassemblesPagesInOrder(t *testing.T) {
	var stats engineStats
	o := New(pages(25), rasterFunc(pageImage), stats.factory, arbor.NewLogger(), Options{Workers: 4})

	doc, err := o.Run(context.Background(), Job{Path: "/tmp/book.pdf", Language: "eng", DPI: 300})
	require.NoError(t, err)
	require.Len(t, doc.Pages, 25)

	for i, p := range doc.Pages {
		assert.Equal(t, i, p.PageIndex)
		assert.Equal(t, fmt.Sprintf("text %d (eng)", i), p.Text)
		assert.False(t, p.Failed())
	}
	assert.Empty(t, doc.FailedPages())
	assert.Equal(t, int32(25), stats.calls.Load())
	assert.Equal(t, stats.created.Load(), stats.closed.Load())
}

func TestCollectOrdersShuffledResults(t *testing.T) {
	o := New(pages(0), rasterFunc(pageImage), (&engineStats{}).factory, arbor.NewLogger(), Options{})

	const total = 6
	results := make(chan Result, total+2)
	for _, i := range rand.Perm(total) {
		results <- Result{PageIndex: i, Text: fmt.Sprintf("page %d", i)}
	}
	results <- Result{PageIndex: total + 3, Text: "out of range"}
	results <- Result{PageIndex: 2, Text: "duplicate"}
	close(results)

	var progress []int
	slots := o.collect("doc.pdf", results, total, func(p Progress) {
		progress = append(progress, p.Page)
	})

	require.Len(t, slots, total)
	for i, r := range slots {
		assert.Equal(t, fmt.Sprintf("page %d", i), r.Text)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, progress)
}

func TestCollectFillsMissingSlots(t *testing.T) {
	o := New(pages(0), rasterFunc(pageImage), (&engineStats{}).factory, arbor.NewLogger(), Options{})

	results := make(chan Result, 1)
	results <- Result{PageIndex: 1, Text: "second"}
	close(results)

	slots := o.collect("doc.pdf", results, 3, func(Progress) {})
	require.Len(t, slots, 3)
	assert.Equal(t, "second", slots[1].Text)
	assert.ErrorIs(t, slots[0].Err, ErrNotProcessed)
	assert.ErrorIs(t, slots[2].Err, ErrNotProcessed)
	assert.Equal(t, "[OCR error for page 3: page was not processed]", slots[2].Text)
}

func TestRunEmptyDocumentDispatchesNothing(t *testing.T) {
	var stats engineStats
	var rasterized atomic.Int32
	raster := rasterFunc(func(ctx context.Context, path string, i, dpi int) ([]byte, error) {
		rasterized.Add(1)
		return pageImage(ctx, path, i, dpi)
	})
	o := New(pages(0), raster, stats.factory, arbor.NewLogger(), Options{})

	started := -1
	doc, err := o.Run(context.Background(), Job{Path: "empty.pdf", Started: func(n int) { started = n }})
	require.NoError(t, err)

	assert.Equal(t, 0, started)
	assert.Equal(t, 0, doc.PageCount)
	assert.Empty(t, doc.Pages)
	assert.Equal(t, EmptyDocumentMarker+"\n\n", doc.Text())
	assert.Zero(t, rasterized.Load())
	assert.Zero(t, stats.created.Load())
}

func TestRunPageCountError(t *testing.T) {
	var stats engineStats
	counter := countFunc(func(string) (int, error) { return 0, errors.New("not a PDF") })
	o := New(counter, rasterFunc(pageImage), stats.factory, arbor.NewLogger(), Options{})

	started := false
	doc, err := o.Run(context.Background(), Job{Path: "/data/broken.pdf", Started: func(int) { started = true }})
	assert.Nil(t, doc)
	require.ErrorIs(t, err, ErrPageCount)
	assert.Contains(t, err.Error(), "broken.pdf")
	assert.Contains(t, err.Error(), "not a PDF")
	assert.False(t, started)
	assert.Zero(t, stats.created.Load())
}

func TestRunEngineNotFoundPlaceholders(t *testing.T) {
	factory := func(context.Context, string) (ocr.Engine, error) {
		return nil, fmt.Errorf("%w: /missing/tesseract", ocr.ErrEngineNotFound)
	}
	o := New(pages(3), rasterFunc(pageImage), factory, arbor.NewLogger(), Options{Workers: 2})

	doc, err := o.Run(context.Background(), Job{Path: "scan.pdf"})
	require.NoError(t, err)
	require.Len(t, doc.Pages, 3)
	for i, p := range doc.Pages {
		assert.Equal(t, fmt.Sprintf("[OCR engine not found for page %d]", i+1), p.Text)
		assert.ErrorIs(t, p.Err, ocr.ErrEngineNotFound)
	}
	assert.Equal(t, []int{1, 2, 3}, doc.FailedPages())
	assert.Equal(t,
		"[OCR engine not found for page 1]\n\n[OCR engine not found for page 2]\n\n[OCR engine not found for page 3]",
		doc.Text())
}

func TestRunPageFailuresDoNotAbortSiblings(t *testing.T) {
	var stats engineStats
	raster := rasterFunc(func(ctx context.Context, path string, i, dpi int) ([]byte, error) {
		switch i {
		case 1:
			return nil, errors.New("bad page")
		case 3:
			return []byte("panic"), nil
		}
		return pageImage(ctx, path, i, dpi)
	})
	o := New(pages(5), raster, stats.factory, arbor.NewLogger(), Options{Workers: 3})

	doc, err := o.Run(context.Background(), Job{Path: "mixed.pdf", Language: "tur"})
	require.NoError(t, err)

	assert.Equal(t, "text 0 (tur)", doc.Pages[0].Text)
	assert.Equal(t, "[OCR error for page 2: bad page]", doc.Pages[1].Text)
	assert.Equal(t, "text 2 (tur)", doc.Pages[2].Text)
	assert.ErrorIs(t, doc.Pages[3].Err, ocr.ErrRecognition)
	assert.Contains(t, doc.Pages[3].Text, "[OCR error for page 4:")
	assert.Equal(t, "text 4 (tur)", doc.Pages[4].Text)
	assert.Equal(t, []int{2, 4}, doc.FailedPages())
}

func TestRunRecyclesEngines(t *testing.T) {
	var stats engineStats
	o := New(pages(5), rasterFunc(pageImage), stats.factory, arbor.NewLogger(), Options{
		Workers:           1,
		MaxTasksPerWorker: 2,
	})

	_, err := o.Run(context.Background(), Job{Path: "five.pdf"})
	require.NoError(t, err)

	assert.Equal(t, int32(3), stats.created.Load())
	assert.Equal(t, int32(3), stats.closed.Load())
	assert.Equal(t, int32(5), stats.calls.Load())
}

func TestRunPassesEngineCommandToFactory(t *testing.T) {
	var seen atomic.Value
	factory := func(_ context.Context, command string) (ocr.Engine, error) {
		seen.Store(command)
		return (&engineStats{}).factory(context.Background(), command)
	}
	o := New(pages(1), rasterFunc(pageImage), factory, arbor.NewLogger(), Options{EngineCommand: "/opt/bin/tesseract"})

	_, err := o.Run(context.Background(), Job{Path: "one.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "/opt/bin/tesseract", seen.Load())
}

func TestRunReportsMonotonicProgress(t *testing.T) {
	var stats engineStats
	o := New(pages(12), rasterFunc(pageImage), stats.factory, arbor.NewLogger(), Options{Workers: 4})

	var got []Progress
	_, err := o.Run(context.Background(), Job{
		Path:     "/scans/report.pdf",
		Progress: func(p Progress) { got = append(got, p) },
	})
	require.NoError(t, err)

	require.Len(t, got, 12)
	for i, p := range got {
		assert.Equal(t, i+1, p.Page)
		assert.Equal(t, 12, p.Total)
		assert.Equal(t, "report.pdf", p.Document)
	}
}

func TestRunCancelledContextFillsEverySlot(t *testing.T) {
	var stats engineStats
	o := New(pages(4), rasterFunc(pageImage), stats.factory, arbor.NewLogger(), Options{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc, err := o.Run(ctx, Job{Path: "cancelled.pdf"})
	require.NoError(t, err)
	require.Len(t, doc.Pages, 4)
	for _, p := range doc.Pages {
		assert.ErrorIs(t, p.Err, ErrNotProcessed)
	}
	assert.Zero(t, stats.created.Load())
}

func TestNewDefaults(t *testing.T) {
	o := New(pages(0), rasterFunc(pageImage), (&engineStats{}).factory, arbor.NewLogger(), Options{})
	assert.Equal(t, DefaultWorkers(), o.Workers())
	assert.Equal(t, DefaultMaxTasksPerWorker, o.MaxTasksPerWorker())
	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
	assert.LessOrEqual(t, DefaultWorkers(), MaxWorkers)
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "[OCR engine not found for page 1]",
		Placeholder(0, fmt.Errorf("%w: tesseract", ocr.ErrEngineNotFound)))
	assert.Equal(t, "[OCR error for page 3: boom]", Placeholder(2, errors.New("boom")))
}

func TestOpenFailureText(t *testing.T) {
	assert.Equal(t, "[Could not open document or read page count: no such file]\n\n",
		OpenFailureText(errors.New("no such file")))
}
