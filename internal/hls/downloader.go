// Package hls is the HLS Downloader (C2): polls the media playlist,
// dispatches concurrent fragment fetches through the Ordered Fragment
// Pipeline (C1, internal/fragment), and hands the consumer byte frames
// back in strict source order.
package hls

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fc2-live-dl/fc2-live-dl-go/internal/domain"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/fragment"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/metrics"
)

// queueSamplePeriod is how often Start's queue-depth sampler updates
// the fragment_queue_depth gauge.
const queueSamplePeriod = 2 * time.Second

const (
	pollInterval       = 1 * time.Second
	liveEndGrace       = 30 * time.Second
	maxFetchAttempts   = 5
	mismatchRetryDelay = 100 * time.Millisecond
)

// Config configures a Downloader. HTTPClient and Limiter default when
// nil; Limiter throttles fetch workers, an addition beyond the source
// behavior to avoid hammering the media edge under many threads.
type Config struct {
	PlaylistURL string
	Threads     int
	HTTPClient  *http.Client
	Limiter     *rate.Limiter
	Logger      *slog.Logger
}

// Downloader is the HLS Downloader (C2).
type Downloader struct {
	playlistURL string
	threads     int
	http        *http.Client
	limiter     *rate.Limiter
	log         *slog.Logger

	urlQueue  *fragment.Queue
	dataQueue *fragment.Queue

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	fetchWG sync.WaitGroup

	expected int64
}

// New builds a Downloader. Call Start before Next.
func New(cfg Config) *Downloader {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threads := cfg.Threads
	if threads < 1 {
		threads = 1
	}
	return &Downloader{
		playlistURL: cfg.PlaylistURL,
		threads:     threads,
		http:        httpClient,
		limiter:     limiter,
		log:         logger,
		urlQueue:    fragment.NewQueue(),
		dataQueue:   fragment.NewQueue(),
	}
}

// Start launches the playlist poller and the fetch worker pool against
// parent — callers that need the downloader to stop when a sibling
// task ends must pass that task group's own cancelable context here,
// not an outer context that outlives it. It returns immediately;
// fragments begin flowing to Next as they arrive.
func (d *Downloader) Start(parent context.Context) {
	d.ctx, d.cancel = context.WithCancel(parent)

	d.wg.Add(1)
	go d.poll()

	d.fetchWG.Add(d.threads)
	for i := 0; i < d.threads; i++ {
		d.wg.Add(1)
		go d.fetchWorker()
	}

	// Once every fetch worker has exited (because the url queue was
	// closed by poll ending, or by an explicit Close), the data queue
	// has no more producers: close it so a consumer blocked in Next's
	// Pop is released instead of waiting forever.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.fetchWG.Wait()
		d.dataQueue.Close()
	}()

	d.wg.Add(1)
	go d.sampleQueueDepth()
}

// sampleQueueDepth periodically reports both queues' depths until ctx
// is cancelled, for the fragment_queue_depth gauge.
func (d *Downloader) sampleQueueDepth() {
	defer d.wg.Done()
	ticker := time.NewTicker(queueSamplePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			metrics.FragmentQueueDepth.WithLabelValues("url").Set(float64(d.urlQueue.Len()))
			metrics.FragmentQueueDepth.WithLabelValues("data").Set(float64(d.dataQueue.Len()))
		}
	}
}

// Next returns the next fragment's bytes in strict sequence order,
// blocking until it is available. It returns io.EOF once the stream
// has ended (poller termination, not re-raised as an error — spec.md
// §4.3). ctx is checked only while Next waits to retry an out-of-order
// entry, where cancellation returns ctx.Err(); a Next blocked on an
// empty data queue returns only when the queue is closed (the
// downloader's context ends, or Close is called).
func (d *Downloader) Next(ctx context.Context) ([]byte, error) {
	for {
		f, ok := d.dataQueue.Pop()
		if !ok {
			return nil, io.EOF
		}
		if f.Sequence == d.expected {
			d.expected++
			return f.Data, nil
		}
		d.dataQueue.Push(f)
		select {
		case <-time.After(mismatchRetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close cancels in-flight requests and unblocks every queue waiter,
// then waits for the poller and all fetch workers to exit.
func (d *Downloader) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	d.urlQueue.Close()
	d.dataQueue.Close()
	d.wg.Wait()
}

// poll is the single playlist-polling task (spec.md §4.3 steps 1-5).
func (d *Downloader) poll() {
	defer d.wg.Done()
	defer d.urlQueue.Close()

	var (
		lastURL      string
		seq          int64
		lastNewFetch = time.Now()
	)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		}

		lines, status, err := d.fetchPlaylist()
		if err != nil {
			if err == domain.ErrStreamFinished {
				d.log.InfoContext(d.ctx, "playlist returned 403, stream finished")
				return
			}
			d.log.ErrorContext(d.ctx, "playlist poll failed, ending session", "error", err, "status", status)
			return
		}

		newLines := newFragmentURLs(lines, lastURL)
		if len(newLines) == 0 {
			if time.Since(lastNewFetch) >= liveEndGrace {
				d.log.InfoContext(d.ctx, "no new fragments for 30s, stream finished")
				return
			}
			continue
		}

		for _, u := range newLines {
			if !d.urlQueue.Push(fragment.Fragment{Sequence: seq, URL: u}) {
				return
			}
			seq++
		}
		lastURL = newLines[len(newLines)-1]
		lastNewFetch = time.Now()
	}
}

// newFragmentURLs returns the entries of lines strictly after lastURL.
// On the first poll (lastURL == "") every entry is new. If lastURL has
// rolled out of the playlist's advertising window, every currently
// advertised entry is treated as new rather than silently stalling.
func newFragmentURLs(lines []string, lastURL string) []string {
	if lastURL == "" {
		return lines
	}
	for i, u := range lines {
		if u == lastURL {
			return lines[i+1:]
		}
	}
	return lines
}

// fetchPlaylist GETs the playlist URL and returns the ordered,
// non-comment, non-empty lines. HTTP 403 is reported as
// domain.ErrStreamFinished.
func (d *Downloader) fetchPlaylist() ([]string, int, error) {
	req, err := http.NewRequestWithContext(d.ctx, http.MethodGet, d.playlistURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return nil, resp.StatusCode, domain.ErrStreamFinished
	}
	if resp.StatusCode > 299 {
		return nil, resp.StatusCode, fmt.Errorf("playlist HTTP %d", resp.StatusCode)
	}

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, resp.StatusCode, err
	}
	return lines, resp.StatusCode, nil
}

// fetchWorker repeatedly dequeues the lowest-sequence fragment and
// fetches it, applying the retry/give-up policy of spec.md §4.3. A
// transport-level error (as distinct from an HTTP status failure) is
// logged and the fragment is substituted with an empty payload rather
// than dropped, so a single flaky request cannot deadlock the
// consumer on a sequence gap that will never be filled (resolving the
// design's open question in favor of liveness over the
// at-most-one-delivery guarantee it otherwise describes).
func (d *Downloader) fetchWorker() {
	defer d.wg.Done()
	defer d.fetchWG.Done()
	for {
		f, ok := d.urlQueue.Pop()
		if !ok {
			return
		}

		if err := d.limiter.Wait(d.ctx); err != nil {
			return
		}

		body, status, err := d.fetchFragment(f.URL)
		if err != nil {
			d.log.WarnContext(d.ctx, "fragment transport error, substituting empty payload", "sequence", f.Sequence, "error", err)
			if !d.dataQueue.Push(fragment.Fragment{Sequence: f.Sequence, URL: f.URL}) {
				return
			}
			continue
		}

		if status <= 299 {
			if !d.dataQueue.Push(fragment.Fragment{Sequence: f.Sequence, URL: f.URL, Data: body}) {
				return
			}
			continue
		}

		if f.Attempts < maxFetchAttempts {
			f.Attempts++
			metrics.FragmentsRetriedTotal.Inc()
			if !d.urlQueue.Push(f) {
				return
			}
			continue
		}

		metrics.FragmentsFailedTotal.Inc()
		d.log.WarnContext(d.ctx, "fragment retries exhausted, substituting empty payload", "sequence", f.Sequence, "status", status)
		if !d.dataQueue.Push(fragment.Fragment{Sequence: f.Sequence, URL: f.URL}) {
			return
		}
	}
}

func (d *Downloader) fetchFragment(url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(d.ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
