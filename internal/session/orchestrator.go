// Package session is the Session Orchestrator (C6): it drives one
// recording end-to-end, composing the API client, control WebSocket,
// HLS downloader, and muxer as a supervised task group with
// first-exit cancellation (spec.md §4.6).
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fc2-live-dl/fc2-live-dl-go/internal/config"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/cookiejar"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/domain"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/fc2api"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/fc2ws"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/history"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/hls"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/metrics"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/mux"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/outtmpl"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/tsvalidate"
)

// Config wires an Orchestrator's collaborators.
type Config struct {
	Session    config.Session
	Logger     *slog.Logger
	Jar        *cookiejar.Jar
	History    *history.Store // optional
	HTTPClient *http.Client   // optional
	FFmpegPath string         // defaults to "ffmpeg"
}

// Orchestrator drives one recording (C6).
type Orchestrator struct {
	cfg        config.Session
	log        *slog.Logger
	jar        *cookiejar.Jar
	historyDB  *history.Store
	httpClient *http.Client
	ffmpegPath string
}

// New builds an Orchestrator for a single recording session.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
		if cfg.Jar != nil {
			httpClient.Jar = cfg.Jar
		}
	}
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Orchestrator{
		cfg:        cfg.Session,
		log:        logger,
		jar:        cfg.Jar,
		historyDB:  cfg.History,
		httpClient: httpClient,
		ffmpegPath: ffmpegPath,
	}
}

// taskResult is which supervised task finished, and how.
type taskResult struct {
	name string
	err  error
}

// Run executes one recording session end-to-end (spec.md §4.6).
func (o *Orchestrator) Run(ctx context.Context) error {
	channelID, err := channelIDFromURL(o.cfg.URL)
	if err != nil {
		return fmt.Errorf("parse channel url: %w", err)
	}

	api := fc2api.New(fc2api.Config{ChannelID: channelID, HTTPClient: o.httpClient, Logger: o.log})

	meta, err := api.GetMeta(ctx, true)
	if err != nil {
		return fmt.Errorf("fetch channel metadata: %w", err)
	}
	if !meta.IsPublish {
		if !o.cfg.WaitForLive {
			return domain.ErrNotOnline
		}
		o.log.InfoContext(ctx, "channel is offline, waiting for it to go live")
		if err := api.WaitForOnline(ctx, o.cfg.WaitPollInterval); err != nil {
			return fmt.Errorf("wait for live: %w", err)
		}
		if meta, err = api.GetMeta(ctx, true); err != nil {
			return fmt.Errorf("refresh channel metadata: %w", err)
		}
	}

	muxedExt := "mp4"
	if o.cfg.Quality.IsAudioOnly() {
		muxedExt = "m4a"
	}
	fields := outtmpl.Fields{
		ChannelID:   meta.ChannelID,
		ChannelName: meta.ChannelName,
		Title:       meta.Title,
		Now:         time.Now(),
	}
	streamPath, err := outtmpl.Prepare(o.cfg.OutputTemplate, withExt(fields, "ts"))
	if err != nil {
		return fmt.Errorf("prepare stream output path: %w", err)
	}
	muxedPath := strings.TrimSuffix(streamPath, filepath.Ext(streamPath)) + "." + muxedExt

	var recordingID int64
	if o.historyDB != nil {
		if id, err := o.historyDB.Begin(ctx, meta.ChannelID, meta.ChannelName, meta.Title, streamPath); err == nil {
			recordingID = id
		}
	}

	metrics.RecordingsStartedTotal.Inc()
	metrics.RecordingsActive.Inc()
	defer metrics.RecordingsActive.Dec()

	if o.cfg.WriteInfoJSON {
		if err := o.writeInfoJSON(ctx, meta, withExt(fields, "info.json")); err != nil {
			o.log.WarnContext(ctx, "failed to write info json", "error", err)
		}
	}
	if o.cfg.WriteThumbnail && meta.ThumbnailURL != "" {
		if err := o.downloadThumbnail(ctx, meta.ThumbnailURL, withExt(fields, "jpg")); err != nil {
			o.log.WarnContext(ctx, "failed to download thumbnail", "error", err)
		}
	}

	wsURL, err := api.GetWebsocketURL(ctx, o.jar)
	if err != nil {
		return fmt.Errorf("negotiate websocket url: %w", err)
	}

	channel, err := fc2ws.Dial(ctx, wsURL, o.cfg.DumpWebsocket, o.log)
	if err != nil {
		return fmt.Errorf("open control websocket: %w", err)
	}
	defer channel.Close()

	hlsInfo, err := channel.GetHLSInformation(ctx)
	if err != nil {
		return fmt.Errorf("request hls information: %w", err)
	}
	targetMode := domain.TargetMode(o.cfg.Quality, o.cfg.Latency)
	selected, exact, found := domain.SelectPlaylist(hlsInfo.Merged(), targetMode)
	if !found {
		return domain.ErrEmptyPlaylist
	}
	if !exact {
		o.log.WarnContext(ctx, "no exact playlist match, falling back to best available", "target_mode", targetMode, "selected_mode", selected.Mode)
	}

	// runCtx is the task group's own cancelable context: the downloader
	// must run under it (not the outer ctx, which outlives any single
	// sibling task) so that whichever of {wait_disconnection, stream
	// writer, chat writer} finishes first also stops the poller and
	// fetch workers, instead of leaving them running forever against an
	// now-abandoned consumer.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	downloader := hls.New(hls.Config{PlaylistURL: selected.URL, Threads: o.cfg.Threads, Logger: o.log})
	downloader.Start(runCtx)
	defer downloader.Close()

	streamFile, err := os.OpenFile(streamPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open stream output file: %w", err)
	}
	defer streamFile.Close()

	var chatFile *os.File
	if o.cfg.WriteChat {
		chatPath := strings.TrimSuffix(streamPath, filepath.Ext(streamPath)) + ".chat.jsonl"
		chatFile, err = os.OpenFile(chatPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			o.log.WarnContext(ctx, "failed to open chat file, chat will not be recorded", "error", err)
		} else {
			defer chatFile.Close()
		}
	}

	result := o.runTaskGroup(runCtx, cancelRun, channel, downloader, streamFile, chatFile)

	outcome := history.OutcomeCompleted
	switch {
	case result.name == "wait_disconnection" && result.err != nil:
		var disconnect *domain.DisconnectionError
		switch {
		case errors.As(result.err, &disconnect):
			o.log.InfoContext(ctx, "control websocket disconnected", "kind", disconnect.Kind, "code", disconnect.Code)
			metrics.WebsocketDisconnectsTotal.WithLabelValues(disconnect.Kind.String()).Inc()
			outcome = history.OutcomeDisconnected
		case errors.Is(result.err, context.Canceled):
			o.log.InfoContext(ctx, "interrupted")
			outcome = history.OutcomeInterrupted
		default:
			o.finishHistory(recordingID, history.OutcomeFailed, "")
			return fmt.Errorf("control websocket: %w", result.err)
		}
	case result.err != nil && !errors.Is(result.err, context.Canceled):
		o.finishHistory(recordingID, history.OutcomeFailed, "")
		return fmt.Errorf("%s: %w", result.name, result.err)
	}

	streamFile.Close()

	finalMuxedPath := ""
	if info, statErr := os.Stat(streamPath); statErr == nil && info.Size() > 0 && o.cfg.Remux {
		if err := o.remux(ctx, streamPath, muxedPath); err != nil {
			o.log.ErrorContext(ctx, "remux failed", "error", err)
			metrics.RemuxFailuresTotal.Inc()
		} else {
			finalMuxedPath = muxedPath
			if o.cfg.ExtractAudio && muxedExt != "m4a" {
				audioPath := strings.TrimSuffix(streamPath, filepath.Ext(streamPath)) + ".m4a"
				if err := o.remuxWithFlags(ctx, streamPath, audioPath, mux.AudioExtractFlags); err != nil {
					o.log.WarnContext(ctx, "audio extraction failed", "error", err)
				}
			}
			if !o.cfg.KeepIntermediates {
				if _, err := os.Stat(muxedPath); err == nil {
					_ = os.Remove(streamPath)
				}
			}
		}
	}

	o.finishHistory(recordingID, outcome, finalMuxedPath)
	return nil
}

func (o *Orchestrator) finishHistory(id int64, outcome history.Outcome, muxedPath string) {
	if o.historyDB == nil || id == 0 {
		return
	}
	if err := o.historyDB.Finish(context.Background(), id, outcome, muxedPath); err != nil {
		o.log.Warn("failed to record history outcome", "error", err)
	}
}

// runTaskGroup runs T1 (wait_disconnection), T2 (stream writer), and
// T3 (chat writer, if enabled) concurrently under runCtx — the same
// context the downloader was started with, so cancel also stops its
// poller and fetch workers. The first task to finish cancels the
// others; their exit is awaited before returning.
func (o *Orchestrator) runTaskGroup(runCtx context.Context, cancel context.CancelFunc, channel *fc2ws.Channel, downloader *hls.Downloader, streamFile *os.File, chatFile *os.File) taskResult {
	var (
		wg    sync.WaitGroup
		once  sync.Once
		first taskResult
	)
	finish := func(r taskResult) {
		once.Do(func() { first = r })
		cancel()
	}
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			finish(taskResult{name: name, err: fn(runCtx)})
		}()
	}

	spawn("wait_disconnection", channel.WaitDisconnection)
	spawn("stream_writer", func(ctx context.Context) error {
		return o.writeStream(ctx, downloader, streamFile)
	})
	if chatFile != nil {
		spawn("chat_writer", func(ctx context.Context) error {
			return o.writeChat(ctx, channel, chatFile)
		})
	}

	wg.Wait()
	return first
}

// writeStream consumes the HLS downloader's byte stream in order,
// appending each fragment to streamFile (spec.md §4.6 T2). Each
// fragment is sync-byte-validated before it is written; a malformed
// fragment is logged and still written, since the alternative (skip
// it) would shift every later sequence in the file.
func (o *Orchestrator) writeStream(ctx context.Context, downloader *hls.Downloader, streamFile *os.File) error {
	var fragments, bytesWritten int64
	start := time.Now()
	for {
		data, err := downloader.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(data) > 0 {
			if err := tsvalidate.Validate(data); err != nil {
				o.log.WarnContext(ctx, "fragment failed ts validation, writing anyway", "error", err)
			}
			if _, err := streamFile.Write(data); err != nil {
				return fmt.Errorf("write stream fragment: %w", err)
			}
			bytesWritten += int64(len(data))
			metrics.BytesWrittenTotal.Add(float64(len(data)))
			metrics.FragmentsDownloadedTotal.Inc()
		}
		fragments++
		if fragments%50 == 0 {
			elapsed := time.Since(start).Seconds()
			if elapsed > 0 {
				metrics.DownloadSpeedBytesPerSecond.Set(float64(bytesWritten) / elapsed)
			}
			size, unit := float64(bytesWritten), 0
			units := []string{"B", "KiB", "MiB", "GiB", "TiB"}
			for size >= 1024 && unit < len(units)-1 {
				size /= 1024
				unit++
			}
			o.log.InfoContext(ctx, "recording progress", "fragments", fragments, "bytes", bytesWritten, "size", fmt.Sprintf("%.1f %s", size, units[unit]))
		}
	}
}

// writeChat consumes the control channel's comment stream and appends
// each one as a JSON line (spec.md §4.6 T3).
func (o *Orchestrator) writeChat(ctx context.Context, channel *fc2ws.Channel, chatFile *os.File) error {
	for {
		select {
		case comment, ok := <-channel.Comments():
			if !ok {
				return nil
			}
			if _, err := chatFile.Write(append(comment, '\n')); err != nil {
				return fmt.Errorf("write chat line: %w", err)
			}
			metrics.CommentsReceivedTotal.Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (o *Orchestrator) writeInfoJSON(ctx context.Context, meta fc2api.Metadata, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (o *Orchestrator) downloadThumbnail(ctx context.Context, thumbnailURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbnailURL, nil)
	if err != nil {
		return err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode > 299 {
		return fmt.Errorf("thumbnail request: HTTP %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	buf := make([]byte, 1024)
	_, err = io.CopyBuffer(out, resp.Body, buf)
	return err
}

func (o *Orchestrator) remux(ctx context.Context, input, output string) error {
	return o.remuxWithFlags(ctx, input, output, nil)
}

func (o *Orchestrator) remuxWithFlags(ctx context.Context, input, output string, extraFlags []string) error {
	start := time.Now()
	proc := mux.New(ctx, o.ffmpegPath, mux.BuildArgs(input, output, extraFlags), func(s mux.Status) {
		o.log.DebugContext(ctx, "encoder progress", "frame", s.Frame, "time", s.Time, "speed", s.Speed)
	})
	if err := proc.Start(); err != nil {
		return err
	}
	err := proc.Wait()
	metrics.RemuxDuration.Observe(time.Since(start).Seconds())
	return err
}

// withExt returns a copy of f with Ext set, since the stream, info json
// and thumbnail artifacts each format the same template with a
// different extension token. The chat and muxed paths are derived from
// the prepared stream path instead.
func withExt(f outtmpl.Fields, ext string) outtmpl.Fields {
	f.Ext = ext
	return f
}

// channelIDFromURL extracts the channel id: the path segment
// immediately after live.fc2.com/ (spec.md §6).
func channelIDFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	seg := strings.Trim(u.Path, "/")
	if seg == "" {
		return "", fmt.Errorf("no channel id in url %q", raw)
	}
	parts := strings.Split(seg, "/")
	return parts[0], nil
}
