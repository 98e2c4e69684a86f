// Package config defines the recognized session options (spec.md §3)
// and their defaults. The CLI flags that populate them are declared in
// cmd/fc2-live-dl.
package config

import (
	"time"

	"github.com/fc2-live-dl/fc2-live-dl-go/internal/domain"
)

// LogLevel is the recognized set of --log-level values.
type LogLevel string

const (
	LogSilent LogLevel = "silent"
	LogError  LogLevel = "error"
	LogWarn   LogLevel = "warn"
	LogInfo   LogLevel = "info"
	LogDebug  LogLevel = "debug"
	LogTrace  LogLevel = "trace"
)

// Session holds every recognized recording option.
type Session struct {
	// Positional.
	URL string

	// Streaming.
	Quality domain.Quality
	Latency domain.Latency
	Threads int

	// Output.
	OutputTemplate    string
	WriteChat         bool
	WriteInfoJSON     bool
	WriteThumbnail    bool
	DumpWebsocket     string // path, empty disables the dump
	Remux             bool
	KeepIntermediates bool
	ExtractAudio      bool

	// Waiting for the channel to go live.
	WaitForLive      bool
	WaitPollInterval time.Duration

	// Auth.
	CookiesFile string

	// Ambient.
	LogLevel    LogLevel
	LogFormat   string
	MetricsAddr string // empty disables the debug/metrics server
}

// Default returns a Session populated with spec.md §3's defaults.
func Default() Session {
	return Session{
		Quality:          domain.Quality3Mbps,
		Latency:          domain.LatencyMid,
		Threads:          1,
		OutputTemplate:   "%(channel_name)s/%(channel_name)s %(date)s %(title)s.%(ext)s",
		Remux:            true,
		WaitPollInterval: 5 * time.Second,
		LogLevel:         LogInfo,
		LogFormat:        "text",
	}
}
