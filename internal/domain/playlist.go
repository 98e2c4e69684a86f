package domain

import "sort"

// Quality is the requested video/audio quality tier.
type Quality string

const (
	Quality150Kbps Quality = "150Kbps"
	Quality400Kbps Quality = "400Kbps"
	Quality1_2Mbps Quality = "1.2Mbps"
	Quality2Mbps   Quality = "2Mbps"
	Quality3Mbps   Quality = "3Mbps"
	QualitySound   Quality = "sound"
)

// Latency is the requested delivery latency tier.
type Latency string

const (
	LatencyLow  Latency = "low"
	LatencyHigh Latency = "high"
	LatencyMid  Latency = "mid"
)

// qualityTens maps a Quality to the tens digit group of a playlist mode.
var qualityTens = map[Quality]int{
	Quality150Kbps: 10,
	Quality400Kbps: 20,
	Quality1_2Mbps: 30,
	Quality2Mbps:   40,
	Quality3Mbps:   50,
	QualitySound:   90,
}

// latencyOnes maps a Latency to the ones digit of a playlist mode.
var latencyOnes = map[Latency]int{
	LatencyLow:  0,
	LatencyHigh: 1,
	LatencyMid:  2,
}

// TargetMode returns the mode an implementation should look for given a
// requested (quality, latency) pair.
func TargetMode(q Quality, l Latency) int {
	return qualityTens[q] + latencyOnes[l]
}

// IsAudioOnly reports whether q selects the audio-only "sound" stream;
// the orchestrator muxes such sessions to m4a instead of mp4.
func (q Quality) IsAudioOnly() bool {
	return q == QualitySound
}

// Playlist is one entry of an HLS information payload.
type Playlist struct {
	URL  string
	Mode int
}

// qualityKey ranks a mode for "best available" selection: anything
// mode >= 90 (audio) sorts below every video mode regardless of its
// numeric value, but higher mode still wins within that audio group,
// same as it does among video modes (I6).
func qualityKey(mode int) int {
	if mode >= 90 {
		return mode - 90
	}
	return mode
}

// SortPlaylists orders entries best-first: non-audio modes above
// mode==90 audio entries, then by descending mode (I6). The sort is
// stable so equal-key entries keep their original relative order.
func SortPlaylists(playlists []Playlist) []Playlist {
	sorted := make([]Playlist, len(playlists))
	copy(sorted, playlists)
	sort.SliceStable(sorted, func(i, j int) bool {
		return qualityKey(sorted[i].Mode) > qualityKey(sorted[j].Mode)
	})
	return sorted
}

// SelectPlaylist picks the playlist matching the requested mode
// exactly, falling back to the best-ranked entry when there is no
// exact match. The first bool reports whether the match was exact;
// callers log a warning when it is false (I5). The second bool is
// false only when playlists is empty.
func SelectPlaylist(playlists []Playlist, targetMode int) (Playlist, bool, bool) {
	if len(playlists) == 0 {
		return Playlist{}, false, false
	}
	sorted := SortPlaylists(playlists)
	for _, p := range sorted {
		if p.Mode == targetMode {
			return p, true, true
		}
	}
	return sorted[0], false, true
}
