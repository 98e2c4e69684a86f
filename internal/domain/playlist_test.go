package domain

import "testing"

func TestSelectPlaylistExactMatch(t *testing.T) {
	playlists := []Playlist{{URL: "A", Mode: 52}, {URL: "B", Mode: 40}}
	p, exact, ok := SelectPlaylist(playlists, TargetMode(Quality3Mbps, LatencyMid))
	if !ok || !exact || p.URL != "A" {
		t.Fatalf("want exact match A, got %+v exact=%v ok=%v", p, exact, ok)
	}
}

func TestSelectPlaylistFallsBackToBestRanked(t *testing.T) {
	playlists := []Playlist{{URL: "A", Mode: 52}, {URL: "B", Mode: 40}}
	p, exact, ok := SelectPlaylist(playlists, TargetMode(Quality3Mbps, LatencyLow))
	if !ok || exact || p.URL != "A" {
		t.Fatalf("want fallback to A, got %+v exact=%v ok=%v", p, exact, ok)
	}
}

func TestSelectPlaylistAudioOnly(t *testing.T) {
	playlists := []Playlist{{URL: "C", Mode: 90}}
	p, exact, ok := SelectPlaylist(playlists, TargetMode(QualitySound, LatencyLow))
	if !ok || !exact || p.URL != "C" {
		t.Fatalf("want exact audio match C, got %+v exact=%v ok=%v", p, exact, ok)
	}
}

func TestSortPlaylistsRanksAudioBelowAllVideo(t *testing.T) {
	playlists := []Playlist{{URL: "audio", Mode: 90}, {URL: "low", Mode: 10}, {URL: "high", Mode: 52}}
	sorted := SortPlaylists(playlists)
	if sorted[0].URL != "high" || sorted[1].URL != "low" || sorted[2].URL != "audio" {
		t.Fatalf("unexpected order: %+v", sorted)
	}
}

func TestSortPlaylistsRanksHighestAudioModeFirst(t *testing.T) {
	playlists := []Playlist{{URL: "audio-low", Mode: 90}, {URL: "audio-mid", Mode: 92}, {URL: "audio-high", Mode: 91}}
	sorted := SortPlaylists(playlists)
	if sorted[0].URL != "audio-mid" || sorted[1].URL != "audio-high" || sorted[2].URL != "audio-low" {
		t.Fatalf("unexpected audio-only order: %+v", sorted)
	}
}

func TestSelectPlaylistFallsBackToBestRankedAudio(t *testing.T) {
	playlists := []Playlist{{URL: "audio-low", Mode: 90}, {URL: "audio-mid", Mode: 92}, {URL: "audio-high", Mode: 91}}
	p, exact, ok := SelectPlaylist(playlists, TargetMode(QualitySound, LatencyHigh))
	if !ok || !exact || p.URL != "audio-high" {
		t.Fatalf("want exact audio match audio-high, got %+v exact=%v ok=%v", p, exact, ok)
	}

	p, exact, ok = SelectPlaylist(playlists, TargetMode(Quality150Kbps, LatencyLow))
	if !ok || exact || p.URL != "audio-mid" {
		t.Fatalf("want fallback to best-ranked audio-mid, got %+v exact=%v ok=%v", p, exact, ok)
	}
}
