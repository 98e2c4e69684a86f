package mux

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildArgsOrdersFlagsPerContract(t *testing.T) {
	args := BuildArgs("in.ts", "out.mp4", nil)
	require.Equal(t, []string{
		"-y", "-hide_banner", "-loglevel", "fatal", "-stats", "-i", "in.ts",
		"-c", "copy", "-movflags", "faststart", "out.mp4",
	}, args)
}

func TestBuildArgsInsertsExtraFlagsBeforeCodecFlags(t *testing.T) {
	args := BuildArgs("in.ts", "out.m4a", AudioExtractFlags)
	require.Equal(t, []string{
		"-y", "-hide_banner", "-loglevel", "fatal", "-stats", "-i", "in.ts",
		"-vn",
		"-c", "copy", "-movflags", "faststart", "out.m4a",
	}, args)
}

func TestApplyStatusTokensParsesKeyValuePairs(t *testing.T) {
	status := defaultStatus()
	status = applyStatusTokens(status, "frame=  120 fps= 29.97 q=-1.0 size=    256kB time=00:00:04.00 bitrate= 512.0kbits/s speed=1.01x")
	require.Equal(t, 120, status.Frame)
	require.InDelta(t, 29.97, status.FPS, 0.001)
	require.Equal(t, "256kB", status.Size)
	require.Equal(t, "00:00:04.00", status.Time)
	require.Equal(t, "512.0kbits/s", status.Bitrate)
	require.Equal(t, "1.01x", status.Speed)
}

func TestApplyStatusTokensHandlesBareKeyEqualsForm(t *testing.T) {
	status := applyStatusTokens(defaultStatus(), "frame= 10")
	require.Equal(t, 10, status.Frame)
}
