package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fc2-live-dl/fc2-live-dl-go/internal/outtmpl"
)

func exampleFields() outtmpl.Fields {
	return outtmpl.Fields{ChannelID: "chan1", ChannelName: "someone", Title: "hello", Now: time.Now()}
}

func TestChannelIDFromURL(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "simple", url: "https://live.fc2.com/12345/", want: "12345"},
		{name: "trailing path", url: "https://live.fc2.com/12345/foo", want: "12345"},
		{name: "no path", url: "https://live.fc2.com/", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := channelIDFromURL(tc.url)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestWithExtOverridesOnlyExt(t *testing.T) {
	base := withExt(exampleFields(), "ts")
	require.Equal(t, "ts", base.Ext)
	require.Equal(t, "chan1", base.ChannelID)

	thumb := withExt(exampleFields(), "jpg")
	require.Equal(t, "jpg", thumb.Ext)
}
