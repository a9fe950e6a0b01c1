// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hlsengine

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestParsePlaylist_Master(t *testing.T) {
	body := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360,CODECS="avc1.4d401e,mp4a.40.2"
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2400000
https://cdn.example/high.m3u8
`
	pl, err := ParsePlaylist([]byte(body), mustURL(t, "http://media.local:8888/cam7/index.m3u8"))
	require.NoError(t, err)
	assert.True(t, pl.Master)
	require.Len(t, pl.Variants, 2)
	assert.Equal(t, Variant{URI: "http://media.local:8888/cam7/low/index.m3u8", Bandwidth: 800000}, pl.Variants[0])
	assert.Equal(t, Variant{URI: "https://cdn.example/high.m3u8", Bandwidth: 2400000}, pl.Variants[1])
}

func TestParsePlaylist_LiveMedia(t *testing.T) {
	body := `#EXTM3U
#EXT-X-TARGETDURATION:2
#EXT-X-MEDIA-SEQUENCE:41
#EXTINF:2.000,
seg41.ts
#EXTINF:2.000,
seg42.ts
#EXT-X-PROGRAM-DATE-TIME:2025-01-01T10:00:04Z
#EXTINF:1.500,
seg43.ts
`
	pl, err := ParsePlaylist([]byte(body), mustURL(t, "http://h/cam1/index.m3u8"))
	require.NoError(t, err)
	assert.False(t, pl.Master)
	assert.False(t, pl.Ended)
	assert.Equal(t, 2*time.Second, pl.TargetDuration)
	assert.Equal(t, uint64(41), pl.MediaSequence)
	require.Len(t, pl.Segments, 3)
	assert.Equal(t, SegmentRef{Sequence: 43, URI: "http://h/cam1/seg43.ts", Duration: 1500 * time.Millisecond}, pl.Segments[2])
	assert.Equal(t, uint64(44), pl.LastSequence())
}

func TestParsePlaylist_VOD(t *testing.T) {
	for _, body := range []string{
		"#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXTINF:4,\na.ts\n#EXT-X-ENDLIST\n",
		"#EXTM3U\n#EXT-X-PLAYLIST-TYPE:VOD\n#EXT-X-TARGETDURATION:4\n#EXTINF:4,\na.ts\n",
	} {
		pl, err := ParsePlaylist([]byte(body), nil)
		require.NoError(t, err)
		assert.True(t, pl.Ended)
	}
}

func TestParsePlaylist_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{name: "html", body: "<html>nope</html>"},
		{name: "bad extinf", body: "#EXTM3U\n#EXT-X-TARGETDURATION:2\n#EXTINF:abc,\na.ts\n"},
		{name: "segment without extinf", body: "#EXTM3U\n#EXT-X-TARGETDURATION:2\na.ts\n"},
		{name: "missing target duration", body: "#EXTM3U\n#EXTINF:2,\na.ts\n"},
		{name: "bad sequence", body: "#EXTM3U\n#EXT-X-MEDIA-SEQUENCE:-1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlaylist([]byte(tt.body), nil)
			assert.Error(t, err)
		})
	}
}

func TestPlaylist_LiveEdge(t *testing.T) {
	pl := &Playlist{MediaSequence: 10}
	for i := 0; i < 5; i++ {
		pl.Segments = append(pl.Segments, SegmentRef{Sequence: uint64(10 + i), Duration: time.Second})
	}

	assert.Equal(t, uint64(12), pl.LiveEdge(3*time.Second))
	assert.Equal(t, uint64(14), pl.LiveEdge(time.Millisecond))
	assert.Equal(t, uint64(10), pl.LiveEdge(time.Hour))
	assert.Equal(t, 2*time.Second, pl.Pending(13))

	empty := &Playlist{MediaSequence: 3}
	assert.Equal(t, uint64(3), empty.LiveEdge(3*time.Second))
}
