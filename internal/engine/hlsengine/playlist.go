// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hlsengine

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotPlaylist is returned for bodies that do not start with #EXTM3U.
var ErrNotPlaylist = errors.New("not an m3u8 playlist")

// Variant is one rendition listed in a master playlist.
type Variant struct {
	URI       string
	Bandwidth int
}

// SegmentRef is one media segment listed in a media playlist.
type SegmentRef struct {
	Sequence uint64
	URI      string
	Duration time.Duration
}

// Playlist is either a master playlist (Variants set) or a media playlist.
type Playlist struct {
	Master         bool
	Variants       []Variant
	TargetDuration time.Duration
	MediaSequence  uint64
	Segments       []SegmentRef
	// Ended is set by #EXT-X-ENDLIST or #EXT-X-PLAYLIST-TYPE:VOD.
	Ended bool
}

// ParsePlaylist parses an m3u8 body. Relative URIs are resolved against base.
func ParsePlaylist(body []byte, base *url.URL) (*Playlist, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	pl := &Playlist{}
	var (
		header       bool
		nextDuration time.Duration
		hasExtinf    bool
		inVariant    bool
		nextBW       int
		seq          uint64
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !header {
			if line != "#EXTM3U" {
				return nil, ErrNotPlaylist
			}
			header = true
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			pl.Master = true
			inVariant = true
			nextBW = bandwidth(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			secs, err := strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64)
			if err != nil || secs <= 0 {
				return nil, fmt.Errorf("invalid target duration: %s", line)
			}
			pl.TargetDuration = time.Duration(secs * float64(time.Second))
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			n, err := strconv.ParseUint(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid media sequence: %s", line)
			}
			pl.MediaSequence = n
			seq = n
		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:VOD"), line == "#EXT-X-ENDLIST":
			pl.Ended = true
		case strings.HasPrefix(line, "#EXTINF:"):
			durPart := strings.TrimPrefix(line, "#EXTINF:")
			if idx := strings.Index(durPart, ","); idx != -1 {
				durPart = durPart[:idx]
			}
			secs, err := strconv.ParseFloat(durPart, 64)
			if err != nil || secs < 0 {
				return nil, fmt.Errorf("invalid EXTINF duration: %s", durPart)
			}
			nextDuration = time.Duration(secs * float64(time.Second))
			hasExtinf = true
		case strings.HasPrefix(line, "#"):
			// Unhandled tags and comments.
		default:
			uri, err := resolve(base, line)
			if err != nil {
				return nil, err
			}
			if inVariant {
				pl.Variants = append(pl.Variants, Variant{URI: uri, Bandwidth: nextBW})
				inVariant, nextBW = false, 0
				continue
			}
			if !hasExtinf {
				return nil, fmt.Errorf("segment %q without EXTINF", line)
			}
			pl.Segments = append(pl.Segments, SegmentRef{Sequence: seq, URI: uri, Duration: nextDuration})
			seq++
			nextDuration, hasExtinf = 0, false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !header {
		return nil, ErrNotPlaylist
	}
	if pl.Master && len(pl.Variants) == 0 {
		return nil, errors.New("master playlist lists no variants")
	}
	if !pl.Master && pl.TargetDuration == 0 {
		return nil, errors.New("media playlist missing EXT-X-TARGETDURATION")
	}
	return pl, nil
}

// LastSequence returns the sequence number after the newest segment.
func (p *Playlist) LastSequence() uint64 {
	return p.MediaSequence + uint64(len(p.Segments))
}

// LiveEdge returns the sequence to start from so that at least hold worth of
// media is buffered behind the newest segment.
func (p *Playlist) LiveEdge(hold time.Duration) uint64 {
	if len(p.Segments) == 0 {
		return p.MediaSequence
	}
	var sum time.Duration
	i := len(p.Segments) - 1
	for ; i > 0; i-- {
		sum += p.Segments[i].Duration
		if sum >= hold {
			break
		}
	}
	return p.Segments[i].Sequence
}

// Pending returns the total duration of segments at or after seq.
func (p *Playlist) Pending(seq uint64) time.Duration {
	var d time.Duration
	for _, s := range p.Segments {
		if s.Sequence >= seq {
			d += s.Duration
		}
	}
	return d
}

func bandwidth(attrs string) int {
	for _, kv := range strings.Split(attrs, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.TrimSpace(k) == "BANDWIDTH" {
			n, _ := strconv.Atoi(strings.TrimSpace(v))
			return n
		}
	}
	return 0
}

func resolve(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid uri %q: %w", ref, err)
	}
	if base == nil {
		return u.String(), nil
	}
	return base.ResolveReference(u).String(), nil
}
