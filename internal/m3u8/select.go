package m3u8

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"
)

type PlaylistType int

const (
	Master PlaylistType = iota
	Variant
	Unknown
)

// ErrNoStreams is returned when a master playlist lists nothing playable.
var ErrNoStreams = errors.New("playlist has no streams")

// Parse checks the content and returns the type and parsed object
func Parse(content io.Reader) (m3u8.Playlist, PlaylistType, error) {
	p, listType, err := m3u8.DecodeFrom(content, true)
	if err != nil {
		return nil, Unknown, err
	}

	switch listType {
	case m3u8.MASTER:
		return p, Master, nil
	case m3u8.MEDIA:
		return p, Variant, nil
	default:
		return nil, Unknown, fmt.Errorf("unknown playlist type")
	}
}

// ResolveURL resolves a relative reference against a base URL
func ResolveURL(base *url.URL, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref // fallback
	}
	return base.ResolveReference(refURL).String()
}

// SelectAudio picks the best audio stream out of a parsed playlist.
//
// A media playlist is already a single stream, so its own URL is returned.
// For a master playlist an EXT-X-MEDIA audio rendition wins (DEFAULT=YES
// first), then the highest-bandwidth audio-only variant, then the
// highest-bandwidth variant of any kind.
func SelectAudio(pl m3u8.Playlist, kind PlaylistType, base *url.URL) (string, error) {
	switch kind {
	case Variant:
		return base.String(), nil
	case Master:
	default:
		return "", fmt.Errorf("unknown playlist type")
	}

	master, ok := pl.(*m3u8.MasterPlaylist)
	if !ok {
		return "", fmt.Errorf("unexpected playlist %T", pl)
	}

	if alt := pickRendition(master); alt != nil {
		return ResolveURL(base, alt.URI), nil
	}

	var best, bestAudio *m3u8.Variant
	for _, v := range master.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
		if audioOnly(v.Codecs) && (bestAudio == nil || v.Bandwidth > bestAudio.Bandwidth) {
			bestAudio = v
		}
	}
	if bestAudio != nil {
		return ResolveURL(base, bestAudio.URI), nil
	}
	if best != nil {
		return ResolveURL(base, best.URI), nil
	}
	return "", ErrNoStreams
}

func pickRendition(master *m3u8.MasterPlaylist) *m3u8.Alternative {
	var first *m3u8.Alternative
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		for _, alt := range v.Alternatives {
			if alt == nil || alt.URI == "" || !strings.EqualFold(alt.Type, "AUDIO") {
				continue
			}
			if alt.Default {
				return alt
			}
			if first == nil {
				first = alt
			}
		}
	}
	return first
}

// audioOnly reports whether a CODECS attribute names only audio codecs.
func audioOnly(codecs string) bool {
	if strings.TrimSpace(codecs) == "" {
		return false
	}
	for _, c := range strings.Split(codecs, ",") {
		c = strings.ToLower(strings.TrimSpace(c))
		if !strings.HasPrefix(c, "mp4a") && !strings.HasPrefix(c, "opus") &&
			!strings.HasPrefix(c, "ac-3") && !strings.HasPrefix(c, "ec-3") && c != "flac" {
			return false
		}
	}
	return true
}
