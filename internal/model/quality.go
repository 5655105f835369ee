package model

import (
	"fmt"
	"strings"
)

// Quality is an audio fidelity tier offered by the catalog.
//
// Tiers are totally ordered: a larger value is a higher fidelity. The zero
// value is QualityStandard, the lowest tier, so an unset quality never asks
// for more than the catalog can always serve.
//
// Order, highest first:
//
//	sky > jymaster > jyeffect > lossless > exhigh > standard
type Quality int

const (
	// QualityStandard is the 128 kbps MP3 tier.
	QualityStandard Quality = iota

	// QualityExHigh is the 320 kbps MP3 tier.
	QualityExHigh

	// QualityLossless is CD quality FLAC.
	QualityLossless

	// QualityHiRes is the "jyeffect" hi-res FLAC tier.
	QualityHiRes

	// QualityMaster is the "jymaster" studio master tier.
	QualityMaster

	// QualitySky is the immersive surround tier.
	QualitySky
)

// Qualities lists every tier from highest to lowest.
var Qualities = []Quality{
	QualitySky,
	QualityMaster,
	QualityHiRes,
	QualityLossless,
	QualityExHigh,
	QualityStandard,
}

var qualityNames = map[Quality]string{
	QualityStandard: "standard",
	QualityExHigh:   "exhigh",
	QualityLossless: "lossless",
	QualityHiRes:    "jyeffect",
	QualityMaster:   "jymaster",
	QualitySky:      "sky",
}

var qualityLabels = map[Quality]string{
	QualityStandard: "标准",
	QualityExHigh:   "极高",
	QualityLossless: "无损",
	QualityHiRes:    "高清臻音",
	QualityMaster:   "超清母带",
	QualitySky:      "沉浸环绕声",
}

// String returns the catalog API name of the tier (e.g. "lossless").
func (q Quality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return fmt.Sprintf("quality(%d)", int(q))
}

// Label returns the display label used in file names, e.g. "无损".
func (q Quality) Label() string {
	if label, ok := qualityLabels[q]; ok {
		return label
	}
	return q.String()
}

// Valid reports whether q is a known tier.
func (q Quality) Valid() bool {
	return q >= QualityStandard && q <= QualitySky
}

// Lower returns the next tier below q. The second result is false when q is
// already the lowest tier.
func (q Quality) Lower() (Quality, bool) {
	if q <= QualityStandard || !q.Valid() {
		return q, false
	}
	return q - 1, true
}

// Lossless reports whether the tier is delivered as a lossless container.
func (q Quality) Lossless() bool {
	return q >= QualityLossless
}

// DefaultExtension returns the file extension, including the dot, that the
// catalog normally uses for this tier.
func (q Quality) DefaultExtension() string {
	if q.Lossless() {
		return ".flac"
	}
	return ".mp3"
}

// ParseQuality accepts an API name ("exhigh") or a display label ("极高").
func ParseQuality(s string) (Quality, error) {
	s = strings.TrimSpace(s)
	for q, name := range qualityNames {
		if strings.EqualFold(s, name) {
			return q, nil
		}
	}
	for q, label := range qualityLabels {
		if s == label {
			return q, nil
		}
	}
	return QualityStandard, fmt.Errorf("unknown quality %q", s)
}

// MarshalText implements encoding.TextMarshaler so that settings files carry
// the API name rather than an integer.
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *Quality) UnmarshalText(text []byte) error {
	parsed, err := ParseQuality(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
