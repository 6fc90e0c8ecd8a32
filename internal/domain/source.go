package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SourceType tags the kind of configuration a Source carries.
type SourceType string

const (
	SourceRSS  SourceType = "RSS"
	SourceHTML SourceType = "HTML"
)

// RSSConfig configures a feed source.
type RSSConfig struct {
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// HTMLConfig configures a listing page scraped with a link pattern.
// The pipeline does not consume it; it is kept so such rows load cleanly.
type HTMLConfig struct {
	URL     string `json:"url" yaml:"url"`
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// SourceConfig is a tagged union keyed by Type. Exactly one of RSS or HTML
// is non-nil after a successful DecodeSourceConfig.
type SourceConfig struct {
	Type SourceType
	RSS  *RSSConfig
	HTML *HTMLConfig
}

// ErrUnknownSourceType is returned for configs with an unsupported tag.
var ErrUnknownSourceType = errors.New("unknown source type")

// DecodeSourceConfig validates the stored JSON blob against its type tag.
func DecodeSourceConfig(t SourceType, raw []byte) (SourceConfig, error) {
	cfg := SourceConfig{Type: SourceType(strings.ToUpper(string(t)))}
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	switch cfg.Type {
	case SourceRSS:
		var rc RSSConfig
		if err := strictUnmarshal(raw, &rc); err != nil {
			return SourceConfig{}, fmt.Errorf("decode rss config: %w", err)
		}
		rc.URL = strings.TrimSpace(rc.URL)
		cfg.RSS = &rc
	case SourceHTML:
		var hc HTMLConfig
		if err := strictUnmarshal(raw, &hc); err != nil {
			return SourceConfig{}, fmt.Errorf("decode html config: %w", err)
		}
		hc.URL = strings.TrimSpace(hc.URL)
		cfg.HTML = &hc
	default:
		return SourceConfig{}, fmt.Errorf("%w: %q", ErrUnknownSourceType, t)
	}
	return cfg, nil
}

func strictUnmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Encode returns the JSON blob stored for the active variant.
func (c SourceConfig) Encode() ([]byte, error) {
	switch c.Type {
	case SourceRSS:
		if c.RSS == nil {
			return nil, errors.New("rss config missing")
		}
		return json.Marshal(c.RSS)
	case SourceHTML:
		if c.HTML == nil {
			return nil, errors.New("html config missing")
		}
		return json.Marshal(c.HTML)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSourceType, c.Type)
}

// Source is a configured origin of news.
type Source struct {
	ID     int64
	Name   string
	Active bool
	Config SourceConfig
}

// FeedURL returns the feed URL for RSS sources, or "" when the source is not
// a fetchable feed. A missing url means the source is effectively inactive.
func (s Source) FeedURL() string {
	if s.Config.Type != SourceRSS || s.Config.RSS == nil {
		return ""
	}
	return s.Config.RSS.URL
}
