package instancefile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kilianp07/displib/auth"
	"github.com/kilianp07/displib/config"
	"github.com/kilianp07/displib/core/model"
)

// ErrTooLarge is returned when a fetched instance exceeds the size cap.
var ErrTooLarge = errors.New("instance exceeds size limit")

// Fetcher downloads instances over HTTP, with OAuth2 client credentials when
// configured.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher builds a Fetcher from the source configuration.
func NewFetcher(cfg config.SourceConfig) *Fetcher {
	cfg.SetDefaults()
	client := &http.Client{}
	if cfg.Auth.Enabled() {
		client = auth.NewClientCred(cfg.Auth).Client()
	}
	client.Timeout = cfg.Timeout()
	return &Fetcher{client: client, maxBytes: cfg.MaxBytes}
}

// IsRemote reports whether src is an http(s) URL.
func IsRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Fetch downloads and decodes the instance at rawURL. YAML is selected by a
// yaml content type or a .yaml/.yml path.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*model.RawInstance, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch instance: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, application/yaml")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch instance: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch instance: %s: unexpected status %s", u.Redacted(), resp.Status)
	}

	format := FormatOf(u.Path)
	if strings.Contains(resp.Header.Get("Content-Type"), "yaml") {
		format = FormatYAML
	}
	body := io.LimitReader(resp.Body, f.maxBytes+1)
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("fetch instance: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("fetch instance: %w (%d bytes)", ErrTooLarge, f.maxBytes)
	}
	return Decode(bytes.NewReader(data), format)
}

// Open loads src from disk or, for URLs, through f.
func Open(ctx context.Context, f *Fetcher, src string) (*model.Instance, error) {
	var (
		raw *model.RawInstance
		err error
	)
	if IsRemote(src) {
		if f == nil {
			f = NewFetcher(config.SourceConfig{})
		}
		raw, err = f.Fetch(ctx, src)
	} else {
		raw, err = Load(src)
	}
	if err != nil {
		return nil, err
	}
	in, err := model.Build(*raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	return in, nil
}
