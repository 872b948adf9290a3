package backend

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jaennil/guide_helper/backend/wmscache/internal/grid"
)

const DefaultVersion = "1.1.1"

// Target is the ordered backend list of a layer plus its GetMap parameter template.
type Target struct {
	URLs    []string
	Version string
	Layers  string
	Styles  string
	// Params are extra GetMap parameters, e.g. TRANSPARENT or FORMAT_OPTIONS.
	Params url.Values
}

// RequestURL builds the full GetMap URL for one backend.
func (t Target) RequestURL(base string, srs grid.SRS, box grid.BBox, mime string, width, height int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse backend url %q: %w", base, err)
	}

	q := u.Query()
	for k, vs := range t.Params {
		key := strings.ToUpper(k)
		q.Del(key)
		for _, v := range vs {
			q.Add(key, v)
		}
	}

	version := t.Version
	if version == "" {
		version = DefaultVersion
	}

	q.Set("SERVICE", "WMS")
	q.Set("REQUEST", "GetMap")
	q.Set("VERSION", version)
	q.Set("LAYERS", t.Layers)
	q.Set("STYLES", t.Styles)
	if version == "1.3.0" {
		q.Set("CRS", srs.String())
	} else {
		q.Set("SRS", srs.String())
	}
	q.Set("BBOX", box.String())
	q.Set("WIDTH", strconv.Itoa(width))
	q.Set("HEIGHT", strconv.Itoa(height))
	q.Set("FORMAT", mime)

	u.RawQuery = q.Encode()
	return u.String(), nil
}
