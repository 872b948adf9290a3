package grid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SRS is a spatial reference system identified by its EPSG code.
type SRS int

const (
	EPSG4326   SRS = 4326
	EPSG3857   SRS = 3857
	EPSG900913 SRS = 900913
)

var ErrUnknownSRS = errors.New("unknown srs")

var knownSRS = map[SRS]struct{}{
	EPSG4326:   {},
	EPSG3857:   {},
	EPSG900913: {},
}

// ParseSRS accepts "EPSG:4326", "epsg:4326" or a bare code.
func ParseSRS(s string) (SRS, error) {
	code := strings.TrimSpace(s)
	if prefix, rest, ok := strings.Cut(code, ":"); ok {
		if !strings.EqualFold(prefix, "EPSG") {
			return 0, fmt.Errorf("%w: %q", ErrUnknownSRS, s)
		}
		code = rest
	}

	n, err := strconv.Atoi(code)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSRS, s)
	}

	srs := SRS(n)
	if !srs.Supported() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSRS, s)
	}

	return srs, nil
}

func (s SRS) Supported() bool {
	_, ok := knownSRS[s]
	return ok
}

func (s SRS) Code() int {
	return int(s)
}

func (s SRS) String() string {
	return fmt.Sprintf("EPSG:%d", int(s))
}

// Mercator reports whether the SRS uses the spherical mercator grid.
func (s SRS) Mercator() bool {
	return s == EPSG3857 || s == EPSG900913
}
