package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMaxAge(t *testing.T) {
	tests := []struct {
		header string
		want   int64
		ok     bool
	}{
		{header: "max-age=3600, must-revalidate", want: 3600, ok: true},
		{header: "public, MAX-AGE=60 ", want: 60, ok: true},
		{header: "max-age=120", want: 120, ok: true},
		{header: "s-maxage=10, max-age=30;", want: 30, ok: true},
		{header: "no-cache", ok: false},
		{header: "max-age=, public", ok: false},
		{header: "max-age=12abc", ok: false},
		{header: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := ParseMaxAge(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
