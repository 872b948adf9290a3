package metatile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want Policy
	}{
		{in: "", want: ClientDefault()},
		{in: "client", want: ClientDefault()},
		{in: "Backend", want: FromBackend()},
		{in: "3600", want: Fixed(time.Hour)},
		{in: "90m", want: Fixed(90 * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"-5", "-1h", "soon"} {
		_, err := ParsePolicy(bad)
		assert.Error(t, err, bad)
	}
}

func TestPolicyResolve(t *testing.T) {
	present := Hint{MaxAge: 3600, Valid: true}
	missing := Hint{}

	assert.Equal(t, int64(3_600_000), FromBackend().Resolve(present, DefaultExpirationFallback))
	assert.Equal(t, int64(7_200_000), FromBackend().Resolve(missing, DefaultExpirationFallback))
	assert.Equal(t, int64(60_000), FromBackend().Resolve(missing, time.Minute))
	assert.Equal(t, int64(1_000), Fixed(time.Second).Resolve(present, DefaultExpirationFallback))
	assert.Equal(t, ExpirationClientDefault, ClientDefault().Resolve(present, DefaultExpirationFallback))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("jpg")
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, f)
	assert.Equal(t, "jpeg", f.Extension())

	f, err = ParseFormat("image/png")
	require.NoError(t, err)
	assert.Equal(t, "png", f.Extension())

	_, err = ParseFormat("svg")
	assert.Error(t, err)
}
