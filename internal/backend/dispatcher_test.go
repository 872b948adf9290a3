package backend

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/wmscache/internal/grid"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// deadURL returns the address of a server that no longer accepts connections.
func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func wmsServer(t *testing.T, body []byte, cacheControl string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if cacheControl != "" {
			w.Header().Set("Cache-Control", cacheControl)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

var testBox = grid.BBox{MinX: -180, MinY: -90, MaxX: 0, MaxY: 90}

func TestDispatcherFailover(t *testing.T) {
	var hits atomic.Int32
	good := wmsServer(t, pngBytes(t, 512, 256), "", &hits)

	d := NewDispatcher(Config{Timeout: 2 * time.Second}, logger.NewNoOpLogger())
	target := Target{
		URLs:   []string{deadURL(t), deadURL(t), good.URL + "/wms"},
		Layers: "topp:states",
	}

	res, err := d.Fetch(context.Background(), target, grid.EPSG4326, testBox, "image/png", 512, 256, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, image.Rect(0, 0, 512, 256), res.Image.Bounds())

	u, err := url.Parse(res.URL)
	require.NoError(t, err)
	assert.Equal(t, "/wms", u.Path)
}

func TestDispatcherUndecodableBodyFailsOver(t *testing.T) {
	bad := wmsServer(t, []byte(`<ServiceExceptionReport/>`), "", nil)
	good := wmsServer(t, pngBytes(t, 256, 256), "", nil)

	d := NewDispatcher(Config{Timeout: 2 * time.Second}, logger.NewNoOpLogger())
	target := Target{URLs: []string{bad.URL, good.URL}}

	res, err := d.Fetch(context.Background(), target, grid.EPSG4326, testBox, "image/png", 256, 256, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

func TestDispatcherExhausted(t *testing.T) {
	status := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(status.Close)

	d := NewDispatcher(Config{Timeout: 2 * time.Second}, logger.NewNoOpLogger())
	target := Target{URLs: []string{deadURL(t), status.URL}}

	res, err := d.Fetch(context.Background(), target, grid.EPSG4326, testBox, "image/png", 256, 256, Options{})
	require.Nil(t, res)
	require.ErrorIs(t, err, ErrAllBackendsFailed)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.Contains(t, exhausted.LastURL, status.URL)
}

func TestDispatcherTimeoutFailsOver(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		slow.Close()
	})
	good := wmsServer(t, pngBytes(t, 256, 256), "", nil)

	d := NewDispatcher(Config{Timeout: 100 * time.Millisecond}, logger.NewNoOpLogger())
	target := Target{URLs: []string{slow.URL, good.URL}}

	res, err := d.Fetch(context.Background(), target, grid.EPSG4326, testBox, "image/png", 256, 256, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

func TestDispatcherReadsMaxAge(t *testing.T) {
	srv := wmsServer(t, pngBytes(t, 256, 256), "max-age=3600, must-revalidate", nil)
	d := NewDispatcher(Config{}, logger.NewNoOpLogger())
	target := Target{URLs: []string{srv.URL}}

	res, err := d.Fetch(context.Background(), target, grid.EPSG4326, testBox, "image/png", 256, 256, Options{ReadExpiration: true})
	require.NoError(t, err)
	assert.True(t, res.HasMaxAge)
	assert.Equal(t, int64(3600), res.MaxAge)

	res, err = d.Fetch(context.Background(), target, grid.EPSG4326, testBox, "image/png", 256, 256, Options{})
	require.NoError(t, err)
	assert.False(t, res.HasMaxAge)
}

func TestDispatcherDecodeConfig(t *testing.T) {
	srv := wmsServer(t, pngBytes(t, 256, 256), "", nil)
	d := NewDispatcher(Config{}, logger.NewNoOpLogger())
	target := Target{URLs: []string{srv.URL}}

	_, err := d.Fetch(context.Background(), target, grid.EPSG4326, testBox, "image/png", 256, 256,
		Options{Decode: DecodeConfig{MaxPixels: 1000}})
	require.ErrorIs(t, err, ErrImageTooLarge)

	_, err = d.Fetch(context.Background(), target, grid.EPSG4326, testBox, "image/png", 512, 256,
		Options{Decode: DecodeConfig{ExpectSize: true}})
	require.ErrorIs(t, err, ErrAllBackendsFailed)
}

func TestRequestURL(t *testing.T) {
	target := Target{
		Layers: "topp:states",
		Params: url.Values{"transparent": {"true"}, "SRS": {"EPSG:1"}},
	}

	raw, err := target.RequestURL("http://example.com/geoserver/wms?map=a.map", grid.EPSG4326, testBox, "image/png", 512, 256)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "a.map", q.Get("map"))
	assert.Equal(t, "GetMap", q.Get("REQUEST"))
	assert.Equal(t, "1.1.1", q.Get("VERSION"))
	assert.Equal(t, "EPSG:4326", q.Get("SRS"))
	assert.Equal(t, "-180,-90,0,90", q.Get("BBOX"))
	assert.Equal(t, "512", q.Get("WIDTH"))
	assert.Equal(t, "256", q.Get("HEIGHT"))
	assert.Equal(t, "image/png", q.Get("FORMAT"))
	assert.Equal(t, "true", q.Get("TRANSPARENT"))

	target.Version = "1.3.0"
	raw, err = target.RequestURL("http://example.com/wms", grid.EPSG4326, testBox, "image/png", 512, 256)
	require.NoError(t, err)
	u, err = url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:4326", u.Query().Get("CRS"))
}

func TestDispatcherNoBackends(t *testing.T) {
	d := NewDispatcher(Config{}, logger.NewNoOpLogger())
	_, err := d.Fetch(context.Background(), Target{}, grid.EPSG4326, testBox, "image/png", 256, 256, Options{})
	require.ErrorIs(t, err, ErrNoBackends)
}
