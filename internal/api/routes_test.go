package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fogleman/gg"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MarkKlep/planetary/internal/cache"
	"github.com/MarkKlep/planetary/internal/grid"
	"github.com/MarkKlep/planetary/internal/render"
	"github.com/MarkKlep/planetary/internal/service"
)

const (
	testGridW = 60
	testGridH = 30
)

type testServer struct {
	router http.Handler
	svc    *service.TileService
}

func newTestServer(t *testing.T, gridBytes int, timeout time.Duration) *testServer {
	t.Helper()
	dir := t.TempDir()

	blob := make([]byte, gridBytes)
	for i := range blob {
		blob[i] = byte(20 + i%60)
	}
	gridPath := filepath.Join(dir, "sst.grid")
	if err := os.WriteFile(gridPath, blob, 0644); err != nil {
		t.Fatal(err)
	}

	basePath := filepath.Join(dir, "empty-map.png")
	dc := gg.NewContext(30, 15)
	dc.SetColor(color.RGBA{R: 90, G: 90, B: 90, A: 255})
	dc.Clear()
	if err := dc.SavePNG(basePath); err != nil {
		t.Fatal(err)
	}

	legends, err := cache.NewManager(cache.Config{LegendCacheSizeMB: 1, LegendTTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	svc, err := service.NewTileService(service.TileServiceConfig{
		Store: grid.NewStore(grid.Config{
			Path:   gridPath,
			Width:  testGridW,
			Height: testGridH,
		}, zap.NewNop()),
		Renderer: render.NewTileRenderer(render.Config{
			Width:         30,
			Height:        15,
			BaseImagePath: basePath,
		}, zap.NewNop()),
		Cache:  legends,
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewTileService: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	router := NewRouter(RouterConfig{
		Service:        svc,
		Logger:         zap.NewNop(),
		CORSOrigins:    []string{"*"},
		RequestTimeout: timeout,
	})
	return &testServer{router: router, svc: svc}
}

func (s *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHeatmapEndpoint(t *testing.T) {
	srv := newTestServer(t, testGridW*testGridH, time.Minute)

	rec := srv.get(t, "/api/data")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("unexpected cache control %q", cc)
	}
	renderID := rec.Header().Get("X-Render-Id")
	if renderID == "" {
		t.Fatal("missing X-Render-Id")
	}
	img, err := jpeg.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 30 || img.Bounds().Dy() != 15 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}

	// Unknown palettes fall back to viridis and hit the same cache entry.
	rec = srv.get(t, "/api/data?palette=magma")
	if got := rec.Header().Get("X-Render-Id"); got != renderID {
		t.Fatalf("unknown palette rendered again: %s vs %s", got, renderID)
	}

	// Only refresh=1 forces a refresh.
	rec = srv.get(t, "/api/data?palette=viridis&refresh=true")
	if got := rec.Header().Get("X-Render-Id"); got != renderID {
		t.Fatalf("refresh=true should not refresh: %s vs %s", got, renderID)
	}
	rec = srv.get(t, "/api/data?palette=viridis&refresh=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Render-Id"); got == renderID {
		t.Fatal("refresh=1 did not re-render")
	}
}

func TestHeatmapEndpoint_PalettesDiffer(t *testing.T) {
	srv := newTestServer(t, testGridW*testGridH, time.Minute)

	bodies := map[string][]byte{}
	for _, p := range []string{"viridis", "turbo", "spectral"} {
		rec := srv.get(t, "/api/data?palette="+p)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", p, rec.Code)
		}
		bodies[p] = rec.Body.Bytes()
	}
	if bytes.Equal(bodies["viridis"], bodies["turbo"]) || bytes.Equal(bodies["turbo"], bodies["spectral"]) {
		t.Fatal("expected distinct images per palette")
	}
}

func TestHeatmapEndpoint_MalformedGrid(t *testing.T) {
	srv := newTestServer(t, testGridW*testGridH+5, time.Minute)

	rec := srv.get(t, "/api/data?palette=turbo")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "Error: ") || !strings.Contains(body, "malformed grid") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestHeatmapEndpoint_DeadlineReturns503(t *testing.T) {
	srv := newTestServer(t, testGridW*testGridH, time.Nanosecond)

	rec := srv.get(t, "/api/data?palette=spectral")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	// The abandoned render still completes and fills the cache.
	deadline := time.Now().Add(5 * time.Second)
	for {
		var ready bool
		for _, p := range srv.svc.Status().Palettes {
			if p.Palette == "spectral" && p.State == cache.StateReady {
				ready = true
			}
		}
		if ready {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("render did not complete after the request timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRequestLogger_AbandonedRequest(t *testing.T) {
	srv := newTestServer(t, testGridW*testGridH, time.Minute)
	core, logs := observer.New(zapcore.DebugLevel)
	router := NewRouter(RouterConfig{
		Service:        srv.svc,
		Logger:         zap.New(core),
		RequestTimeout: time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/data?palette=turbo", nil).WithContext(ctx))
	if rec.Body.Len() != 0 {
		t.Fatalf("abandoned request wrote %q", rec.Body.String())
	}

	entries := logs.FilterMessage("request abandoned").All()
	if len(entries) != 1 {
		t.Fatalf("expected one abandoned request log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["status"]; got != int64(statusClientClosedRequest) {
		t.Fatalf("abandoned request logged status %v", got)
	}
	if n := logs.FilterMessage("request").FilterField(zap.Int("status", http.StatusOK)).Len(); n != 0 {
		t.Fatalf("abandoned request logged as success %d times", n)
	}

	// The shared render carries on without the client.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/data?palette=turbo", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after abandoned request, got %d", rec.Code)
	}
	if n := logs.FilterMessage("request").FilterField(zap.Int("status", http.StatusOK)).Len(); n != 1 {
		t.Fatalf("expected one successful request log, got %d", n)
	}
}

func TestPalettesEndpoint(t *testing.T) {
	srv := newTestServer(t, testGridW*testGridH, time.Minute)

	rec := srv.get(t, "/api/palettes")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Default  string   `json:"default"`
		Palettes []string `json:"palettes"`
		Bands    []struct {
			Name string   `json:"name"`
			MinC *float64 `json:"min_c"`
		} `json:"bands"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Default != "viridis" {
		t.Errorf("unexpected default %q", resp.Default)
	}
	if strings.Join(resp.Palettes, ",") != "viridis,turbo,spectral" {
		t.Errorf("unexpected palettes %v", resp.Palettes)
	}
	if len(resp.Bands) != 6 || resp.Bands[0].Name != "blue" || resp.Bands[0].MinC != nil {
		t.Errorf("unexpected bands %+v", resp.Bands)
	}
}

func TestLegendEndpoint(t *testing.T) {
	srv := newTestServer(t, testGridW*testGridH, time.Minute)

	rec := srv.get(t, "/api/legend?palette=turbo")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %q", ct)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != defaultLegendWidth || img.Bounds().Dy() != defaultLegendHeight {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}

	rec = srv.get(t, "/api/legend?palette=turbo&refresh=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", rec.Code)
	}
	if _, err := png.Decode(rec.Body); err != nil {
		t.Fatalf("refresh: decode: %v", err)
	}

	rec = srv.get(t, "/api/legend?width=wide")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, testGridW*testGridH, time.Minute)

	if rec := srv.get(t, "/api/data?palette=turbo"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec := srv.get(t, "/api/status")
	var st service.Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.GridLoaded || st.Grid.Width != testGridW || st.Grid.Height != testGridH {
		t.Fatalf("unexpected status %+v", st)
	}
	for _, p := range st.Palettes {
		want := cache.StateEmpty
		if p.Palette == "turbo" {
			want = cache.StateReady
		}
		if p.State != want {
			t.Errorf("palette %s state %s, want %s", p.Palette, p.State, want)
		}
	}
}

func TestHealthMetricsAndCORS(t *testing.T) {
	srv := newTestServer(t, testGridW*testGridH, time.Minute)

	rec := srv.get(t, "/health")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}

	srv.get(t, "/api/data")
	rec = srv.get(t, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "heatmap_requests_total") {
		t.Fatalf("metrics missing heatmap counters: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/palettes", nil)
	req.Header.Set("Origin", "http://viewer.example")
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("unexpected Access-Control-Allow-Origin %q", got)
	}
}
