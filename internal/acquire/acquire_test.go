package acquire_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clipforge/internal/acquire"
	"clipforge/internal/gateway"
	"clipforge/internal/quota"
	"clipforge/internal/services"
	"clipforge/internal/testsupport"
)

type stubGateway struct {
	clip     gateway.ClipDescriptor
	reuse    gateway.ReuseLookupResponse
	snapshot gateway.QuotaSnapshot

	createdMedia []gateway.CreateMediaRequest
	nextMediaID  int64
	reports      []gateway.ClipStatusRequest
}

func (s *stubGateway) GetClip(ctx context.Context, id int64) (*gateway.ClipDescriptor, error) {
	clip := s.clip
	clip.ID = id
	return &clip, nil
}

func (s *stubGateway) FindReusableMedia(ctx context.Context, req gateway.ReuseLookupRequest) (*gateway.ReuseLookupResponse, error) {
	resp := s.reuse
	return &resp, nil
}

func (s *stubGateway) CreateMedia(ctx context.Context, req gateway.CreateMediaRequest) (int64, error) {
	s.createdMedia = append(s.createdMedia, req)
	s.nextMediaID++
	return s.nextMediaID, nil
}

func (s *stubGateway) ReportClipStatus(ctx context.Context, id int64, report gateway.ClipStatusRequest) error {
	s.reports = append(s.reports, report)
	return nil
}

func (s *stubGateway) QuotaSnapshot(ctx context.Context, ownerID int64) (*gateway.QuotaSnapshot, error) {
	snapshot := s.snapshot
	return &snapshot, nil
}

type stubDownloader struct {
	calls    int
	ceilings []int64
	content  []byte
	err      error
}

func (d *stubDownloader) Download(ctx context.Context, sourceURL string, byteCeiling int64, destPath string) (string, error) {
	d.calls++
	d.ceilings = append(d.ceilings, byteCeiling)
	if d.err != nil {
		return "", d.err
	}
	content := d.content
	if content == nil {
		content = []byte("video-bytes")
	}
	if err := os.WriteFile(destPath, content, 0o644); err != nil {
		return "", err
	}
	return destPath, nil
}

type stubProber struct{ duration float64 }

func (p stubProber) Duration(ctx context.Context, path string) (float64, error) {
	return p.duration, nil
}

func newAcquirer(t *testing.T, gw *stubGateway, dl *stubDownloader) (*acquire.Acquirer, *acquire.Cache) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cache := acquire.NewCache(cfg, nil)
	if cache == nil {
		t.Fatal("expected cache from default test config")
	}
	acq := acquire.NewAcquirer(gw, cache, dl, stubProber{duration: 30}, cfg.Paths.StagingDir, nil)
	return acq, cache
}

func defaultStub() *stubGateway {
	return &stubGateway{
		clip: gateway.ClipDescriptor{
			OwnerID:     6,
			SourceURL:   "https://clips.twitch.tv/SomeSlug",
			IdentityKey: "SomeSlug",
		},
		snapshot: gateway.QuotaSnapshot{
			StorageBytesLimit: quota.Unlimited,
		},
	}
}

func TestReuseHitSkipsDownloader(t *testing.T) {
	gw := defaultStub()
	gw.reuse = gateway.ReuseLookupResponse{
		Found: true,
		Media: &gateway.MediaDescriptor{ID: 77, SizeBytes: 512, DurationSeconds: 21},
	}
	dl := &stubDownloader{}
	acq, _ := newAcquirer(t, gw, dl)

	outcome, err := acq.Execute(context.Background(), gateway.AcquirePayload{ClipID: 1})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Result != acquire.ResultReused || outcome.MediaID != 77 {
		t.Fatalf("expected reused outcome with media 77, got %+v", outcome)
	}
	if dl.calls != 0 {
		t.Fatal("reuse hit must not invoke the downloader")
	}
	if len(gw.createdMedia) != 0 {
		t.Fatal("reuse hit must not create a new media record")
	}
	if len(gw.reports) != 1 || !gw.reports[0].Acquired {
		t.Fatalf("expected one acquired report, got %+v", gw.reports)
	}
}

func TestLocalCacheHitSkipsDownloader(t *testing.T) {
	gw := defaultStub()
	dl := &stubDownloader{}
	acq, cache := newAcquirer(t, gw, dl)

	seed := filepath.Join(t.TempDir(), "seed.mp4")
	testsupport.WriteFile(t, seed, 256)
	if _, err := cache.Store(gw.clip.SourceURL, seed); err != nil {
		t.Fatalf("cache.Store: %v", err)
	}

	outcome, err := acq.Execute(context.Background(), gateway.AcquirePayload{ClipID: 2})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Result != acquire.ResultCached {
		t.Fatalf("expected cached outcome, got %+v", outcome)
	}
	if dl.calls != 0 {
		t.Fatal("cache hit must not invoke the downloader")
	}
	if len(gw.createdMedia) != 1 || gw.createdMedia[0].SizeBytes != 256 {
		t.Fatalf("expected media record for cached file, got %+v", gw.createdMedia)
	}
}

func TestFullMissDownloadsUnderRemainingBudget(t *testing.T) {
	gw := defaultStub()
	gw.snapshot = gateway.QuotaSnapshot{StorageBytesLimit: 1000, StorageBytesUsed: 400}
	dl := &stubDownloader{}
	acq, cache := newAcquirer(t, gw, dl)

	outcome, err := acq.Execute(context.Background(), gateway.AcquirePayload{ClipID: 3})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Result != acquire.ResultDownloaded {
		t.Fatalf("expected downloaded outcome, got %+v", outcome)
	}
	if dl.calls != 1 {
		t.Fatalf("expected one download, got %d", dl.calls)
	}
	if dl.ceilings[0] != 600 {
		t.Fatalf("expected byte ceiling 600 from remaining budget, got %d", dl.ceilings[0])
	}
	if outcome.DurationSeconds != 30 {
		t.Fatalf("expected probed duration, got %v", outcome.DurationSeconds)
	}

	// The downloaded file now lives in the cache under the URL hash.
	if _, ok := cache.Lookup(gw.clip.SourceURL); !ok {
		t.Fatal("expected download stored in local cache")
	}
}

func TestDownloadWithoutCacheKeepsBackingFile(t *testing.T) {
	gw := defaultStub()
	dl := &stubDownloader{}
	stagingDir := t.TempDir()
	acq := acquire.NewAcquirer(gw, nil, dl, stubProber{duration: 30}, stagingDir, nil)

	outcome, err := acq.Execute(context.Background(), gateway.AcquirePayload{ClipID: 9})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Result != acquire.ResultDownloaded {
		t.Fatalf("expected downloaded outcome, got %+v", outcome)
	}
	if len(gw.createdMedia) != 1 {
		t.Fatalf("expected one media record, got %d", len(gw.createdMedia))
	}
	if _, err := os.Stat(gw.createdMedia[0].StoragePath); err != nil {
		t.Fatalf("registered backing file must survive acquisition: %v", err)
	}
}

func TestDownloadWithCacheDropsStagingCopy(t *testing.T) {
	gw := defaultStub()
	dl := &stubDownloader{}
	cfg := testsupport.NewConfig(t)
	cache := acquire.NewCache(cfg, nil)
	acq := acquire.NewAcquirer(gw, cache, dl, stubProber{duration: 30}, cfg.Paths.StagingDir, nil)

	outcome, err := acq.Execute(context.Background(), gateway.AcquirePayload{ClipID: 10})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Result != acquire.ResultDownloaded {
		t.Fatalf("expected downloaded outcome, got %+v", outcome)
	}
	if len(gw.createdMedia) != 1 || gw.createdMedia[0].StoragePath != cache.Path(gw.clip.SourceURL) {
		t.Fatalf("expected media registered at cache path, got %+v", gw.createdMedia)
	}
	staging := filepath.Join(cfg.Paths.StagingDir, "clip-10.mp4")
	if _, err := os.Stat(staging); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("staging copy should be removed after caching, stat: %v", err)
	}
}

func TestExhaustedBudgetRejectsBeforeDownload(t *testing.T) {
	gw := defaultStub()
	gw.snapshot = gateway.QuotaSnapshot{StorageBytesLimit: 500, StorageBytesUsed: 500}
	dl := &stubDownloader{}
	acq, _ := newAcquirer(t, gw, dl)

	_, err := acq.Execute(context.Background(), gateway.AcquirePayload{ClipID: 4})
	if !errors.Is(err, services.ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
	if dl.calls != 0 {
		t.Fatal("exhausted budget must not invoke the downloader")
	}
}

func TestDownloaderFailureSurfacesAsExternalTool(t *testing.T) {
	gw := defaultStub()
	dl := &stubDownloader{err: errors.New("network down")}
	acq, _ := newAcquirer(t, gw, dl)

	_, err := acq.Execute(context.Background(), gateway.AcquirePayload{ClipID: 5})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestEvictExpiredRemovesOldEntriesOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCacheTTLHours(2))
	cache := acquire.NewCache(cfg, nil)
	if cache == nil {
		t.Fatal("expected cache")
	}

	seed := filepath.Join(t.TempDir(), "seed.mp4")
	testsupport.WriteFile(t, seed, 32)
	oldPath, err := cache.Store("https://clips.twitch.tv/OldOne", seed)
	if err != nil {
		t.Fatalf("cache.Store: %v", err)
	}
	freshPath, err := cache.Store("https://clips.twitch.tv/FreshOne", seed)
	if err != nil {
		t.Fatalf("cache.Store: %v", err)
	}

	stale := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(oldPath, stale, stale); err != nil {
		t.Fatalf("age cache entry: %v", err)
	}

	removed, err := cache.EvictExpired(context.Background())
	if err != nil {
		t.Fatalf("EvictExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
	if _, err := os.Stat(oldPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected stale entry removed")
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Fatalf("fresh entry should survive: %v", err)
	}
}

func TestLookupRefreshesAccessTime(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cache := acquire.NewCache(cfg, nil)

	seed := filepath.Join(t.TempDir(), "seed.mp4")
	testsupport.WriteFile(t, seed, 16)
	path, err := cache.Store("https://clips.twitch.tv/Touched", seed)
	if err != nil {
		t.Fatalf("cache.Store: %v", err)
	}
	stale := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, stale, stale); err != nil {
		t.Fatalf("age cache entry: %v", err)
	}

	if _, ok := cache.Lookup("https://clips.twitch.tv/Touched"); !ok {
		t.Fatal("expected cache hit")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.ModTime().After(stale.Add(time.Minute)) {
		t.Fatal("lookup should refresh the entry's last-access time")
	}
}
