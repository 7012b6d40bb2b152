package acquire

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"log/slog"

	"clipforge/internal/gateway"
	"clipforge/internal/logging"
	"clipforge/internal/quota"
	"clipforge/internal/services"
	"clipforge/internal/store"
)

// GatewayAPI is the slice of the gateway client the acquirer needs.
type GatewayAPI interface {
	GetClip(ctx context.Context, id int64) (*gateway.ClipDescriptor, error)
	FindReusableMedia(ctx context.Context, req gateway.ReuseLookupRequest) (*gateway.ReuseLookupResponse, error)
	CreateMedia(ctx context.Context, req gateway.CreateMediaRequest) (int64, error)
	ReportClipStatus(ctx context.Context, id int64, report gateway.ClipStatusRequest) error
	QuotaSnapshot(ctx context.Context, ownerID int64) (*gateway.QuotaSnapshot, error)
}

// Downloader fetches a source URL to a destination path under a byte ceiling.
// A ceiling of quota.Unlimited disables the limit.
type Downloader interface {
	Download(ctx context.Context, sourceURL string, byteCeiling int64, destPath string) (string, error)
}

// Prober reports the duration of a local media file.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Result names how a source item was satisfied.
type Result string

const (
	ResultReused     Result = "reused"
	ResultCached     Result = "cached"
	ResultDownloaded Result = "downloaded"
)

// Outcome describes one completed acquisition.
type Outcome struct {
	Result          Result
	MediaID         int64
	SizeBytes       int64
	DurationSeconds float64
}

// Acquirer satisfies acquisition jobs on a worker. It consults the media
// reuse lookup first, then the local disk cache, and only then invokes the
// external downloader under the owner's remaining storage budget.
type Acquirer struct {
	client     GatewayAPI
	cache      *Cache
	downloader Downloader
	prober     Prober
	stagingDir string
	logger     *slog.Logger
}

// NewAcquirer wires an acquirer. The cache may be nil, which skips the local
// cache layer entirely.
func NewAcquirer(client GatewayAPI, cache *Cache, downloader Downloader, prober Prober, stagingDir string, logger *slog.Logger) *Acquirer {
	return &Acquirer{
		client:     client,
		cache:      cache,
		downloader: downloader,
		prober:     prober,
		stagingDir: stagingDir,
		logger:     logging.NewComponentLogger(logger, "acquire"),
	}
}

// Execute satisfies one acquisition job.
func (a *Acquirer) Execute(ctx context.Context, payload gateway.AcquirePayload) (*Outcome, error) {
	clip, err := a.client.GetClip(ctx, payload.ClipID)
	if err != nil {
		return nil, fmt.Errorf("load clip %d: %w", payload.ClipID, err)
	}

	reuse, err := a.client.FindReusableMedia(ctx, gateway.ReuseLookupRequest{
		OwnerID:     clip.OwnerID,
		SourceURL:   clip.SourceURL,
		IdentityKey: clip.IdentityKey,
	})
	if err != nil {
		return nil, fmt.Errorf("reuse lookup: %w", err)
	}
	if reuse.Found {
		outcome := &Outcome{
			Result:          ResultReused,
			MediaID:         reuse.Media.ID,
			SizeBytes:       reuse.Media.SizeBytes,
			DurationSeconds: reuse.Media.DurationSeconds,
		}
		if err := a.report(ctx, clip.ID, outcome); err != nil {
			return nil, err
		}
		a.logger.InfoContext(ctx, "reused prior media",
			logging.Int64("clip_id", clip.ID),
			logging.Int64("media_id", outcome.MediaID))
		return outcome, nil
	}

	if path, ok := a.cache.Lookup(clip.SourceURL); ok {
		outcome, err := a.registerFile(ctx, clip, path, ResultCached)
		if err != nil {
			return nil, err
		}
		a.logger.InfoContext(ctx, "served clip from local cache",
			logging.Int64("clip_id", clip.ID),
			logging.String("path", path))
		return outcome, nil
	}

	ceiling, err := a.storageCeiling(ctx, clip.OwnerID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(a.stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	dest := filepath.Join(a.stagingDir, fmt.Sprintf("clip-%d.mp4", clip.ID))
	downloaded, err := a.downloader.Download(ctx, clip.SourceURL, ceiling, dest)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "acquire", "download", clip.SourceURL, err)
	}

	cached, err := a.cache.Store(clip.SourceURL, downloaded)
	if err != nil {
		os.Remove(downloaded)
		return nil, err
	}
	// Without a cache Store hands the staging path back as-is, and that file
	// is the media record's backing copy. Only drop the staging copy once the
	// bytes live somewhere else.
	if cached != downloaded {
		os.Remove(downloaded)
	}
	outcome, err := a.registerFile(ctx, clip, cached, ResultDownloaded)
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "downloaded clip",
		logging.Int64("clip_id", clip.ID),
		logging.Int64("size_bytes", outcome.SizeBytes))
	return outcome, nil
}

// storageCeiling derives the downloader byte limit from the owner's remaining
// storage budget. An exhausted budget rejects the job before any download.
func (a *Acquirer) storageCeiling(ctx context.Context, ownerID int64) (int64, error) {
	snapshot, err := a.client.QuotaSnapshot(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("quota snapshot: %w", err)
	}
	limits := quota.Limits{StorageBytes: snapshot.StorageBytesLimit}
	usage := quota.Usage{StorageBytes: snapshot.StorageBytesUsed}
	remaining := quota.RemainingStorage(limits, usage)
	if remaining == 0 {
		return 0, services.Wrap(services.ErrQuotaExceeded, "acquire", "download",
			fmt.Sprintf("storage budget exhausted (limit %d)", snapshot.StorageBytesLimit), nil)
	}
	return remaining, nil
}

func (a *Acquirer) registerFile(ctx context.Context, clip *gateway.ClipDescriptor, path string, result Result) (*Outcome, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("inspect acquired file: %w", err)
	}
	var duration float64
	if a.prober != nil {
		if probed, probeErr := a.prober.Duration(ctx, path); probeErr == nil {
			duration = probed
		} else {
			a.logger.WarnContext(ctx, "duration probe failed",
				logging.String("path", path), logging.Error(probeErr))
		}
	}

	mediaID, err := a.client.CreateMedia(ctx, gateway.CreateMediaRequest{
		OwnerID:         clip.OwnerID,
		Kind:            string(store.MediaKindClip),
		StoragePath:     path,
		SizeBytes:       info.Size(),
		DurationSeconds: duration,
		IdentityKey:     clip.IdentityKey,
		SourceURL:       clip.SourceURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create media record: %w", err)
	}

	outcome := &Outcome{
		Result:          result,
		MediaID:         mediaID,
		SizeBytes:       info.Size(),
		DurationSeconds: duration,
	}
	if err := a.report(ctx, clip.ID, outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (a *Acquirer) report(ctx context.Context, clipID int64, outcome *Outcome) error {
	mediaID := outcome.MediaID
	err := a.client.ReportClipStatus(ctx, clipID, gateway.ClipStatusRequest{
		Acquired:        true,
		MediaID:         &mediaID,
		DurationSeconds: outcome.DurationSeconds,
	})
	if err != nil {
		return fmt.Errorf("report clip status: %w", err)
	}
	return nil
}
