package gateway_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"clipforge/internal/gateway"
	"clipforge/internal/identity"
	"clipforge/internal/notifications"
	"clipforge/internal/services"
	"clipforge/internal/store"
	"clipforge/internal/testsupport"
)

func newTestGateway(t *testing.T) (*store.Store, *gateway.Client) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	srv, err := gateway.NewServer(cfg, st, nil)
	if err != nil {
		t.Fatalf("gateway.NewServer: %v", err)
	}
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	client := gateway.NewClient(httpSrv.URL, cfg.Gateway.Token).WithHTTPClient(httpSrv.Client())
	return st, client
}

func TestRejectsMissingAndWrongCredentials(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	srv, err := gateway.NewServer(cfg, st, nil)
	if err != nil {
		t.Fatalf("gateway.NewServer: %v", err)
	}
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	resp, err := http.Get(httpSrv.URL + "/api/clips/1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credential, got %d", resp.StatusCode)
	}

	wrong := gateway.NewClient(httpSrv.URL, "wrong-token").WithHTTPClient(httpSrv.Client())
	_, err = wrong.GetClip(context.Background(), 1)
	if !errors.Is(err, services.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestUnknownIDsReturnDistinctNotFound(t *testing.T) {
	_, client := newTestGateway(t)
	ctx := context.Background()

	if _, err := client.GetClip(ctx, 12345); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for clip, got %v", err)
	}
	if _, err := client.GetMedia(ctx, 12345); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for media, got %v", err)
	}
	if _, err := client.GetJob(ctx, "no-such-handle"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for job, got %v", err)
	}
	if err := client.UpdateRun(ctx, 12345, gateway.UpdateRunRequest{}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for run, got %v", err)
	}
}

func TestClipRoundTripThroughGateway(t *testing.T) {
	st, client := newTestGateway(t)
	ctx := context.Background()

	recipe := testsupport.NewRecipe(t, st, 8, "gw-clips")
	run := testsupport.NewRun(t, st, recipe)
	clip, err := st.CreateClip(ctx, &store.Clip{
		RunID:       run.ID,
		OwnerID:     8,
		SourceURL:   "https://clips.twitch.tv/FunnySlug",
		Title:       "a moment",
		IdentityKey: "twitch:funnyslug",
	})
	if err != nil {
		t.Fatalf("CreateClip: %v", err)
	}

	descriptor, err := client.GetClip(ctx, clip.ID)
	if err != nil {
		t.Fatalf("GetClip: %v", err)
	}
	if descriptor.SourceURL != clip.SourceURL || descriptor.RunID != run.ID || descriptor.OwnerID != 8 {
		t.Fatalf("unexpected descriptor: %+v", descriptor)
	}

	mediaID, err := client.CreateMedia(ctx, gateway.CreateMediaRequest{
		OwnerID:         8,
		Kind:            string(store.MediaKindClip),
		StoragePath:     "/cache/funnyslug.mp4",
		SizeBytes:       512,
		DurationSeconds: 27.5,
		IdentityKey:     "twitch:funnyslug",
	})
	if err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}
	if err := client.ReportClipStatus(ctx, clip.ID, gateway.ClipStatusRequest{
		Acquired:        true,
		MediaID:         &mediaID,
		DurationSeconds: 27.5,
	}); err != nil {
		t.Fatalf("ReportClipStatus: %v", err)
	}

	stored, err := st.GetClip(ctx, clip.ID)
	if err != nil {
		t.Fatalf("GetClip (store): %v", err)
	}
	if !stored.Downloaded || stored.MediaID == nil || *stored.MediaID != mediaID {
		t.Fatalf("clip status report not persisted: %+v", stored)
	}
}

func TestReuseLookupRequiresBackingFile(t *testing.T) {
	st, client := newTestGateway(t)
	ctx := context.Background()

	backing := filepath.Join(t.TempDir(), "clip.mp4")
	testsupport.WriteFile(t, backing, 64)
	media, err := st.CreateMedia(ctx, &store.Media{
		OwnerID:     3,
		Kind:        store.MediaKindClip,
		StoragePath: backing,
		SizeBytes:   64,
		IdentityKey: identity.Key("https://clips.twitch.tv/Reusable"),
		SourceURL:   "https://clips.twitch.tv/Reusable",
	})
	if err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}

	resp, err := client.FindReusableMedia(ctx, gateway.ReuseLookupRequest{
		OwnerID:   3,
		SourceURL: "https://clips.twitch.tv/Reusable",
	})
	if err != nil {
		t.Fatalf("FindReusableMedia: %v", err)
	}
	if !resp.Found || resp.Media == nil || resp.Media.ID != media.ID {
		t.Fatalf("expected reuse hit for %d, got %+v", media.ID, resp)
	}

	if err := os.Remove(backing); err != nil {
		t.Fatalf("remove backing file: %v", err)
	}
	resp, err = client.FindReusableMedia(ctx, gateway.ReuseLookupRequest{
		OwnerID:   3,
		SourceURL: "https://clips.twitch.tv/Reusable",
	})
	if err != nil {
		t.Fatalf("FindReusableMedia: %v", err)
	}
	if resp.Found {
		t.Fatal("missing backing file must not be reported as found")
	}
}

func TestJobLifecycleThroughGateway(t *testing.T) {
	st, client := newTestGateway(t)
	ctx := context.Background()

	recipe := testsupport.NewRecipe(t, st, 2, "gw-jobs")
	run := testsupport.NewRun(t, st, recipe)

	created, err := client.CreateJob(ctx, gateway.CreateJobRequest{
		Kind:    string(store.JobKindAcquire),
		RunID:   run.ID,
		OwnerID: 2,
		Queue:   "standard",
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if created.Handle == "" {
		t.Fatal("expected generated handle")
	}

	claimed, err := client.ClaimJob(ctx, "worker-1", "standard")
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if claimed == nil || claimed.Handle != created.Handle {
		t.Fatalf("expected to claim %s, got %+v", created.Handle, claimed)
	}

	progress := 40
	if err := client.UpdateJob(ctx, created.Handle, gateway.UpdateJobRequest{
		Progress:       &progress,
		ResultFragment: map[string]any{"downloaded": 1},
	}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	status := string(store.JobStatusSuccess)
	if err := client.UpdateJob(ctx, created.Handle, gateway.UpdateJobRequest{
		Status:         &status,
		ResultFragment: map[string]any{"reused": 1},
	}); err != nil {
		t.Fatalf("UpdateJob (terminal): %v", err)
	}

	final, err := client.GetJob(ctx, created.Handle)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if final.Status != string(store.JobStatusSuccess) || final.CompletedAt == nil {
		t.Fatalf("terminal state not recorded: %+v", final)
	}

	// Claiming again finds nothing; the job is already claimed.
	empty, err := client.ClaimJob(ctx, "worker-2", "standard")
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if empty != nil {
		t.Fatalf("expected empty queue, got %+v", empty)
	}
}

func TestQuotaSnapshotAndUsageLedger(t *testing.T) {
	st, client := newTestGateway(t)
	ctx := context.Background()

	snapshot, err := client.QuotaSnapshot(ctx, 11)
	if err != nil {
		t.Fatalf("QuotaSnapshot: %v", err)
	}
	if snapshot.StorageBytesLimit != -1 || snapshot.RenderSecondsLimit != -1 {
		t.Fatalf("expected unlimited defaults, got %+v", snapshot)
	}

	if err := client.RecordUsage(ctx, 11, 1, 90); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	snapshot, err = client.QuotaSnapshot(ctx, 11)
	if err != nil {
		t.Fatalf("QuotaSnapshot: %v", err)
	}
	if snapshot.RenderSecondsUsed != 90 {
		t.Fatalf("expected 90 render seconds used, got %d", snapshot.RenderSecondsUsed)
	}

	if _, err := st.CreateMedia(ctx, &store.Media{
		OwnerID:     11,
		Kind:        store.MediaKindClip,
		StoragePath: "/cache/x.mp4",
		SizeBytes:   1024,
	}); err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}
	snapshot, err = client.QuotaSnapshot(ctx, 11)
	if err != nil {
		t.Fatalf("QuotaSnapshot: %v", err)
	}
	if snapshot.StorageBytesUsed != 1024 {
		t.Fatalf("expected 1024 bytes used, got %d", snapshot.StorageBytesUsed)
	}
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	errors    []string
}

func (n *recordingNotifier) NotifyRunDispatched(context.Context, string, int64, int) error {
	return nil
}

func (n *recordingNotifier) NotifyRunSkipped(context.Context, string, string) error { return nil }

func (n *recordingNotifier) NotifyRunCompleted(_ context.Context, recipeName string, runID int64, outputPath string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, fmt.Sprintf("%s:%d:%s", recipeName, runID, outputPath))
	return nil
}

func (n *recordingNotifier) NotifyError(_ context.Context, err error, label string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, fmt.Sprintf("%s:%v", label, err))
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

var _ notifications.Service = (*recordingNotifier)(nil)

func TestTerminalRunTransitionNotifies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	srv, err := gateway.NewServer(cfg, st, nil, gateway.WithNotifier(notifier))
	if err != nil {
		t.Fatalf("gateway.NewServer: %v", err)
	}
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)
	client := gateway.NewClient(httpSrv.URL, cfg.Gateway.Token).WithHTTPClient(httpSrv.Client())
	ctx := context.Background()

	recipe := testsupport.NewRecipe(t, st, 5, "notify-runs")
	run := testsupport.NewRun(t, st, recipe)

	encoding := string(store.RunStatusEncoding)
	if err := client.UpdateRun(ctx, run.ID, gateway.UpdateRunRequest{Status: &encoding}); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	notifier.mu.Lock()
	quiet := len(notifier.completed) == 0 && len(notifier.errors) == 0
	notifier.mu.Unlock()
	if !quiet {
		t.Fatal("non-terminal transition must not notify")
	}

	completed := string(store.RunStatusCompleted)
	output := "/data/compilations/run-1.mp4"
	if err := client.UpdateRun(ctx, run.ID, gateway.UpdateRunRequest{Status: &completed, OutputPath: &output}); err != nil {
		t.Fatalf("UpdateRun (completed): %v", err)
	}
	notifier.mu.Lock()
	got := append([]string(nil), notifier.completed...)
	notifier.mu.Unlock()
	want := fmt.Sprintf("notify-runs:%d:%s", run.ID, output)
	if len(got) != 1 || got[0] != want {
		t.Fatalf("expected completion notification %q, got %v", want, got)
	}

	failing := testsupport.NewRun(t, st, recipe)
	failed := string(store.RunStatusFailed)
	if err := client.UpdateRun(ctx, failing.ID, gateway.UpdateRunRequest{Status: &failed}); err != nil {
		t.Fatalf("UpdateRun (failed): %v", err)
	}
	notifier.mu.Lock()
	gotErrs := append([]string(nil), notifier.errors...)
	notifier.mu.Unlock()
	if len(gotErrs) != 1 || !strings.Contains(gotErrs[0], "notify-runs") {
		t.Fatalf("expected failure notification for the recipe, got %v", gotErrs)
	}
}

func TestUpdateRunThroughGateway(t *testing.T) {
	st, client := newTestGateway(t)
	ctx := context.Background()

	recipe := testsupport.NewRecipe(t, st, 5, "gw-runs")
	run := testsupport.NewRun(t, st, recipe)

	status := string(store.RunStatusEncoding)
	if err := client.UpdateRun(ctx, run.ID, gateway.UpdateRunRequest{Status: &status}); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	updated, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if updated.Status != store.RunStatusEncoding {
		t.Fatalf("expected encoding, got %s", updated.Status)
	}

	bad := "exploded"
	if err := client.UpdateRun(ctx, run.ID, gateway.UpdateRunRequest{Status: &bad}); err == nil {
		t.Fatal("expected rejection of unknown run status")
	}
}
