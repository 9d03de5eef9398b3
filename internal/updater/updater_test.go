package updater

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lonhq/lonup/internal/backup"
	"github.com/lonhq/lonup/internal/checksum"
	"github.com/lonhq/lonup/internal/config"
	"github.com/lonhq/lonup/internal/fetch"
	"github.com/lonhq/lonup/internal/install"
	"github.com/lonhq/lonup/internal/lockfile"
	"github.com/lonhq/lonup/internal/procctl"
)

// fakeSource serves a canned release and artifact without any network.
type fakeSource struct {
	rel         *fetch.Release
	resolveErr  error
	digest      string
	digestErr   error
	data        []byte
	downloadErr error
}

func (s *fakeSource) ResolveLatest(_ context.Context, _, _ string) (*fetch.Release, error) {
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	return s.rel, nil
}

func (s *fakeSource) ExpectedDigest(_ context.Context, _ *fetch.Release) (string, error) {
	if s.digestErr != nil {
		return "", s.digestErr
	}
	return s.digest, nil
}

func (s *fakeSource) Download(_ context.Context, _, dir string) (*fetch.Artifact, error) {
	if s.downloadErr != nil {
		return nil, s.downloadErr
	}
	tmp, err := os.CreateTemp(dir, "lonup-test-*")
	if err != nil {
		return nil, err
	}
	if _, err := tmp.Write(s.data); err != nil {
		_ = tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(s.data)
	return &fetch.Artifact{
		Path:   tmp.Name(),
		Digest: hex.EncodeToString(sum[:]),
		Size:   int64(len(s.data)),
	}, nil
}

// fakeProcs records whether a stop was requested.
type fakeProcs struct {
	stopped bool
	stopErr error
}

func (p *fakeProcs) Stop(_ context.Context, _ string, _ time.Duration) error {
	if p.stopErr != nil {
		return p.stopErr
	}
	p.stopped = true
	return nil
}

// brokenInstaller fails every install, leaving the install path untouched.
type brokenInstaller struct{ err error }

func (i *brokenInstaller) Install(_, _ string) error { return i.err }

// corruptingInstaller writes different bytes than the artifact, so the
// post-install verification must fail.
type corruptingInstaller struct{}

func (corruptingInstaller) Install(_, installPath string) error {
	return os.WriteFile(installPath, []byte("corrupted during install"), 0755)
}

// sabotagedBackups delegates to a real manager but refuses to restore.
type sabotagedBackups struct {
	*backup.Manager
	restoreErr error
}

func (b *sabotagedBackups) Restore(_ *backup.Record) error { return b.restoreErr }

type fakePrompter struct {
	answer bool
	err    error
	asked  bool
}

func (p *fakePrompter) Confirm(_ string) (bool, error) {
	p.asked = true
	return p.answer, p.err
}

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type fixture struct {
	cfg    *config.Config
	source *fakeSource
	procs  *fakeProcs
	old    []byte
	new    []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	oldBin := []byte("binary contents v1.0.0")
	newBin := []byte("binary contents v1.1.0")

	installPath := filepath.Join(dir, "lon")
	if err := os.WriteFile(installPath, oldBin, 0755); err != nil {
		t.Fatalf("Failed to seed install path: %v", err)
	}

	return &fixture{
		cfg: &config.Config{
			ReleasesURL: "https://releases.example.com/latest.json",
			ProcessName: "lon",
			InstallPath: installPath,
			BackupPath:  filepath.Join(dir, "backups"),
			MinVersion:  "1.0.0",
		},
		source: &fakeSource{
			rel:    &fetch.Release{Version: "1.1.0", DownloadURL: "https://releases.example.com/lon"},
			digest: digestOf(newBin),
			data:   newBin,
		},
		procs: &fakeProcs{},
		old:   oldBin,
		new:   newBin,
	}
}

func (f *fixture) updater(t *testing.T, extra ...Option) *Updater {
	t.Helper()
	opts := []Option{
		WithReleaseSource(f.source),
		WithProcessController(f.procs),
		WithAssumeYes(true),
	}
	opts = append(opts, extra...)
	return New(f.cfg, log.New(io.Discard), opts...)
}

func (f *fixture) installedContent(t *testing.T) []byte {
	t.Helper()
	content, err := os.ReadFile(f.cfg.InstallPath)
	if err != nil {
		t.Fatalf("Failed to read install path: %v", err)
	}
	return content
}

// Scenario: clean update from 1.0.0 to 1.1.0.
func TestRun_Success(t *testing.T) {
	f := newFixture(t)

	res := f.updater(t).Run(context.Background())

	if res.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %v (err %v), want Success", res.Outcome, res.Err)
	}
	if res.Err != nil {
		t.Errorf("Err = %v, want nil", res.Err)
	}
	if res.FromVersion != "1.0.0" || res.ToVersion != "1.1.0" {
		t.Errorf("versions = %s -> %s, want 1.0.0 -> 1.1.0", res.FromVersion, res.ToVersion)
	}
	if !f.procs.stopped {
		t.Error("Target process was not stopped before install")
	}
	if string(f.installedContent(t)) != string(f.new) {
		t.Error("Install path does not hold the new binary")
	}

	// A backup of the old binary exists.
	if res.BackupPath == "" {
		t.Fatal("Result names no backup")
	}
	backedUp, err := os.ReadFile(res.BackupPath)
	if err != nil {
		t.Fatalf("Failed to read backup: %v", err)
	}
	if string(backedUp) != string(f.old) {
		t.Error("Backup does not hold the prior binary")
	}

	// The downloaded artifact was cleaned up.
	if res.ArtifactPath != "" {
		t.Errorf("ArtifactPath = %s, want empty on success", res.ArtifactPath)
	}
	if res.Outcome.ExitCode() != 0 {
		t.Errorf("ExitCode = %d, want 0", res.Outcome.ExitCode())
	}
}

// Scenario: the published version is not newer; nothing is touched.
func TestRun_NoUpdateAvailable(t *testing.T) {
	f := newFixture(t)
	f.source.rel.Version = "1.0.0"

	res := f.updater(t).Run(context.Background())

	if res.Outcome != OutcomeNoUpdateAvailable {
		t.Fatalf("Outcome = %v, want NoUpdateAvailable", res.Outcome)
	}
	if f.procs.stopped {
		t.Error("Target process must not be stopped when there is no update")
	}
	if string(f.installedContent(t)) != string(f.old) {
		t.Error("Install path was modified")
	}
	if res.Outcome.ExitCode() != 0 {
		t.Errorf("ExitCode = %d, want 0", res.Outcome.ExitCode())
	}
}

// A newer advertised version whose payload is byte-identical to the installed
// binary is a no-op, not a reinstall.
func TestRun_ByteIdenticalPayload(t *testing.T) {
	f := newFixture(t)
	f.source.data = f.old
	f.source.digest = digestOf(f.old)

	res := f.updater(t).Run(context.Background())

	if res.Outcome != OutcomeNoUpdateAvailable {
		t.Fatalf("Outcome = %v (err %v), want NoUpdateAvailable", res.Outcome, res.Err)
	}
	if f.procs.stopped {
		t.Error("Target process must not be stopped for a byte-identical payload")
	}
}

// Scenario: downloaded artifact fails checksum verification; hard abort
// before any change.
func TestRun_ChecksumMismatch(t *testing.T) {
	f := newFixture(t)
	f.source.digest = digestOf([]byte("something else entirely"))

	res := f.updater(t).Run(context.Background())

	if res.Outcome != OutcomeAbortedBeforeChange {
		t.Fatalf("Outcome = %v, want AbortedBeforeChange", res.Outcome)
	}
	if !errors.Is(res.Err, checksum.ErrMismatch) {
		t.Errorf("Err = %v, want checksum mismatch", res.Err)
	}
	var mismatch *checksum.MismatchError
	if !errors.As(res.Err, &mismatch) {
		t.Fatal("Err should carry the expected and actual digests")
	}
	if mismatch.Expected == mismatch.Got {
		t.Error("MismatchError digests should differ")
	}

	if f.procs.stopped {
		t.Error("Target process must not be stopped after a failed verification")
	}
	if string(f.installedContent(t)) != string(f.old) {
		t.Error("Install path was modified")
	}
	if res.Outcome.ExitCode() != 2 {
		t.Errorf("ExitCode = %d, want 2", res.Outcome.ExitCode())
	}
}

// Scenario: network failure while resolving the release.
func TestRun_ResolveFails(t *testing.T) {
	f := newFixture(t)
	f.source.resolveErr = &fetch.NetworkError{URL: f.cfg.ReleasesURL, Err: errors.New("connection refused")}

	res := f.updater(t).Run(context.Background())

	if res.Outcome != OutcomeAbortedBeforeChange {
		t.Fatalf("Outcome = %v, want AbortedBeforeChange", res.Outcome)
	}
	if !errors.Is(res.Err, fetch.ErrNetwork) {
		t.Errorf("Err = %v, want network error", res.Err)
	}
}

// Scenario: the target process survives the stop timeout.
func TestRun_ProcessStillRunning(t *testing.T) {
	f := newFixture(t)
	f.procs.stopErr = fmt.Errorf("%w: lon", procctl.ErrStillRunning)

	res := f.updater(t).Run(context.Background())

	if res.Outcome != OutcomeAbortedBeforeChange {
		t.Fatalf("Outcome = %v, want AbortedBeforeChange", res.Outcome)
	}
	if !errors.Is(res.Err, procctl.ErrStillRunning) {
		t.Errorf("Err = %v, want ErrStillRunning", res.Err)
	}
	if string(f.installedContent(t)) != string(f.old) {
		t.Error("Install path was modified")
	}
}

// Scenario: install fails after backup; the previous binary is restored
// byte-identically.
func TestRun_InstallFailsRollsBack(t *testing.T) {
	f := newFixture(t)
	injected := errors.New("injected install fault")

	res := f.updater(t, WithInstaller(&brokenInstaller{err: injected})).Run(context.Background())

	if res.Outcome != OutcomeRolledBack {
		t.Fatalf("Outcome = %v (err %v), want RolledBack", res.Outcome, res.Err)
	}
	if !errors.Is(res.Err, injected) {
		t.Errorf("Err = %v, want injected fault", res.Err)
	}
	if string(f.installedContent(t)) != string(f.old) {
		t.Error("Install path must hold the prior binary byte for byte after rollback")
	}
	if res.ArtifactPath == "" {
		t.Error("Artifact should be retained for diagnostics after a rollback")
	} else {
		_ = os.Remove(res.ArtifactPath)
	}
	if res.Outcome.ExitCode() != 3 {
		t.Errorf("ExitCode = %d, want 3", res.Outcome.ExitCode())
	}
}

// Scenario: the installed binary fails post-install verification; rollback.
func TestRun_InstallVerificationFailsRollsBack(t *testing.T) {
	f := newFixture(t)

	res := f.updater(t, WithInstaller(corruptingInstaller{})).Run(context.Background())

	if res.Outcome != OutcomeRolledBack {
		t.Fatalf("Outcome = %v (err %v), want RolledBack", res.Outcome, res.Err)
	}
	if !errors.Is(res.Err, checksum.ErrMismatch) {
		t.Errorf("Err = %v, want checksum mismatch", res.Err)
	}
	if string(f.installedContent(t)) != string(f.old) {
		t.Error("Install path must hold the prior binary after rollback")
	}
	if res.ArtifactPath != "" {
		_ = os.Remove(res.ArtifactPath)
	}
}

// Scenario: both the install and the restore fail; the loudest outcome.
func TestRun_RollbackFails(t *testing.T) {
	f := newFixture(t)
	installErr := errors.New("injected install fault")
	restoreErr := fmt.Errorf("%w: disk gone", backup.ErrRestoreFailed)

	store := &sabotagedBackups{
		Manager:    backup.NewManager(f.cfg.BackupPath),
		restoreErr: restoreErr,
	}

	res := f.updater(t,
		WithInstaller(&brokenInstaller{err: installErr}),
		WithBackupStore(store),
	).Run(context.Background())

	if res.Outcome != OutcomeRollbackFailed {
		t.Fatalf("Outcome = %v, want RollbackFailed", res.Outcome)
	}
	if !errors.Is(res.Err, installErr) || !errors.Is(res.Err, backup.ErrRestoreFailed) {
		t.Errorf("Err = %v, want both the install fault and the restore failure", res.Err)
	}
	if res.ArtifactPath != "" {
		_ = os.Remove(res.ArtifactPath)
	}
	if res.Outcome.ExitCode() != 4 {
		t.Errorf("ExitCode = %d, want 4", res.Outcome.ExitCode())
	}
}

// Scenario: the operator declines the confirmation prompt.
func TestRun_Declined(t *testing.T) {
	f := newFixture(t)
	prompter := &fakePrompter{answer: false}

	res := f.updater(t, WithAssumeYes(false), WithPrompter(prompter)).Run(context.Background())

	if res.Outcome != OutcomeAbortedBeforeChange {
		t.Fatalf("Outcome = %v, want AbortedBeforeChange", res.Outcome)
	}
	if !errors.Is(res.Err, ErrDeclined) {
		t.Errorf("Err = %v, want ErrDeclined", res.Err)
	}
	if !prompter.asked {
		t.Error("Prompter was never consulted")
	}
	if f.procs.stopped {
		t.Error("Target process must not be stopped after a decline")
	}
}

func TestRun_AssumeYesSkipsPrompt(t *testing.T) {
	f := newFixture(t)
	prompter := &fakePrompter{answer: false}

	res := f.updater(t, WithAssumeYes(true), WithPrompter(prompter)).Run(context.Background())

	if res.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %v (err %v), want Success", res.Outcome, res.Err)
	}
	if prompter.asked {
		t.Error("Prompter must not be consulted with assume-yes")
	}
}

// Scenario: another attempt holds the update lock; abort before any change.
func TestRun_LockContention(t *testing.T) {
	f := newFixture(t)

	held, err := lockfile.Acquire(f.cfg.InstallPath)
	if err != nil {
		t.Fatalf("Failed to pre-acquire lock: %v", err)
	}
	defer func() { _ = held.Release() }()

	res := f.updater(t).Run(context.Background())

	if res.Outcome != OutcomeAbortedBeforeChange {
		t.Fatalf("Outcome = %v, want AbortedBeforeChange", res.Outcome)
	}
	if !errors.Is(res.Err, lockfile.ErrHeld) {
		t.Errorf("Err = %v, want ErrHeld", res.Err)
	}
	if f.procs.stopped {
		t.Error("Target process must not be stopped while the lock is held")
	}
}

// The lock is released on success so a subsequent attempt can run.
func TestRun_LockReleased(t *testing.T) {
	f := newFixture(t)

	res := f.updater(t).Run(context.Background())
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %v (err %v), want Success", res.Outcome, res.Err)
	}

	lock, err := lockfile.Acquire(f.cfg.InstallPath)
	if err != nil {
		t.Fatalf("Lock still held after a finished attempt: %v", err)
	}
	_ = lock.Release()
}

// Cancellation before the stop phase aborts cleanly.
func TestRun_ContextCancelled(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.updater(t).Run(ctx)

	if res.Outcome != OutcomeAbortedBeforeChange {
		t.Fatalf("Outcome = %v, want AbortedBeforeChange", res.Outcome)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", res.Err)
	}
	if string(f.installedContent(t)) != string(f.old) {
		t.Error("Install path was modified")
	}
}

// Repeated failed attempts reuse the same backup slot instead of piling up
// copies; a retry after a rollback still succeeds.
func TestRun_RetryAfterRollback(t *testing.T) {
	f := newFixture(t)

	first := f.updater(t, WithInstaller(&brokenInstaller{err: errors.New("fault")})).Run(context.Background())
	if first.Outcome != OutcomeRolledBack {
		t.Fatalf("first Outcome = %v, want RolledBack", first.Outcome)
	}
	if first.ArtifactPath != "" {
		_ = os.Remove(first.ArtifactPath)
	}

	second := f.updater(t, WithInstaller(install.New())).Run(context.Background())
	if second.Outcome != OutcomeSuccess {
		t.Fatalf("second Outcome = %v (err %v), want Success", second.Outcome, second.Err)
	}
	if string(f.installedContent(t)) != string(f.new) {
		t.Error("Install path does not hold the new binary after retry")
	}
}

func TestCheck(t *testing.T) {
	f := newFixture(t)

	info, err := f.updater(t).Check(context.Background())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !info.UpdateAvailable {
		t.Error("UpdateAvailable = false, want true")
	}
	if info.InstalledVersion != "1.0.0" || info.LatestVersion != "1.1.0" {
		t.Errorf("versions = %s / %s, want 1.0.0 / 1.1.0", info.InstalledVersion, info.LatestVersion)
	}

	f.source.rel.Version = "0.9.0"
	info, err = f.updater(t).Check(context.Background())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if info.UpdateAvailable {
		t.Error("UpdateAvailable = true for an older release")
	}
}

func TestOutcomeStrings(t *testing.T) {
	cases := map[Outcome]string{
		OutcomeNoUpdateAvailable:   "no-update-available",
		OutcomeSuccess:             "success",
		OutcomeAbortedBeforeChange: "aborted-before-change",
		OutcomeRolledBack:          "rolled-back",
		OutcomeRollbackFailed:      "rollback-failed",
	}
	for outcome, want := range cases {
		if got := outcome.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", outcome, got, want)
		}
	}
}
