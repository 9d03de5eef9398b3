// Package updater orchestrates one update attempt as a sequential
// transaction: check, download, verify, stop the target, back up, install,
// verify the install, and roll back on failure.
package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lonhq/lonup/internal/backup"
	"github.com/lonhq/lonup/internal/checksum"
	"github.com/lonhq/lonup/internal/config"
	"github.com/lonhq/lonup/internal/fetch"
	"github.com/lonhq/lonup/internal/install"
	"github.com/lonhq/lonup/internal/lockfile"
	"github.com/lonhq/lonup/internal/procctl"
	"github.com/lonhq/lonup/internal/version"
)

// ErrDeclined indicates the operator answered no at the confirmation prompt.
var ErrDeclined = errors.New("update declined")

// ReleaseSource resolves release metadata and downloads release artifacts.
type ReleaseSource interface {
	ResolveLatest(ctx context.Context, manifestURL, fallbackChecksumURL string) (*fetch.Release, error)
	ExpectedDigest(ctx context.Context, rel *fetch.Release) (string, error)
	Download(ctx context.Context, rawURL, dir string) (*fetch.Artifact, error)
}

// ProcessController stops the target process before the binary is replaced.
type ProcessController interface {
	Stop(ctx context.Context, name string, timeout time.Duration) error
}

// BackupStore preserves and restores copies of the installed executable.
type BackupStore interface {
	Create(installPath, fromVersion string) (*backup.Record, error)
	Restore(rec *backup.Record) error
	Prune(keep int) (*backup.PruneResult, error)
}

// BinaryInstaller swaps a verified artifact into the install path.
type BinaryInstaller interface {
	Install(artifactPath, installPath string) error
}

// Unlocker releases a held update lock.
type Unlocker interface {
	Release() error
}

// Prompter asks the operator a yes/no question.
type Prompter interface {
	Confirm(question string) (bool, error)
}

// LockFunc acquires the exclusive update lock for an install path.
type LockFunc func(installPath string) (Unlocker, error)

// Result is the full account of one update attempt.
type Result struct {
	Outcome      Outcome
	FromVersion  string
	ToVersion    string
	BackupPath   string
	ArtifactPath string // retained artifact, set only when kept for diagnostics
	Err          error
}

// CheckInfo reports what an update attempt would do, without doing it.
type CheckInfo struct {
	InstalledVersion string `json:"installed_version"`
	LatestVersion    string `json:"latest_version"`
	UpdateAvailable  bool   `json:"update_available"`
	DownloadURL      string `json:"download_url"`
}

// Updater runs the update transaction. Collaborators default to the real
// implementations; options replace them in tests.
type Updater struct {
	cfg       *config.Config
	logger    *log.Logger
	source    ReleaseSource
	procs     ProcessController
	backups   BackupStore
	installer BinaryInstaller
	lock      LockFunc
	prompter  Prompter
	assumeYes bool
	state     State
}

// Option configures an Updater during construction.
type Option func(*Updater)

// WithReleaseSource replaces the release source.
func WithReleaseSource(s ReleaseSource) Option {
	return func(u *Updater) { u.source = s }
}

// WithProcessController replaces the process controller.
func WithProcessController(p ProcessController) Option {
	return func(u *Updater) { u.procs = p }
}

// WithBackupStore replaces the backup store.
func WithBackupStore(b BackupStore) Option {
	return func(u *Updater) { u.backups = b }
}

// WithInstaller replaces the binary installer.
func WithInstaller(i BinaryInstaller) Option {
	return func(u *Updater) { u.installer = i }
}

// WithLockFunc replaces the lock acquisition function.
func WithLockFunc(fn LockFunc) Option {
	return func(u *Updater) { u.lock = fn }
}

// WithPrompter replaces the confirmation prompter.
func WithPrompter(p Prompter) Option {
	return func(u *Updater) { u.prompter = p }
}

// WithAssumeYes skips the confirmation prompt.
func WithAssumeYes(yes bool) Option {
	return func(u *Updater) { u.assumeYes = yes }
}

// New creates an Updater for the given configuration.
func New(cfg *config.Config, logger *log.Logger, opts ...Option) *Updater {
	u := &Updater{
		cfg:    cfg,
		logger: logger,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(u)
	}

	if u.source == nil {
		u.source = fetch.New(cfg.DownloadTimeout())
	}
	if u.procs == nil {
		u.procs = procctl.New()
	}
	if u.backups == nil {
		u.backups = backup.NewManager(cfg.BackupPath)
	}
	if u.installer == nil {
		u.installer = install.New()
	}
	if u.lock == nil {
		u.lock = func(installPath string) (Unlocker, error) {
			return lockfile.Acquire(installPath)
		}
	}

	return u
}

// Check resolves the latest release and reports whether it is newer than the
// installed version. Nothing is downloaded and nothing is modified.
func (u *Updater) Check(ctx context.Context) (*CheckInfo, error) {
	rel, err := u.source.ResolveLatest(ctx, u.cfg.ReleasesURL, u.cfg.ChecksumURL)
	if err != nil {
		return nil, err
	}

	cmp, err := version.Compare(rel.Version, u.cfg.MinVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to compare versions: %w", err)
	}

	return &CheckInfo{
		InstalledVersion: version.Normalize(u.cfg.MinVersion),
		LatestVersion:    version.Normalize(rel.Version),
		UpdateAvailable:  cmp > 0,
		DownloadURL:      rel.DownloadURL,
	}, nil
}

// Run executes one full update attempt and always returns a terminal Result.
// The returned Result's Err holds the failure cause for non-success outcomes;
// Run itself never panics out of the transaction.
func (u *Updater) Run(ctx context.Context) *Result {
	res := u.run(ctx)
	u.transition(StateDone)
	if res.Err != nil {
		u.logger.Error("update finished", "outcome", res.Outcome, "error", res.Err)
	} else {
		u.logger.Info("update finished", "outcome", res.Outcome)
	}
	return res
}

func (u *Updater) run(ctx context.Context) *Result {
	res := &Result{FromVersion: version.Normalize(u.cfg.MinVersion)}

	u.transition(StateCheckingVersion)
	rel, err := u.source.ResolveLatest(ctx, u.cfg.ReleasesURL, u.cfg.ChecksumURL)
	if err != nil {
		return u.abort(res, nil, err)
	}
	res.ToVersion = version.Normalize(rel.Version)

	cmp, err := version.Compare(rel.Version, u.cfg.MinVersion)
	if err != nil {
		return u.abort(res, nil, fmt.Errorf("failed to compare versions: %w", err))
	}
	if cmp <= 0 {
		u.logger.Info("already up to date", "installed", res.FromVersion, "latest", res.ToVersion)
		res.Outcome = OutcomeNoUpdateAvailable
		return res
	}
	u.logger.Info("update available", "installed", res.FromVersion, "latest", res.ToVersion)

	u.transition(StateDownloading)
	expected, err := u.source.ExpectedDigest(ctx, rel)
	if err != nil {
		return u.abort(res, nil, err)
	}

	artifact, err := u.source.Download(ctx, rel.DownloadURL, os.TempDir())
	if err != nil {
		return u.abort(res, nil, err)
	}
	u.logger.Info("downloaded candidate", "path", artifact.Path, "bytes", artifact.Size)

	u.transition(StateVerifying)
	if !strings.EqualFold(artifact.Digest, expected) {
		return u.abort(res, artifact, &checksum.MismatchError{
			Path:     artifact.Path,
			Expected: strings.ToLower(expected),
			Got:      artifact.Digest,
		})
	}

	// The published release can match what is already on disk, for example
	// after a re-run that was interrupted past install. Nothing to do then.
	if installed, err := checksum.Digest(u.cfg.InstallPath); err == nil && strings.EqualFold(installed, expected) {
		u.logger.Info("installed binary already matches release digest")
		u.removeArtifact(artifact)
		res.Outcome = OutcomeNoUpdateAvailable
		return res
	}

	if err := ctx.Err(); err != nil {
		return u.abort(res, artifact, err)
	}

	if !u.assumeYes && u.prompter != nil {
		question := fmt.Sprintf("Update %s from %s to %s?", u.cfg.ProcessName, res.FromVersion, res.ToVersion)
		ok, err := u.prompter.Confirm(question)
		if err != nil {
			return u.abort(res, artifact, fmt.Errorf("confirmation failed: %w", err))
		}
		if !ok {
			return u.abort(res, artifact, ErrDeclined)
		}
	}

	unlock, err := u.lock(u.cfg.InstallPath)
	if err != nil {
		return u.abort(res, artifact, err)
	}
	defer func() {
		if err := unlock.Release(); err != nil {
			u.logger.Warn("failed to release update lock", "error", err)
		}
	}()

	u.transition(StateStoppingTarget)
	if err := u.procs.Stop(ctx, u.cfg.ProcessName, u.cfg.StopTimeout()); err != nil {
		return u.abort(res, artifact, err)
	}

	// From here on the transaction mutates the installation. Failures are
	// answered with a rollback, not an abort. Backup creation itself is the
	// boundary: if it fails nothing has been touched yet.
	u.transition(StateBackingUp)
	rec, err := u.backups.Create(u.cfg.InstallPath, res.FromVersion)
	if err != nil {
		return u.abort(res, artifact, err)
	}
	res.BackupPath = rec.Path
	u.logger.Info("backed up installed binary", "backup", rec.Path)

	u.transition(StateInstalling)
	if err := u.installer.Install(artifact.Path, u.cfg.InstallPath); err != nil {
		return u.rollback(res, artifact, rec, err)
	}

	u.transition(StateVerifyingInstall)
	if err := checksum.Verify(u.cfg.InstallPath, expected); err != nil {
		return u.rollback(res, artifact, rec, err)
	}
	u.logger.Info("installed binary verified", "path", u.cfg.InstallPath, "sha256", expected)

	if pruned, err := u.backups.Prune(u.cfg.RetainedBackups()); err != nil {
		u.logger.Warn("backup pruning failed", "error", err)
	} else if len(pruned.Deleted) > 0 {
		u.logger.Info("pruned old backups", "deleted", len(pruned.Deleted), "kept", pruned.Kept)
	}

	u.removeArtifact(artifact)
	res.Outcome = OutcomeSuccess
	return res
}

// abort ends the attempt with zero change to the installation. The artifact,
// if one was downloaded, is discarded.
func (u *Updater) abort(res *Result, artifact *fetch.Artifact, cause error) *Result {
	if artifact != nil {
		u.removeArtifact(artifact)
	}
	res.Outcome = OutcomeAbortedBeforeChange
	res.Err = cause
	return res
}

// rollback restores the backup over the install path. The downloaded
// artifact is retained for diagnostics either way.
func (u *Updater) rollback(res *Result, artifact *fetch.Artifact, rec *backup.Record, cause error) *Result {
	u.transition(StateRollingBack)
	u.logger.Warn("update failed, rolling back", "error", cause)

	res.ArtifactPath = artifact.Path

	if restoreErr := u.backups.Restore(rec); restoreErr != nil {
		u.logger.Error("rollback failed, installation needs manual repair",
			"backup", rec.Path, "error", restoreErr)
		res.Outcome = OutcomeRollbackFailed
		res.Err = errors.Join(cause, restoreErr)
		return res
	}

	u.logger.Info("rolled back to previous binary", "backup", rec.Path)
	res.Outcome = OutcomeRolledBack
	res.Err = cause
	return res
}

func (u *Updater) removeArtifact(artifact *fetch.Artifact) {
	if err := artifact.Remove(); err != nil && !os.IsNotExist(err) {
		u.logger.Warn("failed to remove downloaded artifact", "path", artifact.Path, "error", err)
	}
}

func (u *Updater) transition(next State) {
	u.logger.Debug("state transition", "from", u.state, "to", next)
	u.state = next
}
