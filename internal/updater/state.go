package updater

// State names one step of the update transaction. The transaction is
// strictly sequential: each state's action completes before the next begins.
type State string

const (
	StateIdle             State = "Idle"
	StateCheckingVersion  State = "CheckingVersion"
	StateDownloading      State = "Downloading"
	StateVerifying        State = "Verifying"
	StateStoppingTarget   State = "StoppingTarget"
	StateBackingUp        State = "BackingUp"
	StateInstalling       State = "Installing"
	StateVerifyingInstall State = "VerifyingInstall"
	StateRollingBack      State = "RollingBack"
	StateDone             State = "Done"
)

// mutated reports whether the state belongs to the phase where a backup
// exists and failures must be answered with a rollback. Everything before
// BackingUp aborts with zero filesystem change instead.
func (s State) mutated() bool {
	switch s {
	case StateBackingUp, StateInstalling, StateVerifyingInstall, StateRollingBack:
		return true
	}
	return false
}
