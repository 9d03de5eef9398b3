package updater

// Outcome is the terminal result classification of one update attempt.
// Exactly one outcome is produced per invocation.
type Outcome int

const (
	// OutcomeNoUpdateAvailable means the resolved release is not newer than
	// the installed version; nothing was touched.
	OutcomeNoUpdateAvailable Outcome = iota

	// OutcomeSuccess means the new binary is installed and verified.
	OutcomeSuccess

	// OutcomeAbortedBeforeChange means the attempt stopped before any
	// filesystem mutation; the installation is exactly as it was.
	OutcomeAbortedBeforeChange

	// OutcomeRolledBack means a failure after backup was answered by
	// restoring the previous binary.
	OutcomeRolledBack

	// OutcomeRollbackFailed means both the install and the restore failed;
	// the installation is in an unknown state and needs manual repair.
	OutcomeRollbackFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoUpdateAvailable:
		return "no-update-available"
	case OutcomeSuccess:
		return "success"
	case OutcomeAbortedBeforeChange:
		return "aborted-before-change"
	case OutcomeRolledBack:
		return "rolled-back"
	case OutcomeRollbackFailed:
		return "rollback-failed"
	}
	return "unknown"
}

// ExitCode maps the outcome to the process exit code contract: 0 when
// nothing needs attention, distinct non-zero codes so calling tooling can
// tell "nothing changed" from "changed back" from "needs manual repair".
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeNoUpdateAvailable, OutcomeSuccess:
		return 0
	case OutcomeAbortedBeforeChange:
		return 2
	case OutcomeRolledBack:
		return 3
	case OutcomeRollbackFailed:
		return 4
	}
	return 1
}
