// Package tf invokes the wrapped terraform binary and interprets its exit
// codes and error output.
package tf

const (
	// TF commands used by stratum.

	CommandNameInit        = "init"
	CommandNamePlan        = "plan"
	CommandNameApply       = "apply"
	CommandNameDestroy     = "destroy"
	CommandNameValidate    = "validate"
	CommandNameVersion     = "version"
	CommandNameForceUnlock = "force-unlock"

	// TF flags.

	FlagNameDetailedExitCode = "-detailed-exitcode"
	FlagNameAutoApprove      = "-auto-approve"
	FlagNameInput            = "-input=false"
	FlagNameNoColor          = "-no-color"
	FlagNameReconfigure      = "-reconfigure"
	FlagNameDestroy          = "-destroy"
	FlagNameJSON             = "-json"
	FlagNameVarFileFmt       = "-var-file=%s"
	FlagNameBackendConfigFmt = "-backend-config=%s=%s"
)

// Exit codes of plan runs with -detailed-exitcode.
const (
	ExitCodeNoChanges = 0
	ExitCodeError     = 1
	ExitCodeChanges   = 2
)
