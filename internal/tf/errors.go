package tf

import (
	"regexp"

	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/util"
)

// ErrorKind classifies a terraform failure so callers can decide how to
// surface it. None of these trigger automatic retries.
type ErrorKind string

const (
	// ErrorKindConfig covers missing or malformed inputs: var files, backend
	// records, invalid configuration.
	ErrorKindConfig ErrorKind = "configuration"

	// ErrorKindAuth covers invalid or expired cloud credentials.
	ErrorKindAuth ErrorKind = "authentication"

	// ErrorKindLock means the state is locked by a concurrent run. The remedy
	// is an operator-run force-unlock, never an automatic one.
	ErrorKindLock ErrorKind = "state-lock"

	// ErrorKindDrift means the live environment no longer matches the saved
	// plan; the run must be re-planned. Surfaced as a warning, not fatal.
	ErrorKindDrift ErrorKind = "drift"

	// ErrorKindUnknown is everything else.
	ErrorKindUnknown ErrorKind = "unknown"
)

// stderrMatchers maps known terraform error output to a classification and a
// remedy shown to the operator.
var stderrMatchers = []struct {
	re     *regexp.Regexp
	kind   ErrorKind
	remedy string
}{
	{
		re:     regexp.MustCompile(`(?s)Error acquiring the state lock`),
		kind:   ErrorKindLock,
		remedy: "another run holds the state lock; if it is stale, run `terraform force-unlock <lock-id>` in the layer directory",
	},
	{
		re:     regexp.MustCompile(`(?s)Saved plan is stale|stored plan does not match|Provider produced inconsistent final plan`),
		kind:   ErrorKindDrift,
		remedy: "the environment drifted since the plan was created; re-run plan and review the new diff",
	},
	{
		re:     regexp.MustCompile(`(?s)AADSTS\d+|Invalid client secret|failed to obtain a credential|building account: |No subscription ID`),
		kind:   ErrorKindAuth,
		remedy: "check ARM_CLIENT_ID, ARM_CLIENT_SECRET, ARM_TENANT_ID and ARM_SUBSCRIPTION_ID",
	},
	{
		re:     regexp.MustCompile(`(?s)Initialization required|Backend initialization required|Module source has changed|Failed to open var file|Given variables file .* does not exist`),
		kind:   ErrorKindConfig,
		remedy: "the working directory or its inputs are not initialized correctly",
	},
}

// ClassifiedError wraps a terraform failure with its classification and a
// suggested remedy.
type ClassifiedError struct {
	Err    error
	Kind   ErrorKind
	Remedy string
}

func (err *ClassifiedError) Error() string {
	return err.Err.Error()
}

func (err *ClassifiedError) Unwrap() error {
	return err.Err
}

func (err *ClassifiedError) ExitStatus() (int, error) {
	return util.GetExitCode(err.Err)
}

// ClassifyError inspects the failed command's stderr and wraps the error with
// what went wrong and what the operator can do about it. Non-process errors
// pass through unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var procErr util.ProcessExecutionError
	if !errors.As(err, &procErr) {
		return err
	}

	stderr := procErr.Output.Stderr.String()

	for _, matcher := range stderrMatchers {
		if matcher.re.MatchString(stderr) {
			return &ClassifiedError{
				Err:    err,
				Kind:   matcher.kind,
				Remedy: matcher.remedy,
			}
		}
	}

	return &ClassifiedError{Err: err, Kind: ErrorKindUnknown}
}
