package matrix

import (
	"fmt"
	"strings"

	"github.com/stratum-ci/stratum/internal/config"
	"github.com/stratum-ci/stratum/internal/errors"
)

// ProtectedEnvironmentError is returned when a destroy targets a protected
// environment. The guard fires before any terraform invocation.
type ProtectedEnvironmentError struct {
	Environment string
}

func (err ProtectedEnvironmentError) Error() string {
	return fmt.Sprintf("environment %q is protected and cannot be destroyed", err.Environment)
}

// ConfirmationError is returned when the destroy confirmation phrase does not
// match the required literal exactly.
type ConfirmationError struct {
	Environment string
}

func (err ConfirmationError) Error() string {
	return fmt.Sprintf("destroy not confirmed: pass --confirm %q to destroy environment %q",
		DestroyConfirmation(err.Environment), err.Environment)
}

// ErrReasonRequired is returned when a destroy request carries no reason text.
var ErrReasonRequired = errors.Errorf("destroy requires a reason (--reason)")

// DestroyConfirmation returns the exact literal a destroy of the given
// environment must be confirmed with.
func DestroyConfirmation(environment string) string {
	return "destroy-" + environment
}

// CheckDestroyAllowed rejects destroys of protected environments. No
// confirmation input can override this.
func CheckDestroyAllowed(env *config.Environment) error {
	if env.Protected {
		return errors.WithStackTrace(ProtectedEnvironmentError{Environment: env.Name})
	}

	return nil
}

// CheckDestroyConfirmed validates the free-text reason and the confirmation
// literal for a destroy of the given environment. Both checks run before any
// external tool is invoked.
func CheckDestroyConfirmed(environment, reason, confirmation string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}

	if confirmation != DestroyConfirmation(environment) {
		return errors.WithStackTrace(ConfirmationError{Environment: environment})
	}

	return nil
}
