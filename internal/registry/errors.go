package registry

import (
	"fmt"

	"github.com/cloudbind/tokend/internal/endpoint"
)

// NotRegisteredError reports a lookup for an identity that was never
// successfully registered. This is a usage error on the caller's side:
// tokens are looked up only after their registration resolved.
type NotRegisteredError struct {
	Identity endpoint.Identity
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("no token registered for endpoint: %s", e.Identity.Describe())
}
