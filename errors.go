package graphbolt

import (
	"errors"
	"fmt"

	"github.com/atsika/graphbolt/bolt"
	"github.com/atsika/graphbolt/pool"
	"github.com/atsika/graphbolt/router"
)

// Neo4jError is every server FAILURE and every locally synthesized
// transport error, classified per the taxonomy of spec.md §7
// (bolt.Classification: ClientError, TransientError, DatabaseError,
// ServiceUnavailable, SessionExpired, ProtocolError, SecurityError). The
// classification table itself lives in bolt/errors.go to avoid an import
// cycle (the response pipeline needs to build these before this package
// ever sees them). Sentinel-var-plus-%w-wrapping style matches
// aznet.go's Err* block.
type Neo4jError = bolt.Neo4jError

// Classification re-exports bolt.Classification for callers that want to
// switch on the error's category without importing bolt directly.
type Classification = bolt.Classification

const (
	ClassClientError       = bolt.ClassClientError
	ClassTransientError     = bolt.ClassTransientError
	ClassDatabaseError      = bolt.ClassDatabaseError
	ClassServiceUnavailable = bolt.ClassServiceUnavailable
	ClassSessionExpired     = bolt.ClassSessionExpired
	ClassProtocolError      = bolt.ClassProtocolError
	ClassSecurityError      = bolt.ClassSecurityError
)

var (
	// ErrInvalidConfig is returned by Config.Validate for nonsensical
	// option combinations.
	ErrInvalidConfig = errors.New("graphbolt: invalid configuration")
	// ErrDriverClosed is returned by any operation attempted after the
	// Driver's Close has been called.
	ErrDriverClosed = errors.New("graphbolt: driver is closed")
	// ErrNoAddressResolved names the case of a URI whose DNS resolution
	// yields no usable address. No function in this package returns it;
	// resolution failures surface as the dial error instead.
	ErrNoAddressResolved = errors.New("graphbolt: no address resolved for URI")
	// ErrTransactionClosed is returned by any operation attempted on a
	// transaction that already committed or rolled back.
	ErrTransactionClosed = errors.New("graphbolt: transaction is already closed")
	// ErrSessionClosed is returned by any operation attempted on a session
	// that has already been closed.
	ErrSessionClosed = errors.New("graphbolt: session is already closed")
	// ErrTransactionAlreadyOpen is returned by Run or BeginTransaction when
	// a session already has an explicit transaction open.
	ErrTransactionAlreadyOpen = errors.New("graphbolt: session already has an open transaction")
)

// Classify exposes bolt.ClassifyCode for callers inspecting a raw server
// code (e.g. from a test harness) without depending on the bolt package
// directly.
func Classify(code string) (bolt.Classification, bool) { return bolt.ClassifyCode(code) }

// IsRetryable reports whether err (or any error it wraps) is classified as
// retryable, per spec.md §4.8.
func IsRetryable(err error) bool { return bolt.IsRetryable(err) }

// AsNeo4jError unwraps err to a *bolt.Neo4jError, if any is present in its
// chain.
func AsNeo4jError(err error) (*bolt.Neo4jError, bool) {
	var ne *bolt.Neo4jError
	ok := errors.As(err, &ne)
	return ne, ok
}

func wrapConnect(address string, err error) error {
	return fmt.Errorf("graphbolt: connect to %s: %w", address, err)
}

// wrapInfraRetryable converts pool/router sentinel errors that spec.md
// §4.8 names as retryable (a timed-out acquisition, a routing table with no
// known router or no server for the requested role) into a
// *bolt.Neo4jError, so they reach the retry engine's bolt.IsRetryable
// classifier as retryable instead of as opaque, never-retried sentinels.
func wrapInfraRetryable(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, pool.ErrAcquisitionTimeout),
		errors.Is(err, router.ErrNoRouters),
		errors.Is(err, router.ErrNoServers):
		return bolt.NewServiceUnavailableError(err)
	default:
		return err
	}
}
