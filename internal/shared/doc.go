// Package shared holds code used across packages that belongs to no single
// component.
//
// The testutil subpackage provides test helpers: a buffered slog handler
// for asserting on log output, and license fixtures such as generated
// vendor key pairs, a settable clock and state file paths.
//
//	func TestSomething(t *testing.T) {
//	    keys := testutil.NewKeyPair(t)
//	    clock := testutil.NewClock(time.Now())
//	    licensePath, quotaPath := testutil.StatePaths(t)
//	    ...
//	}
package shared
