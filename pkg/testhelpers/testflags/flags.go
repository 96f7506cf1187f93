package testflags

import (
	"flag"
	"testing"
)

// Test enablement flags.
// Unit and integration tests run by default; large sealing runs require -slow.
var integrationTest = flag.Bool("integration", true, "Run the integration go tests")
var unitTest = flag.Bool("unit", true, "Run the unit go tests")
var slowTest = flag.Bool("slow", false, "Run the go tests that seal large graphs")

// UnitTest will run the test its called from iff the `-unit` or `-short` flag
// is passed when calling `go test`. Otherwise the test will be skipped. UnitTest
// will run the test its called from in parallel.
func UnitTest(t *testing.T) {
	if !*unitTest && !testing.Short() {
		t.SkipNow()
	}
	t.Parallel()
}

// IntegrationTest will run the test its called from iff the `-integration` flag
// is passed when calling `go test`. Otherwise the test will be skipped. IntegrationTest
// will run the test its called from in parallel.
func IntegrationTest(t *testing.T) {
	if !*integrationTest {
		t.SkipNow()
	}
	t.Parallel()
}

// SlowTest runs the test its called from only when `-slow` is passed and
// `-short` is not. Slow tests seal graphs large enough to take seconds.
func SlowTest(t *testing.T) {
	if !*slowTest || testing.Short() {
		t.SkipNow()
	}
	t.Parallel()
}

// SerialUnitTest is UnitTest without t.Parallel, for tests that touch
// process-wide state such as registered metric views.
func SerialUnitTest(t *testing.T) {
	if !*unitTest && !testing.Short() {
		t.SkipNow()
	}
}
