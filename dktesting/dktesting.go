// Package dktesting runs dialect tests against Docker containers.
package dktesting

import (
	"testing"

	"github.com/dhui/dktest"
)

// ContainerSpec holds Docker testing setup specifications
type ContainerSpec struct {
	ImageName string
	Options   dktest.Options
}

// ParallelTest runs testFunc against a container of every spec, in
// parallel. Docker tests are skipped in short mode.
func ParallelTest(t *testing.T, specs []ContainerSpec,
	testFunc func(*testing.T, dktest.ContainerInfo)) {

	if testing.Short() {
		t.Skip("skipping Docker tests in short mode")
	}
	for _, spec := range specs {
		spec := spec
		t.Run(spec.ImageName, func(t *testing.T) {
			t.Parallel()
			dktest.Run(t, spec.ImageName, spec.Options, testFunc)
		})
	}
}
