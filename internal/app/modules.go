package app

import (
	"github.com/qulab/autocal/internal/measure"
	"github.com/qulab/autocal/modules/simqpu"
)

// coreModules is the default measurement backend set compiled into the
// autocal binary. Real deployments inject their instrument module instead.
var coreModules = []measure.Module{
	&simqpu.Module{},
}
