package app

import (
	"github.com/gofecto/gofecto/internal/registry"
	"github.com/gofecto/gofecto/modules/approve"
	"github.com/gofecto/gofecto/modules/artifacts"
	"github.com/gofecto/gofecto/modules/cache"
	"github.com/gofecto/gofecto/modules/envinfo"
	"github.com/gofecto/gofecto/modules/exec"
	"github.com/gofecto/gofecto/modules/gitinfo"
	"github.com/gofecto/gofecto/modules/http_client"
	"github.com/gofecto/gofecto/modules/report"
	"github.com/gofecto/gofecto/modules/upload"
)

// coreModules is the definitive list of all modules that are compiled into
// the gofecto binary.
var coreModules = []registry.Module{
	&approve.Module{},
	&artifacts.Module{},
	&cache.Module{},
	&envinfo.Module{},
	&exec.Module{},
	&gitinfo.Module{},
	&http_client.Module{},
	&report.Module{},
	&upload.Module{},
}
