package app

import (
	"github.com/vk/assetgrid/internal/registry"
	"github.com/vk/assetgrid/modules/css"
	"github.com/vk/assetgrid/modules/esbuild"
	"github.com/vk/assetgrid/modules/files"
	"github.com/vk/assetgrid/modules/imagemin"
	"github.com/vk/assetgrid/modules/print"
	"github.com/vk/assetgrid/modules/s3"
	"github.com/vk/assetgrid/modules/sass"
	"github.com/vk/assetgrid/modules/sprite"
	"github.com/vk/assetgrid/modules/tinypng"
)

// coreModules returns the definitive list of all modules that are compiled
// into the assetgrid binary. Some modules hold state, so every App gets
// fresh instances.
func coreModules() []registry.Module {
	return []registry.Module{
		&sass.Module{},
		&esbuild.Module{},
		&files.Module{},
		&css.Module{},
		&imagemin.Module{},
		&tinypng.Module{},
		&sprite.Module{},
		&print.Module{},
		&s3.Module{},
	}
}
