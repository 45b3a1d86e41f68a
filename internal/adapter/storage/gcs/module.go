package gcs

import (
	"go.uber.org/fx"

	"github.com/tigerroll/bikeshare/internal/adapter/storage"
	"github.com/tigerroll/bikeshare/internal/config"
)

func newConfiguredProvider(cfg *config.Config) storage.Provider {
	return NewProvider(cfg.Bikeshare.Storage)
}

// Module exports the provider into the storage provider group.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			newConfiguredProvider,
			fx.ResultTags(`group:"`+storage.ProviderGroup+`"`),
		),
	),
)
