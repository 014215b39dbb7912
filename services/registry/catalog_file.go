package registry

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/upb/llm-router/models"
)

// CatalogFile loads model descriptors from a YAML file and keeps the
// registry in sync when the file changes. A reload that fails validation
// is logged and discarded; the previous snapshot keeps serving.
//
// File shape:
//
//	models:
//	  - provider: openai
//	    name: gpt-4o-mini
//	    input_cost_per_1k: 0.00015
//	    output_cost_per_1k: 0.0006
//	    context_window: 128000
//	    capabilities: [simple, moderate]
//	    supports_streaming: true
type CatalogFile struct {
	v        *viper.Viper
	registry *Registry
	logger   *zap.Logger
}

// LoadCatalogFile reads the catalog at path into the registry and returns
// a handle that can watch the file for changes.
func LoadCatalogFile(path string, reg *Registry, logger *zap.Logger) (*CatalogFile, error) {
	v := viper.New()
	v.SetConfigFile(path)

	cf := &CatalogFile{
		v:        v,
		registry: reg,
		logger:   logger,
	}

	if err := cf.reload(); err != nil {
		return nil, err
	}
	return cf, nil
}

// Watch reloads the registry whenever the catalog file changes.
func (cf *CatalogFile) Watch() {
	cf.v.OnConfigChange(func(e fsnotify.Event) {
		if err := cf.reload(); err != nil {
			cf.logger.Error("catalog reload rejected, keeping previous snapshot",
				zap.String("file", e.Name),
				zap.Error(err))
		}
	})
	cf.v.WatchConfig()
}

func (cf *CatalogFile) reload() error {
	if err := cf.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read catalog file: %w", err)
	}

	var descriptors []models.ModelDescriptor
	if err := cf.v.UnmarshalKey("models", &descriptors); err != nil {
		return fmt.Errorf("decode catalog file: %w", err)
	}

	return cf.registry.Load(descriptors)
}
