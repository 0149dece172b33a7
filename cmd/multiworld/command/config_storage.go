package command

import (
	"fmt"
	"os"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-multiworld/internal/rando"
	"github.com/pixil98/go-multiworld/internal/storage"
)

type StorageConfig struct {
	Rulesets AssetConfig[*rando.RulesetSpec] `json:"rulesets"`
	Results  AssetConfig[*rando.Result]      `json:"results"`
}

func (c *StorageConfig) Validate() error {
	el := errors.NewErrorList()
	el.Add(c.Rulesets.Validate("rulesets"))

	// The results directory is created on startup, so only the path needs
	// to be present here.
	if c.Results.Path == "" {
		el.Add(fmt.Errorf("results: path is required"))
	}

	return el.Err()
}

func (c *StorageConfig) BuildRulesetStore() (*storage.FileStore[*rando.RulesetSpec], error) {
	return storage.NewFileStore[*rando.RulesetSpec](c.Rulesets.Path)
}

func (c *StorageConfig) BuildResultStore() (*storage.FileStore[*rando.Result], error) {
	if err := os.MkdirAll(c.Results.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating results directory: %w", err)
	}
	return storage.NewFileStore[*rando.Result](c.Results.Path)
}

type AssetConfig[T storage.ValidatingSpec] struct {
	Path string `json:"path"`
}

func (c *AssetConfig[T]) Validate(name string) error {
	if c.Path == "" {
		return fmt.Errorf("%s: path is required", name)
	}
	_, err := os.Stat(c.Path)
	if err != nil {
		return fmt.Errorf("%s: invalid path %q: %w", name, c.Path, err)
	}

	return nil
}
