package config

import (
	"context"
	"fmt"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Read-only provider loaded from a TOML file, one table per group under "groups":
//
//	[groups.1234.filters.spam]
//	maxMessages = 8
//
// Values not present in the file keep their Default() value.
type FileStore struct {
	configs map[string]*GuildConfig
}

var _ Provider = (*FileStore)(nil)

func LoadFileStore(path string) (*FileStore, error) {
	ko := koanf.New(".")
	if err := ko.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return fileStoreFromKoanf(ko)
}

func fileStoreFromKoanf(ko *koanf.Koanf) (*FileStore, error) {
	fs := &FileStore{
		configs: make(map[string]*GuildConfig),
	}
	for _, groupID := range ko.MapKeys("groups") {
		c := Default()
		if err := ko.UnmarshalWithConf("groups."+groupID, c, koanf.UnmarshalConf{Tag: "json"}); err != nil {
			return nil, fmt.Errorf("parsing config for group %s: %w", groupID, err)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config for group %s: %w", groupID, err)
		}
		fs.configs[groupID] = c
	}
	return fs, nil
}

func (s *FileStore) GetConfig(ctx context.Context, groupID string) (*GuildConfig, error) {
	c, ok := s.configs[groupID]
	if !ok {
		return Default(), nil
	}
	return c.Clone(), nil
}

func (s *FileStore) Groups() []string {
	out := make([]string, 0, len(s.configs))
	for g := range s.configs {
		out = append(out, g)
	}
	return out
}

// Writes every group from the file into the persistent store.
func (s *FileStore) SeedInto(ctx context.Context, dst *GormStore) error {
	for groupID, c := range s.configs {
		if err := dst.Configure(ctx, groupID, c); err != nil {
			return err
		}
	}
	return nil
}
