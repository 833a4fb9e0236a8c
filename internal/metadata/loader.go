package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// LoadDir reads entity definitions from every .json file in dir and populates
// the registry. Invalid definitions are skipped with a warning rather than
// failing the whole load, so one bad file cannot take the layer down.
func LoadDir(dir string, reg *Registry) error {
	names, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}

	var entities []*Entity
	for _, de := range names {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, de.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		var entity Entity
		if err := json.Unmarshal(raw, &entity); err != nil {
			log.Warn().Str("file", path).Err(err).Msg("skipping entity definition (invalid JSON)")
			continue
		}
		if entity.Name == "" {
			log.Warn().Str("file", path).Msg("skipping entity definition (missing name)")
			continue
		}
		entities = append(entities, &entity)
	}

	reg.Load(entities)
	log.Info().Int("entities", len(entities)).Str("dir", dir).Msg("schema registry loaded")
	return nil
}
