package census

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

type censusFile struct {
	Services []models.ServiceCensus `yaml:"services"`
}

// LoadFile reads and validates a YAML census with a top-level services list.
func LoadFile(path string) ([]models.ServiceCensus, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read census: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) ([]models.ServiceCensus, error) {
	var f censusFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse census: %w", err)
	}
	if err := ValidateAll(f.Services); err != nil {
		return nil, err
	}
	return f.Services, nil
}
