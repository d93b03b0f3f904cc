package signature

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/DollhouseMCP/contentguard/internal/trust"
)

// catalogFile is the YAML shape of an external signature catalog.
type catalogFile struct {
	Version    string          `yaml:"version"`
	Signatures []signatureSpec `yaml:"signatures"`
}

type signatureSpec struct {
	ID          string   `yaml:"id"`
	Category    string   `yaml:"category"`
	Severity    string   `yaml:"severity"`
	Description string   `yaml:"description"`
	Regex       string   `yaml:"regex,omitempty"`
	Substrings  []string `yaml:"substrings,omitempty"`
	Shell       string   `yaml:"shell,omitempty"`
}

// Load reads a signature catalog from a YAML file. A missing file falls
// back to the built-in catalog; a present but invalid file is an error,
// never a silent fallback.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse builds a catalog from YAML bytes, validating every entry.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing signature catalog: %w", err)
	}
	if file.Version == "" {
		return nil, fmt.Errorf("signature catalog: missing version")
	}
	if len(file.Signatures) == 0 {
		return nil, fmt.Errorf("signature catalog %s: no signatures", file.Version)
	}

	sigs := make([]Signature, 0, len(file.Signatures))
	for _, spec := range file.Signatures {
		sig := Signature{
			ID:          spec.ID,
			Category:    Category(spec.Category),
			Severity:    trust.Severity(spec.Severity),
			Description: spec.Description,
			substrings:  spec.Substrings,
			shellCheck:  spec.Shell,
		}
		if spec.Regex != "" {
			re, err := regexp.Compile(spec.Regex)
			if err != nil {
				return nil, fmt.Errorf("signature %q: %w", spec.ID, err)
			}
			sig.re = re
		}
		sigs = append(sigs, sig)
	}
	return newCatalog(file.Version, sigs)
}
