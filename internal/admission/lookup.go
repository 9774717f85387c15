package admission

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/comfe-salud/rips-cli/internal/canon"
)

// Mapping homologates one raw service label to its ledger name and code.
type Mapping struct {
	Input       string `json:"input" yaml:"input"`
	Homologated string `json:"homologated" yaml:"homologated"`
	Code        string `json:"code" yaml:"code"`
}

// Lookup maps canonical service text to its homologation entry.
type Lookup map[string]Mapping

// LoadLookup reads the homologation table from a JSON or YAML file,
// selected by extension. Entries whose input canonicalizes to empty are
// ignored; a later duplicate key overwrites an earlier one.
func LoadLookup(path string) (Lookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "lookup: read %s", path)
	}

	var entries []Mapping
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, eris.Wrapf(err, "lookup: parse yaml %s", path)
		}
	default:
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, eris.Wrapf(err, "lookup: parse json %s", path)
		}
	}

	out := make(Lookup, len(entries))
	for _, e := range entries {
		key := canon.Text(e.Input)
		if key == "" {
			continue
		}
		e.Homologated = strings.TrimSpace(e.Homologated)
		e.Code = strings.TrimSpace(e.Code)
		out[key] = e
	}
	return out, nil
}
