package building

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/buildpop/internal/model"
)

// aliasFile is the on-disk layout of a class alias file:
//
//	aliases:
//	  "Single Family": one_unit
//	  "Duplex": two_unit
type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// LoadAliases reads a YAML alias file into a class table. An empty path
// returns a table with no aliases.
func LoadAliases(path string) (*model.ClassTable, error) {
	if path == "" {
		return model.NewClassTable(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "building: read aliases %s", path)
	}
	return ParseAliases(data)
}

// ParseAliases decodes alias YAML. Every target must be a known class name.
func ParseAliases(data []byte) (*model.ClassTable, error) {
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "building: parse aliases")
	}

	out := make(map[string]model.OccupancyClass, len(f.Aliases))
	for label, name := range f.Aliases {
		c, ok := model.ClassByName(name)
		if !ok {
			return nil, &model.ConfigurationError{
				Setting: "building.aliases",
				Reason:  "unknown class " + strings.TrimSpace(name) + " for label " + label,
			}
		}
		out[label] = c
	}
	return model.NewClassTable(out), nil
}
