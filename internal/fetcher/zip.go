package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoShapefile is returned when an archive holds no .shp member.
var ErrNoShapefile = eris.New("zip: archive contains no .shp file")

// shapefileParts are the members unpacked from a shapefile archive.
var shapefileParts = map[string]bool{
	".shp": true,
	".shx": true,
	".dbf": true,
	".prj": true,
	".cpg": true,
}

// ExtractShapefile unpacks the shapefile members of a ZIP archive flat into
// destDir, so sidecars land next to their .shp whatever folder they were
// zipped under, and returns the path of the first .shp by name. Other
// members are skipped.
func ExtractShapefile(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrapf(err, "zip: open %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create dest dir")
	}

	var shps []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, err := memberName(f.Name)
		if err != nil {
			return "", err
		}
		ext := strings.ToLower(filepath.Ext(name))
		if !shapefileParts[ext] {
			continue
		}
		dest := filepath.Join(destDir, name)
		if err := writeMember(f, dest); err != nil {
			return "", err
		}
		if ext == ".shp" {
			shps = append(shps, dest)
		}
	}

	if len(shps) == 0 {
		return "", ErrNoShapefile
	}
	sort.Strings(shps)
	return shps[0], nil
}

// memberName returns the base name of an archive member, rejecting names
// that climb out of the archive root.
func memberName(name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", eris.Errorf("zip: illegal member path %q", name)
	}
	return path.Base(clean), nil
}

func writeMember(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open member %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "zip: create %s", dest)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "zip: write %s", dest)
	}
	return eris.Wrapf(out.Close(), "zip: close %s", dest)
}
