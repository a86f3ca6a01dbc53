package tiger

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buildpop/internal/fetcher"
	"github.com/sells-group/buildpop/internal/model"
)

// Download fetches a TIGER/Line archive into destDir, unpacks its
// shapefile members and returns the .shp path. An archive already in
// destDir is reused, so repeated runs for one state download once.
func Download(ctx context.Context, f fetcher.Fetcher, rawURL, destDir string) (string, error) {
	log := zap.L().With(
		zap.String("component", "tiger.download"),
		zap.String("url", rawURL),
	)

	zipName := archiveName(rawURL)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "tiger: create dest dir")
	}
	zipPath := filepath.Join(destDir, zipName)

	fetched, err := fetcher.Cached(ctx, f, rawURL, zipPath)
	if err != nil {
		return "", eris.Wrap(err, "tiger: download")
	}
	if fetched {
		log.Info("tract archive downloaded", zap.String("path", zipPath))
	} else {
		log.Debug("reusing cached tract archive", zap.String("path", zipPath))
	}

	shpPath, err := fetcher.ExtractShapefile(zipPath, filepath.Join(destDir, strings.TrimSuffix(zipName, ".zip")))
	if errors.Is(err, fetcher.ErrNoShapefile) {
		return "", &model.SchemaError{Source: rawURL, Field: ".shp", Reason: "archive contains no shapefile"}
	}
	if err != nil {
		return "", eris.Wrap(err, "tiger: extract")
	}
	return shpPath, nil
}

// archiveName is the last path segment of the URL, ignoring any query.
func archiveName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		if name := path.Base(u.Path); name != "/" && name != "." {
			return name
		}
	}
	return "tiger.zip"
}
