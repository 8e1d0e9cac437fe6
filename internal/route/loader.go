package route

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"portal-bus/internal/logger"
)

// Loader reads route files from the filesystem
type Loader struct {
	logger *logger.Logger
}

// NewLoader creates a new route loader
func NewLoader(log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{
		logger: log,
	}
}

// LoadFromDirectory loads every .json, .yaml and .yml file under path. Each
// file holds a list of routes.
func (l *Loader) LoadFromDirectory(path string) ([]Route, error) {
	var routes []Route

	err := filepath.Walk(path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		var decode func([]byte, interface{}) error
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			decode = json.Unmarshal
		case ".yaml", ".yml":
			decode = yaml.Unmarshal
		default:
			return nil
		}

		l.logger.Debug("loading route file", "path", path)

		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Error("failed to read route file",
				"path", path,
				"error", err)
			return err
		}

		var set []Route
		if err := decode(data, &set); err != nil {
			l.logger.Error("failed to parse route file",
				"path", path,
				"error", err)
			return fmt.Errorf("%s: %w", path, err)
		}

		l.logger.Debug("loaded routes",
			"path", path,
			"count", len(set))

		routes = append(routes, set...)
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}

	l.logger.Info("routes loaded", "totalRoutes", len(routes))

	return routes, nil
}
