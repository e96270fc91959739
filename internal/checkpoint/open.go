package checkpoint

import (
	"context"
	"errors"
	"strings"

	logx "dagrun/pkg/logx"
)

// Open initializes the configured store. An empty driver selects "file"
// when a path is configured and "none" otherwise.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "none"
		if strings.TrimSpace(cfg.Path) != "" {
			driver = "file"
		}
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "none":
		return nopStore{}, nil
	case "file", "json":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown checkpoint driver: " + driver)
	}
}

type nopStore struct{}

func (nopStore) Load(context.Context) ([]string, error) { return nil, nil }
func (nopStore) Save(context.Context, []string) error   { return nil }
func (nopStore) Clear(context.Context) error            { return nil }
func (nopStore) Close() error                           { return nil }

// normalize trims, drops empties and de-duplicates while keeping order.
func normalize(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
