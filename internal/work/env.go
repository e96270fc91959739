package work

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"dagrun/internal/job"
)

// DefaultRoot is the work root used when none is configured.
const DefaultRoot = "./workdir"

// Env is shared by every Work built from one manifest.
type Env struct {
	// Root is the directory all file and directory kinds operate under.
	Root string
	// HTTP is used by FetchURL. Nil selects a client with a 30s timeout.
	HTTP *http.Client
}

// NewEnv returns an Env rooted at root with an HTTP client bounded by timeout.
func NewEnv(root string, timeout time.Duration) Env {
	if strings.TrimSpace(root) == "" {
		root = DefaultRoot
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return Env{Root: root, HTTP: &http.Client{Timeout: timeout}}
}

func (e Env) client() *http.Client {
	if e.HTTP != nil {
		return e.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// path joins parts under the root. Empty parts are ignored.
func (e Env) path(parts ...string) (string, error) {
	var rel []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			rel = append(rel, p)
		}
	}
	joined := filepath.Join(rel...)
	if joined == "" || !filepath.IsLocal(joined) {
		return "", job.NoRetry(fmt.Errorf("path %q is outside the work root", filepath.Join(parts...)))
	}
	root := e.Root
	if strings.TrimSpace(root) == "" {
		root = DefaultRoot
	}
	return filepath.Join(root, joined), nil
}
