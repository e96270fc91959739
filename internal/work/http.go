package work

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"dagrun/internal/job"
)

// maxDrain bounds how much of a response body is read before closing.
const maxDrain = 4 << 20

// FetchURL issues a GET and succeeds on any 2xx status.
type FetchURL struct {
	Env Env
	URL string
}

func (w FetchURL) Execute(ctx context.Context) error {
	url := strings.TrimSpace(w.URL)
	if url == "" {
		return job.NoRetry(errors.New("fetch: url is empty"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return job.NoRetry(fmt.Errorf("fetch: %w", err))
	}
	req.Header.Set("User-Agent", "dagrun")

	resp, err := w.Env.client().Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("fetch %s: http=%d", url, resp.StatusCode)
	}
	return nil
}
