package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"dagrun/internal/job"
	"dagrun/internal/work"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func names(jobs []*job.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.Name()
	}
	return out
}

func TestParseBuildsJobsInFileOrder(t *testing.T) {
	t.Parallel()
	src := `
timezone: UTC
jobs:
  - name: report
    kind: file.write
    dir: out
    file: report.txt
    text: done
    depends_on: [mkdir, fetch]
  - name: mkdir
    kind: dir.create
    dir: out
    tries: 3
    timeout: 5s
  - name: fetch
    kind: http.get
    url: https://example.com
    start_at: "2026-03-10 13:00:00"
`
	jobs, err := Parse([]byte(src), work.Env{Root: t.TempDir()}, now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := names(jobs); !slices.Equal(got, []string{"report", "mkdir", "fetch"}) {
		t.Fatalf("order = %v", got)
	}
	report, mkdir, fetch := jobs[0], jobs[1], jobs[2]
	if deps := report.DependsOn(); len(deps) != 2 || deps[0] != mkdir || deps[1] != fetch {
		t.Fatalf("report deps = %v", deps)
	}
	if mkdir.TriesLeft() != 3 || mkdir.Timeout() != 5*time.Second {
		t.Fatalf("mkdir tries=%d timeout=%v", mkdir.TriesLeft(), mkdir.Timeout())
	}
	if want := now.Add(time.Hour); !fetch.StartAt().Equal(want) {
		t.Fatalf("fetch StartAt = %v, want %v", fetch.StartAt(), want)
	}
	if !mkdir.StartAt().Equal(now) {
		t.Fatalf("mkdir StartAt = %v, want now", mkdir.StartAt())
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
		want error
	}{
		{
			name: "duplicate",
			src:  "jobs:\n  - name: a\n  - name: a\n",
			want: ErrDuplicateName,
		},
		{
			name: "unknown dependency",
			src:  "jobs:\n  - name: a\n    depends_on: [ghost]\n",
			want: ErrUnknownDependency,
		},
		{
			name: "cycle",
			src:  "jobs:\n  - name: a\n    depends_on: [b]\n  - name: b\n    depends_on: [c]\n  - name: c\n    depends_on: [a]\n",
			want: ErrCycle,
		},
		{
			name: "self cycle",
			src:  "jobs:\n  - name: a\n    depends_on: [a]\n",
			want: ErrCycle,
		},
		{
			name: "missing name",
			src:  "jobs:\n  - kind: noop\n",
			want: ErrInvalid,
		},
		{
			name: "unknown kind",
			src:  "jobs:\n  - name: a\n    kind: teleport\n",
			want: ErrInvalid,
		},
		{
			name: "missing url",
			src:  "jobs:\n  - name: a\n    kind: http.get\n",
			want: ErrInvalid,
		},
		{
			name: "bad start",
			src:  "jobs:\n  - name: a\n    start_at: tomorrow\n",
			want: ErrInvalid,
		},
		{
			name: "bad timeout",
			src:  "jobs:\n  - name: a\n    timeout: soon\n",
			want: ErrInvalid,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.src), work.Env{}, now)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte("jobs:\n  - name: a\n    retries: 3\n"), work.Env{}, now)
	if err == nil || !strings.Contains(err.Error(), "retries") {
		t.Fatalf("err = %v, want unknown field error", err)
	}
}

func TestCycleErrorNamesTheLoop(t *testing.T) {
	t.Parallel()
	src := "jobs:\n  - name: a\n    depends_on: [b]\n  - name: b\n    depends_on: [a]\n"
	_, err := Parse([]byte(src), work.Env{}, now)
	if err == nil || !strings.Contains(err.Error(), "a -> b -> a") {
		t.Fatalf("err = %v", err)
	}
}

func TestParseStartAt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Time
	}{
		{raw: "", want: now},
		{raw: "2026-03-10 14:30:00", want: time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)},
		{raw: "2026-03-10 14:30", want: time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)},
		{raw: "2026-03-11T08:00:00Z", want: time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)},
		{raw: "2023-02-14 08:07:30", want: now},
		{raw: "in:90s", want: now.Add(90 * time.Second)},
		{raw: "cron:0 3 * * *", want: time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)},
		{raw: "cron:*/15 * * * *", want: now.Add(15 * time.Minute)},
		{raw: "@hourly", want: now.Add(time.Hour)},
	}
	for _, tt := range tests {
		got, err := parseStartAt(tt.raw, now, time.UTC)
		if err != nil {
			t.Fatalf("parseStartAt(%q): %v", tt.raw, err)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("parseStartAt(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}

	for _, raw := range []string{"cron:", "cron:61 * * * *", "in:-5s", "in:abc", "next tuesday"} {
		if _, err := parseStartAt(raw, now, time.UTC); err == nil {
			t.Fatalf("parseStartAt(%q) should fail", raw)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	if err := os.WriteFile(path, []byte("jobs:\n  - name: only\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	jobs, err := Load(path, work.Env{}, now)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Name() != "only" {
		t.Fatalf("jobs = %v", names(jobs))
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), work.Env{}, now); err == nil {
		t.Fatalf("Load of a missing file should fail")
	}
}
