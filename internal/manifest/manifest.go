package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"dagrun/internal/job"
	"dagrun/internal/work"
)

var (
	ErrDuplicateName     = errors.New("manifest: duplicate job name")
	ErrUnknownDependency = errors.New("manifest: unknown dependency")
	ErrCycle             = errors.New("manifest: dependency cycle")
	ErrInvalid           = errors.New("manifest: invalid job")
)

// Work kinds.
const (
	KindNoop       = "noop"
	KindDirCreate  = "dir.create"
	KindDirRename  = "dir.rename"
	KindDirDelete  = "dir.delete"
	KindFileWrite  = "file.write"
	KindFileRead   = "file.read"
	KindFileDelete = "file.delete"
	KindHTTPGet    = "http.get"
)

// Manifest is the decoded file.
type Manifest struct {
	// Timezone applies to absolute and cron start times. Empty means local.
	Timezone string `yaml:"timezone"`
	Jobs     []Spec `yaml:"jobs"`
}

// Spec describes one job.
type Spec struct {
	Name      string   `yaml:"name"`
	Kind      string   `yaml:"kind"`
	URL       string   `yaml:"url"`
	Parent    string   `yaml:"parent"`
	Dir       string   `yaml:"dir"`
	NewName   string   `yaml:"new_name"`
	File      string   `yaml:"file"`
	Text      string   `yaml:"text"`
	Tries     int      `yaml:"tries"`
	Timeout   string   `yaml:"timeout"`
	StartAt   string   `yaml:"start_at"`
	DependsOn []string `yaml:"depends_on"`
}

// Load reads and builds the manifest at path.
func Load(path string, env work.Env, now time.Time) ([]*job.Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jobs, err := Parse(b, env, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}

// Parse decodes data and builds jobs in file order. Unknown fields are
// rejected.
func Parse(data []byte, env work.Env, now time.Time) ([]*job.Job, error) {
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return m.Build(env, now)
}

// Decode strictly decodes a manifest without building jobs.
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return &m, nil
		}
		return nil, fmt.Errorf("yaml decode: %w", err)
	}
	return &m, nil
}

// Build validates the manifest and constructs its jobs. Prerequisites are
// built before their dependents so every job is created with its final
// DependsOn list.
func (m *Manifest) Build(env work.Env, now time.Time) ([]*job.Job, error) {
	loc, err := loadLocation(m.Timezone)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]int, len(m.Jobs))
	var errs []error
	for i := range m.Jobs {
		sp := &m.Jobs[i]
		sp.Name = strings.TrimSpace(sp.Name)
		if sp.Name == "" {
			errs = append(errs, fmt.Errorf("%w: jobs[%d]: name required", ErrInvalid, i))
			continue
		}
		if _, dup := byName[sp.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateName, sp.Name))
			continue
		}
		byName[sp.Name] = i
	}
	for _, sp := range m.Jobs {
		for _, dep := range sp.DependsOn {
			if _, ok := byName[strings.TrimSpace(dep)]; !ok {
				errs = append(errs, fmt.Errorf("%w: %s depends on %q", ErrUnknownDependency, sp.Name, dep))
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	order, err := m.topoOrder(byName)
	if err != nil {
		return nil, err
	}

	built := make([]*job.Job, len(m.Jobs))
	for _, i := range order {
		sp := m.Jobs[i]
		j, err := sp.build(env, now, loc, func(name string) *job.Job {
			return built[byName[strings.TrimSpace(name)]]
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sp.Name, err))
			continue
		}
		built[i] = j
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return built, nil
}

// topoOrder returns spec indexes with every prerequisite before its
// dependents, or ErrCycle naming the loop.
func (m *Manifest) topoOrder(byName map[string]int) ([]int, error) {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(m.Jobs))
	order := make([]int, 0, len(m.Jobs))
	var stack []string

	var visit func(i int) error
	visit = func(i int) error {
		switch color[i] {
		case black:
			return nil
		case grey:
			start := 0
			for k, n := range stack {
				if n == m.Jobs[i].Name {
					start = k
				}
			}
			loop := append(append([]string(nil), stack[start:]...), m.Jobs[i].Name)
			return fmt.Errorf("%w: %s", ErrCycle, strings.Join(loop, " -> "))
		}
		color[i] = grey
		stack = append(stack, m.Jobs[i].Name)
		for _, dep := range m.Jobs[i].DependsOn {
			if err := visit(byName[strings.TrimSpace(dep)]); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		order = append(order, i)
		return nil
	}

	for i := range m.Jobs {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (sp Spec) build(env work.Env, now time.Time, loc *time.Location, lookup func(string) *job.Job) (*job.Job, error) {
	w, err := sp.work(env)
	if err != nil {
		return nil, err
	}
	startAt, err := parseStartAt(sp.StartAt, now, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var timeout time.Duration
	if s := strings.TrimSpace(sp.Timeout); s != "" {
		if timeout, err = time.ParseDuration(s); err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q: %v", ErrInvalid, sp.Timeout, err)
		}
	}
	if sp.Tries < 0 {
		return nil, fmt.Errorf("%w: tries must be >= 0", ErrInvalid)
	}

	deps := make([]*job.Job, 0, len(sp.DependsOn))
	seen := map[string]bool{}
	for _, d := range sp.DependsOn {
		d = strings.TrimSpace(d)
		if seen[d] {
			continue
		}
		seen[d] = true
		deps = append(deps, lookup(d))
	}
	return job.New(sp.Name, w, job.Options{
		StartAt:   startAt,
		Timeout:   timeout,
		Tries:     sp.Tries,
		DependsOn: deps,
	}), nil
}

func (sp Spec) work(env work.Env) (job.Work, error) {
	require := func(field, v string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: kind %s requires %s", ErrInvalid, sp.Kind, field)
		}
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sp.Kind)) {
	case "", KindNoop:
		return nil, nil
	case KindDirCreate:
		if err := require("dir", sp.Dir); err != nil {
			return nil, err
		}
		return work.MakeDir{Env: env, Parent: sp.Parent, Dir: sp.Dir}, nil
	case KindDirRename:
		// A missing new_name is left to fail at run time, like any other
		// permanent work error.
		if err := require("dir", sp.Dir); err != nil {
			return nil, err
		}
		return work.RenameDir{Env: env, Parent: sp.Parent, Dir: sp.Dir, NewName: sp.NewName}, nil
	case KindDirDelete:
		if err := require("dir", sp.Dir); err != nil {
			return nil, err
		}
		return work.RemoveDir{Env: env, Parent: sp.Parent, Dir: sp.Dir}, nil
	case KindFileWrite:
		if err := require("file", sp.File); err != nil {
			return nil, err
		}
		return work.WriteFile{Env: env, Dir: sp.Dir, Name: sp.File, Text: sp.Text}, nil
	case KindFileRead:
		if err := require("file", sp.File); err != nil {
			return nil, err
		}
		return work.ReadFile{Env: env, Dir: sp.Dir, Name: sp.File}, nil
	case KindFileDelete:
		if err := require("file", sp.File); err != nil {
			return nil, err
		}
		return work.RemoveFile{Env: env, Dir: sp.Dir, Name: sp.File}, nil
	case KindHTTPGet:
		if err := require("url", sp.URL); err != nil {
			return nil, err
		}
		return work.FetchURL{Env: env, URL: sp.URL}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalid, sp.Kind)
	}
}
