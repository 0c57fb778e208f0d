package system

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// SearchPaths are the directories inspection tools are installed in,
// searched before $PATH because cron and init rarely set sbin on it.
var SearchPaths = []string{"/usr/sbin", "/usr/bin", "/sbin", "/bin"}

// Origin records how a program path was chosen
type Origin string

const (
	OriginOverride   Origin = "override"
	OriginSearchPath Origin = "search-path"
	OriginPATH       Origin = "PATH"
	OriginFallback   Origin = "fallback"
)

// Program is the executable resolved for one backend
type Program struct {
	Backend string
	Path    string
	Origin  Origin
	// Found is false when no candidate exists and Path is only the
	// first candidate name.
	Found bool
}

// Detector resolves backend executables once per process
type Detector struct {
	overrides map[string]string
	paths     []string
	lookPath  func(string) (string, error)
	log       *zap.Logger

	mu    sync.Mutex
	cache map[string]Program
}

// New creates a detector. overrides maps backend names to program paths
// given by the operator; they are used as-is.
func New(overrides map[string]string, log *zap.Logger) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{
		overrides: overrides,
		paths:     SearchPaths,
		lookPath:  exec.LookPath,
		log:       log,
		cache:     make(map[string]Program),
	}
}

// WithSearchPaths replaces the built-in directory list
func (d *Detector) WithSearchPaths(paths ...string) *Detector {
	d.paths = paths
	return d
}

// WithLookPath replaces the $PATH lookup
func (d *Detector) WithLookPath(lookPath func(string) (string, error)) *Detector {
	d.lookPath = lookPath
	return d
}

// Resolve finds the executable for backend among candidates, in order:
// operator override, the built-in directories, then $PATH. When nothing
// is found the first candidate is returned with Found unset.
func (d *Detector) Resolve(backend string, candidates []string) Program {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.cache[backend]; ok {
		return p
	}
	p := d.resolve(backend, candidates)
	d.cache[backend] = p

	d.log.Debug("program resolved",
		zap.String("backend", backend),
		zap.String("path", p.Path),
		zap.String("origin", string(p.Origin)),
		zap.Bool("found", p.Found))
	return p
}

func (d *Detector) resolve(backend string, candidates []string) Program {
	if path, ok := d.overrides[backend]; ok && path != "" {
		return Program{Backend: backend, Path: path, Origin: OriginOverride, Found: true}
	}

	for _, name := range candidates {
		for _, dir := range d.paths {
			path := filepath.Join(dir, name)
			if isExecutable(path) {
				return Program{Backend: backend, Path: path, Origin: OriginSearchPath, Found: true}
			}
		}
	}

	for _, name := range candidates {
		if path, err := d.lookPath(name); err == nil {
			return Program{Backend: backend, Path: path, Origin: OriginPATH, Found: true}
		}
	}

	p := Program{Backend: backend, Origin: OriginFallback}
	if len(candidates) > 0 {
		p.Path = candidates[0]
	}
	return p
}

// Detect resolves every backend and logs a summary of what was found.
// candidates maps backend names to their program names.
func (d *Detector) Detect(candidates map[string][]string) map[string]Program {
	names := make([]string, 0, len(candidates))
	for name := range candidates {
		names = append(names, name)
	}
	sort.Strings(names)

	programs := make(map[string]Program, len(names))
	for _, name := range names {
		programs[name] = d.Resolve(name, candidates[name])
	}
	d.logSummary(names, programs)
	return programs
}

func (d *Detector) logSummary(names []string, programs map[string]Program) {
	found := 0
	for _, name := range names {
		p := programs[name]
		if p.Found {
			found++
			d.log.Info("backend tool found", zap.String("backend", name), zap.String("path", p.Path), zap.String("origin", string(p.Origin)))
		} else {
			d.log.Debug("backend tool not found", zap.String("backend", name), zap.String("tried", p.Path))
		}
	}
	d.log.Info("tool detection complete",
		zap.String("os", runtime.GOOS),
		zap.Int("backends", len(names)),
		zap.Int("found", found))
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
