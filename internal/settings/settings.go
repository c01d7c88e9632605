// Package settings persists the door's tunable timing parameters to a flat YAML file.
// Readers get immutable snapshots; writers swap a whole new snapshot in.
package settings

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the settings file is missing or unreadable.
const (
	DefaultTransitionTime = 15 * time.Second
	DefaultPulseDuration  = 1000 * time.Millisecond
)

// ErrInvalid is returned for configuration values that would never be accepted.
var ErrInvalid = errors.New("invalid settings")

// Settings is an immutable snapshot of the timing configuration.
type Settings struct {
	TransitionTime time.Duration
	PulseDuration  time.Duration
	HubAddress     string // empty = no hub known
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		TransitionTime: DefaultTransitionTime,
		PulseDuration:  DefaultPulseDuration,
	}
}

// Validate checks the invariants every stored snapshot must satisfy.
func (s Settings) Validate() error {
	if s.TransitionTime <= 0 {
		return fmt.Errorf("%w: transition time must be positive, got %v", ErrInvalid, s.TransitionTime)
	}
	if s.PulseDuration <= 0 {
		return fmt.Errorf("%w: pulse duration must be positive, got %v", ErrInvalid, s.PulseDuration)
	}
	// The file stores whole milliseconds.
	if s.PulseDuration%time.Millisecond != 0 {
		return fmt.Errorf("%w: pulse duration must be whole milliseconds, got %v", ErrInvalid, s.PulseDuration)
	}
	return nil
}

// Update is a partial change. Nil fields keep their prior value.
// An empty HubAddress clears the remembered hub.
type Update struct {
	TransitionTime *time.Duration
	PulseDuration  *time.Duration
	HubAddress     *string
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.TransitionTime == nil && u.PulseDuration == nil && u.HubAddress == nil
}

// Merge applies u on top of s. The result is validated before it is returned;
// on error s is unchanged and should stay in effect.
func (s Settings) Merge(u Update) (Settings, error) {
	next := s
	if u.TransitionTime != nil {
		next.TransitionTime = *u.TransitionTime
	}
	if u.PulseDuration != nil {
		next.PulseDuration = *u.PulseDuration
	}
	if u.HubAddress != nil {
		next.HubAddress = *u.HubAddress
	}
	if err := next.Validate(); err != nil {
		return s, err
	}
	return next, nil
}

// fileLayout is the on-disk record. Durations use the units the hub speaks:
// seconds for the transition, milliseconds for the pulse.
type fileLayout struct {
	TransitionTime  float64 `yaml:"transitionTime"`
	ActuateDuration int64   `yaml:"actuateDuration"`
	HubAddress      *string `yaml:"hubAddress"`
}

func toFile(s Settings) fileLayout {
	f := fileLayout{
		TransitionTime:  s.TransitionTime.Seconds(),
		ActuateDuration: s.PulseDuration.Milliseconds(),
	}
	if s.HubAddress != "" {
		addr := s.HubAddress
		f.HubAddress = &addr
	}
	return f
}

func fromFile(f fileLayout) Settings {
	s := Settings{
		TransitionTime: time.Duration(math.Round(f.TransitionTime * float64(time.Second))),
		PulseDuration:  time.Duration(f.ActuateDuration) * time.Millisecond,
	}
	if f.HubAddress != nil {
		s.HubAddress = *f.HubAddress
	}
	return s
}

// Store owns the persisted settings.
type Store struct {
	path string
	cur  atomic.Pointer[Settings]

	// mu serializes writers so read-merge-write is not lost between two updates.
	mu sync.Mutex
}

// Open loads settings from path. A missing or corrupt file is replaced by
// defaults, which are written back immediately. Only a failure to write the
// defaults is reported, and even then the returned store is usable.
func Open(path string) (*Store, error) {
	st := &Store{path: path}

	s, err := load(path)
	if err == nil {
		st.cur.Store(&s)
		return st, nil
	}

	log.Printf("settings: %v; using defaults", err)
	def := Default()
	st.cur.Store(&def)
	if werr := st.write(def); werr != nil {
		return st, fmt.Errorf("persist default settings: %w", werr)
	}
	return st, nil
}

// NewMemory returns a store that never touches disk. Useful for tests and --print-state.
func NewMemory(s Settings) *Store {
	st := &Store{}
	st.cur.Store(&s)
	return st
}

func load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read %s: %w", path, err)
	}

	var f fileLayout
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Settings{}, fmt.Errorf("parse %s: %w", path, err)
	}

	s := fromFile(f)
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("load %s: %w", path, err)
	}
	return s, nil
}

// Current returns the settings snapshot in effect.
func (st *Store) Current() Settings {
	return *st.cur.Load()
}

// Path returns the backing file, or "" for a memory store.
func (st *Store) Path() string {
	return st.path
}

// Apply merges u into the current settings and swaps the result in.
// Invalid values are rejected with ErrInvalid and nothing changes.
// Persistence is best effort: a write failure is logged and the new
// settings stay in effect for this process.
func (st *Store) Apply(u Update) (Settings, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	next, err := st.Current().Merge(u)
	if err != nil {
		return st.Current(), err
	}

	st.cur.Store(&next)
	if err := st.write(next); err != nil {
		log.Printf("settings: persist failed: %v", err)
	}
	return next, nil
}

// write replaces the file atomically via rename.
func (st *Store) write(s Settings) error {
	if st.path == "" {
		return nil
	}

	data, err := yaml.Marshal(toFile(s))
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(st.path), ".settings-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), st.path); err != nil {
		return fmt.Errorf("replace %s: %w", st.path, err)
	}
	return nil
}
