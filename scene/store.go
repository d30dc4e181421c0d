// Package scene owns the named-object registry built on top of decoded
// Gaussian sets and flattens scenes into the transport payload an external
// renderer consumes.
//
// The store replaces the ambient global registries of earlier tooling: one
// coordinating component owns the mapping from object name to (set, source
// path, last known transform) and is passed explicitly to whatever needs it.
package scene

import (
	"sort"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/splatcraft/splatcore/gaussian"
)

// DefaultPointSize is the initial display point size for imported objects.
const DefaultPointSize = 2.0

type record struct {
	set        *gaussian.Set
	sourcePath string
	transform  Transform
	lod        float64
	pointSize  float64
}

// Store maps object names to their current Gaussian set and display state.
// Every named object exclusively owns exactly one current set; replacement
// is atomic at the granularity of the record pointer, so a concurrent reader
// sees either the old set or the new one, never a blend.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*record
	logger  golog.Logger
}

// NewStore returns an empty store.
func NewStore(logger golog.Logger) *Store {
	return &Store{objects: map[string]*record{}, logger: logger}
}

// Import decodes the file at path and binds the result to name, replacing
// any previous set under that name. The object's LOD starts at the
// auto-suggested fraction for its size and its transform at identity. On
// error, an existing object under name is left untouched.
func (s *Store) Import(name, path string) (*gaussian.Set, error) {
	set, err := gaussian.NewFromFile(path, s.logger)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.objects[name] = &record{
		set:        set,
		sourcePath: path,
		transform:  Identity(),
		lod:        gaussian.AutoLOD(set.Size()),
		pointSize:  DefaultPointSize,
	}
	s.mu.Unlock()
	if s.logger != nil {
		s.logger.Infow("imported gaussian set",
			"name", name, "source", path, "points", set.Size())
	}
	return set, nil
}

// Add binds an already-decoded set to name, replacing any previous one.
func (s *Store) Add(name string, set *gaussian.Set, sourcePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = &record{
		set:        set,
		sourcePath: sourcePath,
		transform:  Identity(),
		lod:        gaussian.AutoLOD(set.Size()),
		pointSize:  DefaultPointSize,
	}
}

// Refresh re-decodes an object's source file and atomically replaces its
// set. Display state and transform carry over. A failed decode leaves the
// previous set in place and is returned to the caller; it never corrupts or
// partially replaces the object.
func (s *Store) Refresh(name string) error {
	s.mu.RLock()
	rec, ok := s.objects[name]
	s.mu.RUnlock()
	if !ok {
		return errors.Errorf("no object named %q", name)
	}
	if rec.sourcePath == "" {
		return errors.Errorf("object %q has no source path", name)
	}

	set, err := gaussian.NewFromFile(rec.sourcePath, s.logger)
	if err != nil {
		return errors.Wrapf(err, "refreshing %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.objects[name]
	if !ok {
		// Deleted while decoding; drop the new set rather than resurrect.
		return errors.Errorf("object %q was deleted during refresh", name)
	}
	s.objects[name] = &record{
		set:        set,
		sourcePath: cur.sourcePath,
		transform:  cur.transform,
		lod:        cur.lod,
		pointSize:  cur.pointSize,
	}
	return nil
}

// RefreshAll re-decodes every object from its source file. Objects that fail
// keep their previous set; all failures are collected and returned together
// so one unreadable file does not mask another.
func (s *Store) RefreshAll() error {
	var err error
	for _, name := range s.Names() {
		err = multierr.Combine(err, s.Refresh(name))
	}
	return err
}

// Lookup returns the current set bound to name.
func (s *Store) Lookup(name string) (*gaussian.Set, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.objects[name]
	if !ok {
		return nil, false
	}
	return rec.set, true
}

// SourcePath returns the file an object was decoded from.
func (s *Store) SourcePath(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.objects[name]
	if !ok {
		return "", false
	}
	return rec.sourcePath, true
}

// Delete removes an object. Removing an absent name does nothing.
func (s *Store) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, name)
}

// Names returns the object names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// SetLOD sets an object's level-of-detail fraction, clamped to the sampler's
// valid range.
func (s *Store) SetLOD(name string, lod float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.objects[name]
	if !ok {
		return errors.Errorf("no object named %q", name)
	}
	if lod < gaussian.MinLOD {
		lod = gaussian.MinLOD
	}
	if lod > gaussian.MaxLOD {
		lod = gaussian.MaxLOD
	}
	rec.lod = lod
	return nil
}

// LOD returns an object's level-of-detail fraction.
func (s *Store) LOD(name string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.objects[name]
	if !ok {
		return 0, false
	}
	return rec.lod, true
}

// SetPointSize sets an object's display point size.
func (s *Store) SetPointSize(name string, size float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.objects[name]
	if !ok {
		return errors.Errorf("no object named %q", name)
	}
	rec.pointSize = size
	return nil
}

// PointSize returns an object's display point size.
func (s *Store) PointSize(name string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.objects[name]
	if !ok {
		return 0, false
	}
	return rec.pointSize, true
}

// Preview returns the decimated view of an object at its current LOD.
func (s *Store) Preview(name string, capPoints int) (gaussian.Preview, error) {
	s.mu.RLock()
	rec, ok := s.objects[name]
	s.mu.RUnlock()
	if !ok {
		return gaussian.Preview{}, errors.Errorf("no object named %q", name)
	}
	return gaussian.Decimate(rec.set, rec.lod, capPoints), nil
}

// SetTransform records an object's world transform.
func (s *Store) SetTransform(name string, m Transform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.objects[name]
	if !ok {
		return errors.Errorf("no object named %q", name)
	}
	rec.transform = m
	return nil
}

// Transform returns an object's last known world transform.
func (s *Store) Transform(name string) (Transform, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.objects[name]
	if !ok {
		return Transform{}, false
	}
	return rec.transform, true
}

// HasChanged reports whether current differs from the object's last known
// transform beyond a small epsilon. The store owns no timer; an external
// poller calls this at whatever cadence it chooses and follows up with
// SetTransform when it returns true. Unknown names report false.
func (s *Store) HasChanged(name string, current Transform) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.objects[name]
	if !ok {
		return false
	}
	return !rec.transform.ApproxEqual(current)
}
