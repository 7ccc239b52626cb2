package pose

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Set is the landmark output of one detection. A nil *Set means no person was found.
type Set struct {
	points map[Name]Landmark
}

// FromSlice builds a set from model output order. Entries past the topology are ignored.
func FromSlice(points []Landmark) *Set {
	s := &Set{points: make(map[Name]Landmark, len(points))}
	for i, p := range points {
		if i >= NumLandmarks {
			break
		}
		s.points[names[i]] = p
	}
	return s
}

// FromNamed builds a set from named points.
func FromNamed(points map[Name]Landmark) (*Set, error) {
	s := &Set{points: make(map[Name]Landmark, len(points))}
	for n, p := range points {
		if !n.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLandmark, n)
		}
		s.points[n] = p
	}
	return s, nil
}

// Get returns the named landmark.
func (s *Set) Get(n Name) (Landmark, bool) {
	if s == nil {
		return Landmark{}, false
	}
	p, ok := s.points[n]
	return p, ok
}

// Len returns the number of landmarks present.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.points)
}

// Require returns the requested landmarks in order, or an *IncompleteLandmarksError.
func (s *Set) Require(ns ...Name) ([]Landmark, error) {
	out := make([]Landmark, len(ns))
	var incomplete IncompleteLandmarksError
	for i, n := range ns {
		p, ok := s.Get(n)
		switch {
		case !ok:
			incomplete.Missing = append(incomplete.Missing, n)
		case !p.Finite():
			incomplete.Invalid = append(incomplete.Invalid, n)
		default:
			out[i] = p
		}
	}
	if len(incomplete.Missing) > 0 || len(incomplete.Invalid) > 0 {
		return nil, &incomplete
	}
	return out, nil
}

// With returns a copy of s with n replaced.
func (s *Set) With(n Name, p Landmark) *Set {
	c := s.clone()
	c.points[n] = p
	return c
}

// Without returns a copy of s lacking n.
func (s *Set) Without(n Name) *Set {
	c := s.clone()
	delete(c.points, n)
	return c
}

// Mirror reflects the set horizontally: x becomes 1-x and left/right labels swap,
// which is what the same pose looks like through a selfie camera.
func (s *Set) Mirror() *Set {
	if s == nil {
		return nil
	}
	c := &Set{points: make(map[Name]Landmark, len(s.points))}
	for n, p := range s.points {
		p.X = 1 - p.X
		c.points[n.Mirror()] = p
	}
	return c
}

// SwapSides exchanges left and right labels without moving any point.
func (s *Set) SwapSides() *Set {
	if s == nil {
		return nil
	}
	c := &Set{points: make(map[Name]Landmark, len(s.points))}
	for n, p := range s.points {
		c.points[n.Mirror()] = p
	}
	return c
}

// Slice returns the landmarks in model output order; absent points are zero.
func (s *Set) Slice() []Landmark {
	out := make([]Landmark, NumLandmarks)
	for i, n := range names {
		out[i], _ = s.Get(n)
	}
	return out
}

func (s *Set) clone() *Set {
	c := &Set{points: make(map[Name]Landmark, s.Len()+1)}
	if s != nil {
		for n, p := range s.points {
			c.points[n] = p
		}
	}
	return c
}

// MarshalJSON encodes the set as an object keyed by landmark name.
func (s *Set) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	keys := make([]string, 0, len(s.points))
	for n := range s.points {
		keys = append(keys, string(n))
	}
	sort.Strings(keys)
	m := make(map[string]Landmark, len(keys))
	for _, k := range keys {
		m[k] = s.points[Name(k)]
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts either an array in model output order or an object keyed by name.
func (s *Set) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return ErrMalformedLandmarks
	}
	switch trimmed[0] {
	case '[':
		var arr []Landmark
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedLandmarks, err)
		}
		*s = *FromSlice(arr)
		return nil
	case '{':
		var obj map[Name]Landmark
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedLandmarks, err)
		}
		named, err := FromNamed(obj)
		if err != nil {
			return err
		}
		*s = *named
		return nil
	}
	return ErrMalformedLandmarks
}
