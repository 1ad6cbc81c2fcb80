package store

import (
	"errors"
	"slices"

	wire "github.com/DoyleJ11/facecap/pkg/types"
)

// Unknown is the identity of an image that belongs to nobody in the roster.
const Unknown = -1

var ErrIdentityOutOfRange = errors.New("identity out of range")
var ErrEmptyHash = errors.New("empty image hash")

type Image struct {
	Hash           string
	Identity       int
	Image          string // PNG data URL
	Representation []float64
}

// Store mirrors the server's roster and gallery. It is owned by a single
// goroutine and does no locking.
type Store struct {
	people   []string
	images   []Image
	training bool
}

func New() *Store {
	return &Store{training: true}
}

// AddPerson appends name to the roster and returns its index.
func (s *Store) AddPerson(name string) int {
	s.people = append(s.people, name)
	return len(s.people) - 1
}

func (s *Store) People() []string { return slices.Clone(s.people) }

func (s *Store) Images() []Image { return slices.Clone(s.images) }

func (s *Store) Training() bool { return s.training }

func (s *Store) SetTraining(v bool) { s.training = v }

// ValidIdentity reports whether idx is Unknown or an index into the roster.
func (s *Store) ValidIdentity(idx int) bool {
	return idx == Unknown || (idx >= 0 && idx < len(s.people))
}

// Label returns the roster label for idx, or "Unknown".
func (s *Store) Label(idx int) string {
	if idx < 0 || idx >= len(s.people) {
		return "Unknown"
	}
	return s.people[idx]
}

// AddImage inserts img. An image with the same hash is replaced in place.
func (s *Store) AddImage(img Image) error {
	if img.Hash == "" {
		return ErrEmptyHash
	}
	if !s.ValidIdentity(img.Identity) {
		return ErrIdentityOutOfRange
	}
	if i := s.find(img.Hash); i >= 0 {
		s.images[i] = img
		return nil
	}
	s.images = append(s.images, img)
	return nil
}

func (s *Store) Find(hash string) (Image, bool) {
	i := s.find(hash)
	if i < 0 {
		return Image{}, false
	}
	return s.images[i], true
}

// UpdateIdentity relabels the image with the given hash. It reports false
// when no such image exists.
func (s *Store) UpdateIdentity(hash string, idx int) (bool, error) {
	if !s.ValidIdentity(idx) {
		return false, ErrIdentityOutOfRange
	}
	i := s.find(hash)
	if i < 0 {
		return false, nil
	}
	s.images[i].Identity = idx
	return true, nil
}

// RemoveImage deletes the image with the given hash and reports whether
// one was removed.
func (s *Store) RemoveImage(hash string) bool {
	i := s.find(hash)
	if i < 0 {
		return false
	}
	s.images = slices.Delete(s.images, i, i+1)
	return true
}

// Counts returns the number of images per identity, including Unknown.
func (s *Store) Counts() map[int]int {
	counts := map[int]int{Unknown: 0}
	for i := range s.people {
		counts[i] = 0
	}
	for _, img := range s.images {
		counts[img.Identity]++
	}
	return counts
}

// Snapshot builds the ALL_STATE payload.
func (s *Store) Snapshot() wire.StateSnapshot {
	snap := wire.StateSnapshot{
		Images:   make([]wire.Image, 0, len(s.images)),
		People:   make([]string, len(s.people)),
		Training: s.training,
	}
	copy(snap.People, s.people)
	for _, img := range s.images {
		snap.Images = append(snap.Images, wire.Image{
			Hash:           img.Hash,
			Identity:       img.Identity,
			Image:          img.Image,
			Representation: img.Representation,
		})
	}
	return snap
}

func (s *Store) find(hash string) int {
	return slices.IndexFunc(s.images, func(img Image) bool { return img.Hash == hash })
}
