package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.AddPerson("ada")
	s.AddPerson("grace")
	require.NoError(t, s.AddImage(Image{Hash: "h1", Identity: 0}))
	require.NoError(t, s.AddImage(Image{Hash: "h2", Identity: Unknown}))
	return s
}

func TestAddPerson_AppendsInOrder(t *testing.T) {
	s := New()
	assert.Equal(t, 0, s.AddPerson("ada"))
	assert.Equal(t, 1, s.AddPerson("grace"))
	assert.Equal(t, []string{"ada", "grace"}, s.People())
}

func TestAddImage_DuplicateHashReplacesInPlace(t *testing.T) {
	s := seeded(t)
	require.NoError(t, s.AddImage(Image{Hash: "h1", Identity: 1, Image: "new"}))

	imgs := s.Images()
	require.Len(t, imgs, 2)
	assert.Equal(t, "h1", imgs[0].Hash)
	assert.Equal(t, 1, imgs[0].Identity)
	assert.Equal(t, "new", imgs[0].Image)
}

func TestAddImage_RejectsInvalid(t *testing.T) {
	s := seeded(t)
	assert.ErrorIs(t, s.AddImage(Image{Hash: "h3", Identity: 2}), ErrIdentityOutOfRange)
	assert.ErrorIs(t, s.AddImage(Image{Hash: "h3", Identity: -2}), ErrIdentityOutOfRange)
	assert.ErrorIs(t, s.AddImage(Image{Identity: 0}), ErrEmptyHash)
	assert.Len(t, s.Images(), 2)
}

func TestUpdateIdentity(t *testing.T) {
	cases := []struct {
		name    string
		hash    string
		idx     int
		wantOK  bool
		wantErr error
	}{
		{name: "present hash", hash: "h2", idx: 1, wantOK: true},
		{name: "back to unknown", hash: "h1", idx: Unknown, wantOK: true},
		{name: "absent hash", hash: "nope", idx: 1, wantOK: false},
		{name: "index out of range", hash: "h1", idx: 5, wantErr: ErrIdentityOutOfRange},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := seeded(t)
			before := s.Images()

			ok, err := s.UpdateIdentity(tc.hash, tc.idx)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, before, s.Images())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantOK, ok)

			after := s.Images()
			for i := range before {
				if before[i].Hash == tc.hash && tc.wantOK {
					assert.Equal(t, tc.idx, after[i].Identity)
				} else {
					assert.Equal(t, before[i], after[i])
				}
			}
		})
	}
}

func TestRemoveImage_Idempotent(t *testing.T) {
	s := seeded(t)
	assert.True(t, s.RemoveImage("h1"))
	assert.Len(t, s.Images(), 1)

	assert.False(t, s.RemoveImage("h1"))
	assert.Len(t, s.Images(), 1)
	_, found := s.Find("h1")
	assert.False(t, found)
}

func TestCountsAndLabels(t *testing.T) {
	s := seeded(t)
	require.NoError(t, s.AddImage(Image{Hash: "h3", Identity: 0}))

	assert.Equal(t, map[int]int{Unknown: 1, 0: 2, 1: 0}, s.Counts())
	assert.Equal(t, "grace", s.Label(1))
	assert.Equal(t, "Unknown", s.Label(Unknown))
	assert.Equal(t, "Unknown", s.Label(9))
}

func TestSnapshot_CopiesState(t *testing.T) {
	s := seeded(t)
	s.SetTraining(false)

	snap := s.Snapshot()
	assert.Equal(t, []string{"ada", "grace"}, snap.People)
	assert.False(t, snap.Training)
	require.Len(t, snap.Images, 2)
	assert.Equal(t, "h2", snap.Images[1].Hash)
	assert.Equal(t, Unknown, snap.Images[1].Identity)

	snap.People[0] = "mutated"
	assert.Equal(t, "ada", s.Label(0))
}
