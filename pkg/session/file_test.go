package session

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igfeed/pkg/logger"
)

type xorSealer struct{ key byte }

func (x xorSealer) Seal(p []byte) ([]byte, error) {
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = b ^ x.key
	}
	return out, nil
}

func (x xorSealer) Open(c []byte) ([]byte, error) {
	if len(c) == 0 {
		return nil, errors.New("empty")
	}
	return x.Seal(c)
}

func newTestStore(opts ...FileOption) (*FileStore, afero.Fs) {
	fs := afero.NewMemMapFs()
	opts = append([]FileOption{WithFs(fs)}, opts...)
	return NewFileStore("/data/igfeed/session.json", logger.NewTestLogger(), opts...), fs
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, fs := newTestStore()

	sess := New()
	sess.Set(Cookie{Name: "csrftoken", Value: "tok", Domain: "instagram.com"})
	sess.Set(Cookie{Name: "sessionid", Value: "sid", Domain: "instagram.com", Secure: true, HttpOnly: true})

	require.NoError(t, store.Save(sess, "alice"))

	exists, err := afero.Exists(fs, store.Path()+".tmp")
	require.NoError(t, err)
	assert.False(t, exists, "temporary file should be renamed away")

	loaded, err := store.Load()
	require.NoError(t, err)
	snap, ok := loaded.Get()
	require.True(t, ok)
	assert.Equal(t, "alice", snap.Username)
	assert.Equal(t, snapshotVersion, snap.Version)

	restored := snap.Restore()
	assert.Equal(t, "tok", restored.CSRFToken())
	assert.Equal(t, sess.All(), restored.All())
}

func TestFileStoreLoadMissing(t *testing.T) {
	store, _ := newTestStore()

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.True(t, loaded.IsAbsent())
}

func TestFileStoreSealed(t *testing.T) {
	store, fs := newTestStore(WithSealer(xorSealer{key: 0x5a}))

	sess := New()
	sess.Set(Cookie{Name: "sessionid", Value: "secret-value", Domain: "instagram.com"})
	require.NoError(t, store.Save(sess, "bob"))

	raw, err := afero.ReadFile(fs, store.Path())
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("secret-value")))

	loaded, err := store.Load()
	require.NoError(t, err)
	snap := loaded.MustGet()
	v, ok := snap.Restore().Get("sessionid")
	assert.True(t, ok)
	assert.Equal(t, "secret-value", v)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	store, fs := newTestStore()
	require.NoError(t, afero.WriteFile(fs, store.Path(), []byte("{not json"), 0600))

	_, err := store.Load()
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, store.Path(), []byte(`{"version":99}`), 0600))
	_, err = store.Load()
	assert.ErrorContains(t, err, "unsupported session file version")
}

func TestFileStoreDelete(t *testing.T) {
	store, fs := newTestStore()
	require.NoError(t, store.Save(New(), "alice"))

	require.NoError(t, store.Delete())
	exists, _ := afero.Exists(fs, store.Path())
	assert.False(t, exists)

	assert.NoError(t, store.Delete(), "deleting twice is not an error")
}

func TestRestoreDropsExpiredCookies(t *testing.T) {
	snap := &Snapshot{
		Version: snapshotVersion,
		Cookies: []Cookie{
			{Name: "old", Value: "1", Domain: "instagram.com", Path: "/", Expires: time.Now().Add(-time.Hour)},
			{Name: "fresh", Value: "2", Domain: "instagram.com", Path: "/", Expires: time.Now().Add(time.Hour)},
		},
	}

	restored := snap.Restore()
	_, ok := restored.Get("old")
	assert.False(t, ok)
	_, ok = restored.Get("fresh")
	assert.True(t, ok)
}
