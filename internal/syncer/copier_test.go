package syncer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objsync/objsync/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCopier_Express(t *testing.T) {
	mem := store.NewMemStore()
	mem.Put("bkt", "in/a.txt", []byte("hello"), time.Now().UTC())

	c := &copier{
		source:      Location{Store: mem, Bucket: "bkt", Prefix: "in/"},
		destination: Location{Store: mem, Bucket: "bkt", Prefix: "out/"},
		maxRetries:  1,
		express:     true,
		log:         quietLogger(),
	}

	src, err := mem.Stat("bkt", "in/a.txt")
	require.NoError(t, err)
	require.NoError(t, c.copy(context.Background(), src))

	data, err := mem.Get("bkt", "out/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestCopier_Streamed(t *testing.T) {
	srcStore := store.NewMemStore()
	dstStore := store.NewMemStore()
	srcStore.Put("src-bkt", "data/a.txt", []byte("payload"), time.Now().UTC())

	c := &copier{
		source:      Location{Store: srcStore, Bucket: "src-bkt", Prefix: "data/"},
		destination: Location{Store: dstStore, Bucket: "dst-bkt", Prefix: "mirror/"},
		maxRetries:  1,
		express:     false,
		log:         quietLogger(),
	}

	src, err := srcStore.Stat("src-bkt", "data/a.txt")
	require.NoError(t, err)
	require.NoError(t, c.copy(context.Background(), src))

	meta, err := dstStore.Stat("dst-bkt", "mirror/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(len("payload")), meta.Size)
}

func TestCopier_RetriesThenSucceeds(t *testing.T) {
	mem := store.NewMemStore()
	mem.Put("bkt", "in/a.txt", []byte("hello"), time.Now().UTC())
	mem.FailCopies["out/a.txt"] = 2

	c := &copier{
		source:      Location{Store: mem, Bucket: "bkt", Prefix: "in/"},
		destination: Location{Store: mem, Bucket: "bkt", Prefix: "out/"},
		maxRetries:  3,
		express:     true,
		log:         quietLogger(),
	}

	src, err := mem.Stat("bkt", "in/a.txt")
	require.NoError(t, err)
	require.NoError(t, c.copy(context.Background(), src))

	_, err = mem.Stat("bkt", "out/a.txt")
	assert.NoError(t, err)
}

func TestCopier_Exhaustion(t *testing.T) {
	mem := store.NewMemStore()
	mem.Put("bkt", "in/a.txt", []byte("hello"), time.Now().UTC())
	mem.FailCopies["out/a.txt"] = -1 // never succeeds

	c := &copier{
		source:      Location{Store: mem, Bucket: "bkt", Prefix: "in/"},
		destination: Location{Store: mem, Bucket: "bkt", Prefix: "out/"},
		maxRetries:  4,
		express:     true,
		log:         quietLogger(),
	}

	src, err := mem.Stat("bkt", "in/a.txt")
	require.NoError(t, err)
	err = c.copy(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.True(t, store.IsAccessError(err))
}

func TestCopier_StreamedDoesNotTouchServerSideCopy(t *testing.T) {
	mem := store.NewMemStore()
	mem.Put("bkt", "in/a.txt", []byte("hello"), time.Now().UTC())

	c := &copier{
		source:      Location{Store: mem, Bucket: "bkt", Prefix: "in/"},
		destination: Location{Store: mem, Bucket: "bkt", Prefix: "out/"},
		maxRetries:  1,
		express:     false, // forced streaming despite shared handle
		log:         quietLogger(),
	}

	src, err := mem.Stat("bkt", "in/a.txt")
	require.NoError(t, err)
	require.NoError(t, c.copy(context.Background(), src))

	body, err := mem.OpenRead(context.Background(), "bkt", "out/a.txt")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}
