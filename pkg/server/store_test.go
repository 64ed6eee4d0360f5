package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/waveform-computing/compoundpi"
)

func TestFileStoreAppendListGet(t *testing.T) {
	var store FileStore
	idx := store.Append(FileRecord{Type: compoundpi.FileImage, Timestamp: 1.0, Payload: []byte("a")})
	assert.Equal(t, 0, idx)
	assert.Equal(t, 1, store.Len())

	rec, ok := store.Get(0)
	assert.True(t, ok)
	assert.Equal(t, []byte("a"), rec.Payload)

	_, ok = store.Get(5)
	assert.False(t, ok)
}

func TestFileStoreClear(t *testing.T) {
	var store FileStore
	store.Append(FileRecord{Type: compoundpi.FileVideo, Timestamp: 1.0, Payload: []byte("v")})
	store.Clear()
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, store.List())
}
