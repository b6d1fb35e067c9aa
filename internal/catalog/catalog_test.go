package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_LookupSkipsInactive(t *testing.T) {
	snap := NewSnapshot("inr", []Product{
		{ID: "1", Name: "Lipstick", Price: 89900, Active: true},
		{ID: "2", Name: "Retired Blush", Price: 50000, Active: false},
	})

	p, err := snap.Lookup("1")
	require.NoError(t, err)
	assert.Equal(t, int64(89900), p.Price)
	assert.Equal(t, "INR", snap.Currency)

	_, err = snap.Lookup("2")
	assert.ErrorIs(t, err, ErrProductNotFound)
	_, err = snap.Lookup("999")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestMemoryCatalog_SnapshotIsIsolated(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog("INR", Product{ID: "1", Price: 100, Active: true})

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	c.Put(Product{ID: "1", Price: 200, Active: true})

	p, _ := snap.Lookup("1")
	assert.Equal(t, int64(100), p.Price)
	assert.Equal(t, "INR", p.Currency)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"7","name":"Toner","price":45000,"active":true}]`), 0o600))

	c, err := LoadFile(path, "INR")
	require.NoError(t, err)

	snap, _ := c.Snapshot(context.Background())
	require.Len(t, snap.Products(), 1)
	assert.Equal(t, "Toner", snap.Products()[0].Name)
}

func TestLoadFile_Defaults(t *testing.T) {
	c, err := LoadFile("", "INR")
	require.NoError(t, err)

	snap, _ := c.Snapshot(context.Background())
	assert.Len(t, snap.Products(), len(DefaultProducts("INR")))
}

func TestLoadFile_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := LoadFile(path, "INR")
	assert.Error(t, err)
}
