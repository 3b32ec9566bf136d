package store

import (
	"fmt"
	"path/filepath"
	"testing"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// nodeRecord creates a node record with a minimal JSON body.
func nodeRecord(key, typeName, name string, seq int64) Record {
	return Record{
		Key:  key,
		Type: typeName,
		Body: []byte(fmt.Sprintf(`{"Key":%q,"Name":%q}`, key, name)),
		Seq:  seq,
	}
}

// linkRecord creates a link record between two keys.
func linkRecord(key, typeName, from, to string, seq int64) Record {
	return Record{
		Key:     key,
		Type:    typeName,
		IsLink:  true,
		FromKey: from,
		ToKey:   to,
		Body:    []byte(fmt.Sprintf(`{"Key":%q,"From":{"Key":%q},"To":{"Key":%q}}`, key, from, to)),
		Seq:     seq,
	}
}
