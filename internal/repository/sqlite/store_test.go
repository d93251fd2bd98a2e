package sqlite

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open("sqlite3:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestNormalizeDSN(t *testing.T) {
	assert.Equal(t, "file:data.db?_pragma=busy_timeout(5000)", normalizeDSN("sqlite3:./data.db"))
	assert.Equal(t, "file:/var/lib/app.db?_pragma=busy_timeout(5000)", normalizeDSN("sqlite:/var/lib/app.db"))
	assert.Equal(t, "file:data.db?_pragma=busy_timeout(5000)", normalizeDSN(""))
	assert.Equal(t, "file::memory:?_pragma=busy_timeout(5000)", normalizeDSN(":memory:"))
}

func TestStoreGetSetDelete(t *testing.T) {
	s := openTestStore(t)

	raw, err := s.Get("accounts")
	require.NoError(t, err)
	assert.Nil(t, raw)

	require.NoError(t, s.Set("accounts", json.RawMessage(`[{"id":"a"}]`)))
	raw, err = s.Get("accounts")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a"}]`, string(raw))

	names, err := s.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"accounts"}, names)

	require.NoError(t, s.Delete("accounts"))
	raw, err = s.Get("accounts")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestStoreUpdateIsSerialized(t *testing.T) {
	s := openTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update("counter", func(cur json.RawMessage) (json.RawMessage, error) {
				var list []int
				if cur != nil {
					if err := json.Unmarshal(cur, &list); err != nil {
						return nil, err
					}
				}
				list = append(list, len(list))
				return json.Marshal(list)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	raw, err := s.Get("counter")
	require.NoError(t, err)
	var list []int
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Len(t, list, 20)
}

func TestStoreUpdateErrorLeavesPayload(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Set("x", json.RawMessage(`[1]`)))

	boom := errors.New("boom")
	err := s.Update("x", func(json.RawMessage) (json.RawMessage, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	raw, err := s.Get("x")
	require.NoError(t, err)
	assert.JSONEq(t, `[1]`, string(raw))
}
