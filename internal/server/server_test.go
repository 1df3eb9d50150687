package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"flashstr/internal/catalog"
	"flashstr/internal/flash"
	"flashstr/internal/store"

	"github.com/cespare/xxhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageSize = 0x100

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	mem := flash.CreateMem(flash.CompactLayout(pageSize, 2))
	st := store.New(mem, catalog.FromDriver(mem, pageSize))
	ts := httptest.NewServer(New(st).Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func do(t *testing.T, method, url string, body io.Reader) *http.Response {
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func Test_Server_Health(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func Test_Server_Save_Load_Erase(t *testing.T) {
	ts, st := newTestServer(t)

	resp := do(t, http.MethodPut, ts.URL+"/entries/hello", strings.NewReader("moo"))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	view, ok, err := st.Load("hello")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "moo", string(view))

	resp = do(t, http.MethodGet, ts.URL+"/entries/hello", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "moo", string(body))
	etag := fmt.Sprintf("\"%016x\"", xxhash.Sum64([]byte("moo")))
	assert.Equal(t, etag, resp.Header.Get("ETag"))

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/entries/hello", nil)
	req.Header.Set("If-None-Match", etag)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotModified, resp2.StatusCode)

	resp = do(t, http.MethodDelete, ts.URL+"/entries/hello", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/entries/hello", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// erasing again is fine
	resp = do(t, http.MethodDelete, ts.URL+"/entries/hello", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func Test_Server_List(t *testing.T) {
	ts, st := newTestServer(t)
	require.NoError(t, st.Save("a", []byte("1")))
	require.NoError(t, st.Save("ccc", []byte("333")))

	resp := do(t, http.MethodGet, ts.URL+"/entries", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var l store.Listing
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&l))
	require.Len(t, l.Entries, 2)
	assert.Equal(t, "a", l.Entries[0].Name)
	assert.Equal(t, 3, l.Entries[1].Size)
	assert.Equal(t, 2, l.Free)
}

func Test_Server_List_Empty(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/entries", nil)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"entries":[],"free":4}`, string(body))
}

func Test_Server_Errors(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, http.MethodPut, ts.URL+"/entries/big", bytes.NewReader(make([]byte, pageSize)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp = do(t, http.MethodPut, ts.URL+"/entries/"+strings.Repeat("n", 253), strings.NewReader("x"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for i := range 4 {
		resp = do(t, http.MethodPut, fmt.Sprintf("%s/entries/m%d", ts.URL, i), strings.NewReader("x"))
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
	resp = do(t, http.MethodPut, ts.URL+"/entries/full", strings.NewReader("x"))
	assert.Equal(t, http.StatusInsufficientStorage, resp.StatusCode)

	var e errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Contains(t, e.Error, "no space")
}

func Test_Server_EraseAll(t *testing.T) {
	ts, st := newTestServer(t)
	for i := range 4 {
		require.NoError(t, st.Save(fmt.Sprintf("m%d", i), []byte("x")))
	}

	resp := do(t, http.MethodDelete, ts.URL+"/entries", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	l, err := st.List()
	require.NoError(t, err)
	// default scope keeps the two odd pages
	assert.Len(t, l.Entries, 2)
}

func Test_Server_Escaped_Name(t *testing.T) {
	ts, st := newTestServer(t)
	resp := do(t, http.MethodPut, ts.URL+"/entries/my%20mod", strings.NewReader("x"))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, ok, err := st.Load("my mod")
	require.NoError(t, err)
	assert.True(t, ok)
}

func Test_Server_Percent_Name(t *testing.T) {
	ts, st := newTestServer(t)
	require.NoError(t, st.Save("100%", []byte("full")))

	resp := do(t, http.MethodGet, ts.URL+"/entries/100%25", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "full", string(body))

	// escaped slash forces chi onto the raw path
	resp = do(t, http.MethodPut, ts.URL+"/entries/a%2Fb%25", strings.NewReader("x"))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, ok, err := st.Load("a/b%")
	require.NoError(t, err)
	assert.True(t, ok)

	resp = do(t, http.MethodDelete, ts.URL+"/entries/100%25", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, ok, err = st.Load("100%")
	require.NoError(t, err)
	assert.False(t, ok)
}
