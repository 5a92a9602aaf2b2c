package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/notesbox/internal/auth"
	"github.com/2beens/notesbox/internal/notes"
)

func (s *IntegrationTestSuite) doJSONRequest(
	ctx context.Context,
	method, path, token string,
	payload interface{},
) *http.Response {
	t := s.T()
	t.Helper()

	var body io.Reader
	if payload != nil {
		payloadJson, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(payloadJson)
	}

	req, err := http.NewRequestWithContext(ctx, method, serverEndpoint+path, body)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(auth.TokenHeader, token)
	}

	resp, err := s.httpClient.Do(req)
	require.NoError(t, err)
	return resp
}

type noteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *IntegrationTestSuite) TestNotes_CRUD() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t := s.T()

	doRegister(ctx, t, "crud-user", "crudpass123")
	token := doLogin(ctx, t, "crud-user", "crudpass123")

	// starts empty
	resp := s.doJSONRequest(ctx, "GET", "/notes/page/1/size/10", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listResp notes.ListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listResp))
	resp.Body.Close()
	assert.Empty(t, listResp.Notes)
	assert.Equal(t, 0, listResp.Total)

	// add
	resp = s.doJSONRequest(ctx, "POST", "/notes", token, noteRequest{
		Title:   "groceries",
		Content: "buy milk and bread",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var added notes.Note
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&added))
	resp.Body.Close()
	require.Positive(t, added.Id)

	// get
	resp = s.doJSONRequest(ctx, "GET", fmt.Sprintf("/notes/%d", added.Id), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var gotten notes.Note
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&gotten))
	resp.Body.Close()
	assert.Equal(t, "groceries", gotten.Title)
	assert.Equal(t, "buy milk and bread", gotten.Content)

	// update
	resp = s.doJSONRequest(ctx, "PUT", fmt.Sprintf("/notes/%d", added.Id), token, noteRequest{
		Title:   "groceries v2",
		Content: "buy milk, bread and eggs",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated notes.Note
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	resp.Body.Close()
	assert.Equal(t, "groceries v2", updated.Title)

	// delete
	resp = s.doJSONRequest(ctx, "DELETE", fmt.Sprintf("/notes/%d", added.Id), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var deleted notes.Note
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&deleted))
	resp.Body.Close()
	assert.NotNil(t, deleted.DeletedAt)

	// and then it is gone
	resp = s.doJSONRequest(ctx, "GET", fmt.Sprintf("/notes/%d", added.Id), token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// but the row is still in the table, soft-deleted
	var deletedCount int
	require.NoError(t, s.DB.QueryRow(
		`SELECT COUNT(*) FROM notes WHERE id = $1 AND deleted_at IS NOT NULL`, added.Id,
	).Scan(&deletedCount))
	assert.Equal(t, 1, deletedCount)
}

func (s *IntegrationTestSuite) TestNotes_ownership() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t := s.T()

	doRegister(ctx, t, "owner-one", "ownerpass123")
	doRegister(ctx, t, "owner-two", "ownerpass123")
	tokenOne := doLogin(ctx, t, "owner-one", "ownerpass123")
	tokenTwo := doLogin(ctx, t, "owner-two", "ownerpass123")

	resp := s.doJSONRequest(ctx, "POST", "/notes", tokenOne, noteRequest{
		Title:   "private",
		Content: "note of the first owner",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var added notes.Note
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&added))
	resp.Body.Close()

	// the second user cannot read, update or delete it
	resp = s.doJSONRequest(ctx, "GET", fmt.Sprintf("/notes/%d", added.Id), tokenTwo, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.doJSONRequest(ctx, "PUT", fmt.Sprintf("/notes/%d", added.Id), tokenTwo, noteRequest{
		Title:   "hijack",
		Content: "this should never work",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.doJSONRequest(ctx, "DELETE", fmt.Sprintf("/notes/%d", added.Id), tokenTwo, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// the owner still sees it untouched
	resp = s.doJSONRequest(ctx, "GET", fmt.Sprintf("/notes/%d", added.Id), tokenOne, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var gotten notes.Note
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&gotten))
	resp.Body.Close()
	assert.Equal(t, "private", gotten.Title)
}
