package test

import (
	"context"
	"fmt"
	"net/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/notesbox/internal/auth"
)

func (s *IntegrationTestSuite) TestRegisterLoginLogout() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t := s.T()

	doRegister(ctx, t, "loginuser", "loginpass123")
	token := doLogin(ctx, t, "loginuser", "loginpass123")

	// the session works
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/notes/page/1/size/10", serverEndpoint), nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set(auth.TokenHeader, token)

	resp, err := s.httpClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// logout kills the session
	req, err = http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/a/logout", serverEndpoint), nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set(auth.TokenHeader, token)

	resp, err = s.httpClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err = http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/notes/page/1/size/10", serverEndpoint), nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set(auth.TokenHeader, token)

	resp, err = s.httpClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func (s *IntegrationTestSuite) TestLogin_wrongCredentials() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t := s.T()

	doRegister(ctx, t, "wrongcreds", "rightpass123")

	creds := credentialsRequest{
		Username: "wrongcreds",
		Password: "wrongpass123",
	}
	resp := s.doJSONRequest(ctx, "POST", "/a/login", "", creds)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
