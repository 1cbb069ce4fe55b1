package qbo

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenClient_Refresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "cid", user)
		require.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("refresh_token") {
		case "rt-1":
			_, _ = io.WriteString(w, `{"access_token":"at-2","refresh_token":"rt-2","token_type":"bearer","expires_in":3600,"x_refresh_token_expires_in":8726400}`)
		case "rt-keep":
			_, _ = io.WriteString(w, `{"access_token":"at-3","token_type":"bearer"}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
		}
	}))
	defer srv.Close()

	tc := NewTokenClient(OAuthConfig{ClientID: "cid", ClientSecret: "secret", TokenURL: srv.URL}, srv.Client())
	ctx := context.Background()

	before := time.Now()
	tok, err := tc.Refresh(ctx, "rt-1")
	require.NoError(t, err)
	require.Equal(t, "at-2", tok.AccessToken)
	require.Equal(t, "rt-2", tok.RefreshToken)
	require.WithinDuration(t, before.Add(time.Hour), tok.Expiry, 5*time.Second)

	tok, err = tc.Refresh(ctx, "rt-keep")
	require.NoError(t, err)
	require.Equal(t, "rt-keep", tok.RefreshToken)
	require.True(t, tok.Expiry.IsZero())

	_, err = tc.Refresh(ctx, "revoked")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid_grant")
}

func TestTokenClient_ExchangeAndAuthURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		require.Equal(t, "the-code", r.PostForm.Get("code"))
		require.Equal(t, "https://ovis.example/cb", r.PostForm.Get("redirect_uri"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"at","refresh_token":"rt","token_type":"bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	tc := NewTokenClient(OAuthConfig{
		ClientID: "cid", ClientSecret: "secret", RedirectURL: "https://ovis.example/cb", TokenURL: srv.URL,
	}, srv.Client())

	tok, err := tc.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	require.Equal(t, "rt", tok.RefreshToken)

	u, err := url.Parse(tc.AuthCodeURL("st"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u.String(), AuthURL))
	require.Equal(t, "st", u.Query().Get("state"))
	require.Equal(t, AccountingScope, u.Query().Get("scope"))
	require.Equal(t, "code", u.Query().Get("response_type"))
}
