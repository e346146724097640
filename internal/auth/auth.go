// Package auth acquires the session credential used by every strategy.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"valetbench/internal/runner"
	"valetbench/internal/strategy"
)

// ErrNoSession is returned when login succeeds but no session cookie is set.
var ErrNoSession = errors.New("login succeeded but no session cookie was set")

// Options describe how to log in.
type Options struct {
	BaseURL   string
	LoginPath string
	Username  string
	Password  string

	// Session skips the login call when set.
	Session string
}

// Acquire returns the credential for the run. It logs in once unless a
// session id is already configured. Any error is fatal for the run.
func Acquire(ctx context.Context, client *http.Client, opts Options) (runner.Credential, error) {
	if s := strings.TrimSpace(opts.Session); s != "" {
		return runner.Credential(s), nil
	}
	return Login(ctx, client, opts)
}

// Login posts the username and password as JSON and reads the session
// cookie from the response.
func Login(ctx context.Context, client *http.Client, opts Options) (runner.Credential, error) {
	loginURL, err := url.JoinPath(opts.BaseURL, opts.LoginPath)
	if err != nil {
		return "", fmt.Errorf("login url: %w", err)
	}
	body, err := json.Marshal(map[string]string{
		"username": opts.Username,
		"password": opts.Password,
	})
	if err != nil {
		return "", err
	}

	// A private jar so the shared client never carries the cookie implicitly.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", err
	}
	c := *client
	c.Jar = jar

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("login: unexpected status %d", resp.StatusCode)
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == strategy.SessionCookie && ck.Value != "" {
			return runner.Credential(ck.Value), nil
		}
	}
	u, _ := url.Parse(loginURL)
	for _, ck := range jar.Cookies(u) {
		if ck.Name == strategy.SessionCookie && ck.Value != "" {
			return runner.Credential(ck.Value), nil
		}
	}
	return "", ErrNoSession
}
