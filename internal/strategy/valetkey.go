package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"valetbench/internal/runner"
)

// URLRequester asks the backend for a delegated upload URL.
type URLRequester interface {
	RequestUploadURL(ctx context.Context, cred runner.Credential, object string) (string, error)
}

// Transferer writes a file straight to storage through a delegated URL.
type Transferer interface {
	Mode() string
	Transfer(ctx context.Context, f runner.FileRef, uploadURL string) error
}

// SASRequester requests a write SAS from POST {URL}?blobName=<object>.
type SASRequester struct {
	Client *http.Client
	URL    string
}

type sasResponse struct {
	SASURL           string `json:"sasUrl"`
	BlobPath         string `json:"blobPath"`
	ExpiresInMinutes int    `json:"expiresInMinutes"`
}

func (r *SASRequester) RequestUploadURL(ctx context.Context, cred runner.Credential, object string) (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("sas endpoint: %w", err)
	}
	q := u.Query()
	q.Set("blobName", object)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("sas request: %w", err)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.AddCookie(sessionCookie(cred))

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sas request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Op: "sas request", Code: resp.StatusCode, Body: readSnippet(resp.Body)}
	}

	var body sasResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("sas request: decode response: %w", err)
	}
	if body.SASURL == "" {
		return "", fmt.Errorf("sas request for %s: %w", object, ErrNoUploadURL)
	}
	return body.SASURL, nil
}

// ValetKey requests a delegated URL for each file and then uploads directly
// to storage. The URL request counts toward the elapsed time.
type ValetKey struct {
	URLs     URLRequester
	Transfer Transferer
	Names    *NameTemplate
}

func NewValetKey(urls URLRequester, t Transferer, names *NameTemplate) *ValetKey {
	return &ValetKey{URLs: urls, Transfer: t, Names: names}
}

func (v *ValetKey) Name() string { return "SAS" }

func (v *ValetKey) Execute(ctx context.Context, cred runner.Credential, f runner.FileRef) runner.Outcome {
	start := time.Now()

	object := f.Name
	if v.Names != nil {
		name, err := v.Names.Render(f)
		if err != nil {
			return failed(time.Time{}, err)
		}
		object = name
	}

	uploadURL, err := v.URLs.RequestUploadURL(ctx, cred, object)
	if err != nil {
		return failed(start, err)
	}
	if err := v.Transfer.Transfer(ctx, f, uploadURL); err != nil {
		return failed(start, fmt.Errorf("%s transfer: %w", v.Transfer.Mode(), err))
	}
	return runner.Outcome{
		Elapsed: time.Since(start),
		Success: true,
	}
}

var (
	_ runner.Strategy = &ValetKey{}
	_ URLRequester    = &SASRequester{}
)
