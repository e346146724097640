package strategy

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"valetbench/internal/runner"
)

// Proxy uploads the file through the application server in one multipart
// POST.
type Proxy struct {
	Client *http.Client
	URL    string
}

func NewProxy(client *http.Client, url string) *Proxy {
	return &Proxy{Client: client, URL: url}
}

func (p *Proxy) Name() string { return "PROXY" }

func (p *Proxy) Execute(ctx context.Context, cred runner.Credential, f runner.FileRef) runner.Outcome {
	fh, err := os.Open(f.Path)
	if err != nil {
		return failed(time.Time{}, fmt.Errorf("open %s: %w", f.Name, err))
	}
	defer fh.Close()

	start := time.Now()
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, f.Name, fh))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, pr)
	if err != nil {
		pr.CloseWithError(err)
		return failed(start, fmt.Errorf("proxy upload: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.AddCookie(sessionCookie(cred))

	resp, err := p.Client.Do(req)
	if err != nil {
		return failed(start, fmt.Errorf("proxy upload: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet := readSnippet(resp.Body)
		return failed(start, &StatusError{Op: "proxy upload", Code: resp.StatusCode, Body: snippet})
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return runner.Outcome{
		Elapsed:    time.Since(start),
		Success:    true,
		StatusCode: resp.StatusCode,
		Server:     parseServerMetrics(body),
	}
}

func writeForm(mw *multipart.Writer, name string, r io.Reader) error {
	if err := mw.WriteField("fileName", name); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

var _ runner.Strategy = &Proxy{}
