package strategy

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"

	"valetbench/internal/runner"
)

// Transfer modes.
const (
	ModePut    = "put"
	ModeAzCopy = "azcopy"
	ModeSDK    = "sdk"
)

// PutTransfer does a single-shot block blob PUT of the whole file.
type PutTransfer struct {
	Client *http.Client
}

func (PutTransfer) Mode() string { return ModePut }

func (t PutTransfer) Transfer(ctx context.Context, f runner.FileRef, uploadURL string) error {
	fh, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer fh.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, fh)
	if err != nil {
		return err
	}
	req.ContentLength = f.Size
	req.Header.Set("x-ms-blob-type", "BlockBlob")
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &StatusError{Op: "put", Code: resp.StatusCode, Body: readSnippet(resp.Body)}
	}
	return nil
}

// SDKTransfer uploads with the Azure block blob client, splitting the file
// into blocks sent in parallel.
type SDKTransfer struct {
	BlockSizeMB int
	Parallelism int
}

func (SDKTransfer) Mode() string { return ModeSDK }

func (t SDKTransfer) Transfer(ctx context.Context, f runner.FileRef, uploadURL string) error {
	client, err := blockblob.NewClientWithNoCredential(uploadURL, nil)
	if err != nil {
		return fmt.Errorf("blob client: %w", err)
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer fh.Close()

	opts := &blockblob.UploadFileOptions{}
	if t.BlockSizeMB > 0 {
		opts.BlockSize = int64(t.BlockSizeMB) * 1024 * 1024
	}
	if t.Parallelism > 0 {
		opts.Concurrency = uint16(t.Parallelism)
	}
	_, err = client.UploadFile(ctx, fh, opts)
	return err
}

var (
	_ Transferer = PutTransfer{}
	_ Transferer = SDKTransfer{}
	_ Transferer = &AzCopy{}
)
