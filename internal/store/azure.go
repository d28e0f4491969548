package store

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/cachegate/cachegate/internal/config"
)

// azureStore adapts an Azure Blob container to the Store capability via a
// connection-string-authenticated client.
type azureStore struct {
	client    *azblob.Client
	container string
}

func newAzureStore(desc config.Store) (Store, error) {
	client, err := azblob.NewClientFromConnectionString(desc.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: client from connection string: %w", err)
	}
	return &azureStore{client: client, container: desc.Container}, nil
}

func (a *azureStore) Get(ctx context.Context, path string) (Object, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, path, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return Object{}, ErrNotFound
		}
		return Object{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Object{}, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}

	contentType := ""
	if resp.ContentType != nil {
		contentType = *resp.ContentType
	}
	return Object{Bytes: body, ContentType: contentType}, nil
}

func (a *azureStore) Head(ctx context.Context, path string) (Meta, error) {
	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(path)
	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return Meta{}, ErrNotFound
		}
		return Meta{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	contentType := ""
	if props.ContentType != nil {
		contentType = *props.ContentType
	}
	size := int64(0)
	if props.ContentLength != nil {
		size = *props.ContentLength
	}
	return Meta{Size: size, ContentType: contentType}, nil
}

func (a *azureStore) Put(ctx context.Context, path string, body []byte, contentType string) error {
	var opts *azblob.UploadBufferOptions
	if contentType != "" {
		opts = &azblob.UploadBufferOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		}
	}
	_, err := a.client.UploadBuffer(ctx, a.container, path, body, opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return nil
}
