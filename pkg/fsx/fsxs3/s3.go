// Package fsxs3 implements fsx.FileSystem against AWS S3, the production
// backend for the receipt blob store. Shaped after
// fsxlocal.LocalFileSystem's method set so the two are interchangeable
// behind config.StorageConfig.Mode.
package fsxs3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/ammonsd/activitytracking-core/pkg/fsx"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3FileSystem implements fsx.FileSystem using one S3 bucket as the root.
type S3FileSystem struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3FileSystem(client *s3.Client, bucket, prefix string) *S3FileSystem {
	return &S3FileSystem{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (fs *S3FileSystem) key(p string) string {
	if fs.prefix == "" {
		return strings.TrimPrefix(p, "/")
	}
	return fs.prefix + "/" + strings.TrimPrefix(p, "/")
}

func (fs *S3FileSystem) ReadFile(ctx context.Context, p string) ([]byte, error) {
	out, err := fs.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(fs.key(p)),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (fs *S3FileSystem) ReadFileStream(ctx context.Context, p string) (io.ReadCloser, error) {
	out, err := fs.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(fs.key(p)),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (fs *S3FileSystem) Stat(ctx context.Context, p string) (fsx.FileInfo, error) {
	out, err := fs.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(fs.key(p)),
	})
	if err != nil {
		return fsx.FileInfo{}, err
	}

	info := fsx.FileInfo{
		Name:     path.Base(p),
		Metadata: make(map[string]string),
	}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.ModTime = *out.LastModified
	}
	if out.ContentType != nil {
		info.ContentType = *out.ContentType
	}
	for k, v := range out.Metadata {
		info.Metadata[k] = v
	}
	return info, nil
}

func (fs *S3FileSystem) List(ctx context.Context, p string) ([]fsx.FileInfo, error) {
	prefix := fs.key(p)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	out, err := fs.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(fs.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, err
	}

	infos := make([]fsx.FileInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		fi := fsx.FileInfo{Metadata: make(map[string]string)}
		if obj.Key != nil {
			fi.Name = path.Base(*obj.Key)
		}
		if obj.Size != nil {
			fi.Size = *obj.Size
		}
		if obj.LastModified != nil {
			fi.ModTime = *obj.LastModified
		}
		infos = append(infos, fi)
	}
	return infos, nil
}

func (fs *S3FileSystem) Exists(ctx context.Context, p string) (bool, error) {
	_, err := fs.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(fs.key(p)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (fs *S3FileSystem) WriteFile(ctx context.Context, p string, data []byte) error {
	_, err := fs.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(fs.key(p)),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (fs *S3FileSystem) WriteFileStream(ctx context.Context, p string, r io.Reader) error {
	_, err := fs.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(fs.key(p)),
		Body:   r,
	})
	return err
}

// CreateDir is a no-op: S3 has no real directories, only key prefixes.
func (fs *S3FileSystem) CreateDir(ctx context.Context, p string) error {
	return nil
}

func (fs *S3FileSystem) DeleteFile(ctx context.Context, p string) error {
	_, err := fs.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(fs.key(p)),
	})
	return err
}

func (fs *S3FileSystem) DeleteDir(ctx context.Context, p string, recursive bool) error {
	if !recursive {
		return fs.DeleteFile(ctx, p)
	}

	infos, err := fs.List(ctx, p)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if err := fs.DeleteFile(ctx, path.Join(p, info.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (fs *S3FileSystem) Join(elem ...string) string {
	return path.Join(elem...)
}
