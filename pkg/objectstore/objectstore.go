/*
Copyright 2026 The LidarCtl Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package objectstore adapts an S3-compatible object store: put/get/head
// against a bucket+key reference, with a manual multipart upload path that
// keeps bit-exact per-chunk MD5 control instead of delegating to the SDK's
// high-level uploader.
package objectstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	appconfig "github.com/lidarctl/controlplane/internal/config"
	apperrors "github.com/lidarctl/controlplane/internal/errors"
)

// Default multipart thresholds, per spec: T>=8MiB, C>=10MiB.
const (
	DefaultMultipartThreshold int64 = 8 * 1024 * 1024
	DefaultPartSize           int64 = 10 * 1024 * 1024
)

// Ref addresses one object within the configured bucket.
type Ref struct {
	Key string
}

// Client wraps an s3.Client with the control plane's upload/download
// conventions.
type Client struct {
	s3     *s3.Client
	bucket string

	multipartThreshold int64
	partSize           int64
}

// NewClient builds a Client from an ObjectStoreConfig: static credentials,
// custom endpoint resolution, and optional path-style addressing for
// non-AWS S3-compatible endpoints (MinIO, Ceph RGW).
func NewClient(ctx context.Context, cfg *appconfig.ObjectStoreConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid object store configuration: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load object store SDK config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Client{
		s3:                 s3Client,
		bucket:             cfg.Bucket,
		multipartThreshold: DefaultMultipartThreshold,
		partSize:           DefaultPartSize,
	}, nil
}

// PutObject uploads the file at localPath as a single part and returns its
// ETag (unquoted) and size.
func (c *Client) PutObject(ctx context.Context, ref Ref, localPath string) (string, int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", 0, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "open local file for upload")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "stat local file for upload")
	}

	body, err := io.ReadAll(f)
	if err != nil {
		return "", 0, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "read local file for upload")
	}

	etag, err := c.putSinglePart(ctx, ref, body, "")
	if err != nil {
		return "", 0, err
	}
	return etag, info.Size(), nil
}

// PutBytes uploads body as a single part with the given content type.
func (c *Client) PutBytes(ctx context.Context, ref Ref, body []byte, contentType string) (string, int64, error) {
	etag, err := c.putSinglePart(ctx, ref, body, contentType)
	if err != nil {
		return "", 0, err
	}
	return etag, int64(len(body)), nil
}

func (c *Client) putSinglePart(ctx context.Context, ref Ref, body []byte, contentType string) (string, error) {
	sum := md5.Sum(body)
	contentMD5 := base64.StdEncoding.EncodeToString(sum[:])

	input := &s3.PutObjectInput{
		Bucket:     aws.String(c.bucket),
		Key:        aws.String(ref.Key),
		Body:       bytes.NewReader(body),
		ContentMD5: aws.String(contentMD5),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := c.s3.PutObject(ctx, input)
	if err != nil {
		return "", wrapS3Error(err, "put object")
	}
	return unquoteETag(aws.ToString(out.ETag)), nil
}

// UploadFile uploads localPath, switching to a manual multipart upload when
// the file is at least DefaultMultipartThreshold bytes. Each part's MD5 is
// computed independently and sent as Content-MD5; ETag for a multipart
// upload is NOT the file's MD5 and must not be treated as such by callers.
func (c *Client) UploadFile(ctx context.Context, ref Ref, localPath string) (string, int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", 0, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "open local file for upload")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "stat local file for upload")
	}

	if info.Size() < c.multipartThreshold {
		return c.PutObject(ctx, ref, localPath)
	}

	etag, err := c.uploadMultipart(ctx, ref, f, info.Size())
	if err != nil {
		return "", 0, err
	}
	return etag, info.Size(), nil
}

func (c *Client) uploadMultipart(ctx context.Context, ref Ref, f *os.File, size int64) (string, error) {
	created, err := c.s3.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return "", wrapS3Error(err, "create multipart upload")
	}
	uploadID := created.UploadId

	var completed []types.CompletedPart
	partNumber := int32(1)
	buf := make([]byte, c.partSize)

	abort := func(cause error) error {
		_, abortErr := c.s3.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(c.bucket),
			Key:      aws.String(ref.Key),
			UploadId: uploadID,
		})
		if abortErr != nil {
			return apperrors.Chain(cause, wrapS3Error(abortErr, "abort multipart upload"))
		}
		return cause
	}

	for {
		n, readErr := io.ReadFull(f, buf)
		if n == 0 {
			break
		}
		chunk := buf[:n]
		sum := md5.Sum(chunk)
		contentMD5 := base64.StdEncoding.EncodeToString(sum[:])

		part, err := c.s3.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(c.bucket),
			Key:        aws.String(ref.Key),
			UploadId:   uploadID,
			PartNumber: aws.Int32(partNumber),
			Body:       bytes.NewReader(chunk),
			ContentMD5: aws.String(contentMD5),
		})
		if err != nil {
			return "", abort(wrapS3Error(err, "upload part"))
		}
		completed = append(completed, types.CompletedPart{
			ETag:       part.ETag,
			PartNumber: aws.Int32(partNumber),
		})
		partNumber++

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return "", abort(apperrors.Wrap(readErr, apperrors.ErrorTypeNetwork, "read chunk for multipart upload"))
		}
	}

	out, err := c.s3.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(c.bucket),
		Key:             aws.String(ref.Key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return "", abort(wrapS3Error(err, "complete multipart upload"))
	}
	return unquoteETag(aws.ToString(out.ETag)), nil
}

// GetBytes downloads the full object body.
func (c *Client) GetBytes(ctx context.Context, ref Ref) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return nil, wrapS3Error(err, "get object")
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "read object body")
	}
	return body, nil
}

// DownloadFile streams the object body to localPath.
func (c *Client) DownloadFile(ctx context.Context, ref Ref, localPath string) error {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return wrapS3Error(err, "get object")
	}
	defer out.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "create local file for download")
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "write downloaded object to disk")
	}
	return nil
}

// HeadObject returns the object's ETag and size. found is false (with a nil
// error) when the object does not exist, matching the (None, None) contract
// on 404/NoSuchKey/NotFound; any other failure is propagated as an error.
func (c *Client) HeadObject(ctx context.Context, ref Ref) (etag string, size int64, found bool, err error) {
	out, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		if isNotFound(err) {
			return "", 0, false, nil
		}
		return "", 0, false, wrapS3Error(err, "head object")
	}
	return unquoteETag(aws.ToString(out.ETag)), aws.ToInt64(out.ContentLength), true, nil
}

func unquoteETag(etag string) string {
	return strings.Trim(etag, `"`)
}

// isNotFound reports whether err represents a missing object: NoSuchKey,
// NotFound, or an HTTP 404 response status.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}

// wrapS3Error classifies an S3 SDK error per the spec's failure model:
// network/5xx are retryable by the caller (ErrorTypeNetwork), 4xx other
// than not-found are fatal for the current call (ErrorTypeValidation).
func wrapS3Error(err error, operation string) error {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		if code >= 400 && code < 500 {
			return apperrors.Wrapf(err, apperrors.ErrorTypeValidation, "%s: object store rejected the request", operation)
		}
	}
	return apperrors.Wrapf(err, apperrors.ErrorTypeNetwork, "%s: object store call failed", operation)
}
