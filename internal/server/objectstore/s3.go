package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// S3 allows at most 1000 keys per DeleteObjects request.
const maxDeleteBatch = 1000

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}
)

// s3API is the subset of *s3.Client used here.
type s3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// presignAPI is the subset of *s3.PresignClient used here.
type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Config holds connection settings for an S3-compatible endpoint.
type S3Config struct {
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UsePathStyle bool
}

// S3Client implements Client on top of aws-sdk-go-v2.
//
// Per-call timeouts and retries are the SDK's (standard retryer); callers
// above this layer never retry on their own.
type S3Client struct {
	api     s3API
	presign presignAPI
	bucket  string
	metrics Metrics
}

// NewS3Client builds the SDK client from cfg and verifies bucket access.
// The bucket must already exist.
func NewS3Client(ctx context.Context, cfg S3Config, m Metrics) (*S3Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	c := newS3Client(client, newS3PresignClient(client), cfg.Bucket, m)

	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, classify("head bucket", err))
	}

	return c, nil
}

func newS3Client(api s3API, presign presignAPI, bucket string, m Metrics) *S3Client {
	if m == nil {
		m = noopMetrics{}
	}
	return &S3Client{api: api, presign: presign, bucket: bucket, metrics: m}
}

func (c *S3Client) observe(op string, start time.Time, err error) {
	c.metrics.ObserveOperation(op, time.Since(start), err)
}

// Put uploads body under key with a single PutObject call.
func (c *S3Client) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (err error) {
	defer func(start time.Time) { c.observe("PutObject", start, err) }(time.Now())

	in := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err = c.api.PutObject(ctx, in); err != nil {
		return classify("put "+key, err)
	}
	c.metrics.RecordBytes("PutObject", size)
	return nil
}

// GetStream opens key for reading. The caller closes the body.
func (c *S3Client) GetStream(ctx context.Context, key string) (obj *Object, err error) {
	defer func(start time.Time) { c.observe("GetObject", start, err) }(time.Now())

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("get "+key, err)
	}

	return &Object{
		Body:         &metricsReadCloser{ReadCloser: out.Body, metrics: c.metrics, operation: "GetObject"},
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// Delete removes key. S3 treats a missing key as success.
func (c *S3Client) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { c.observe("DeleteObject", start, err) }(time.Now())

	if _, err = c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return classify("delete "+key, err)
	}
	return nil
}

// DeleteMany chunks keys into batches of 1000. A failed request marks every
// key of its batch as failed; per-key errors reported by the store mark only
// those keys.
func (c *S3Client) DeleteMany(ctx context.Context, keys []string) ([]DeleteResult, error) {
	results := make([]DeleteResult, 0, len(keys))

	for i := 0; i < len(keys); i += maxDeleteBatch {
		if err := ctx.Err(); err != nil {
			for _, k := range keys[i:] {
				results = append(results, DeleteResult{Key: k, Err: err})
			}
			return results, err
		}

		end := min(i+maxDeleteBatch, len(keys))
		batch := keys[i:end]

		objects := make([]types.ObjectIdentifier, len(batch))
		for j, k := range batch {
			objects[j] = types.ObjectIdentifier{Key: aws.String(k)}
		}

		start := time.Now()
		out, err := c.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		c.observe("DeleteObjects", start, err)

		if err != nil {
			cerr := classify("delete batch", err)
			for _, k := range batch {
				results = append(results, DeleteResult{Key: k, Err: cerr})
			}
			continue
		}

		failed := make(map[string]error, len(out.Errors))
		for _, e := range out.Errors {
			if e.Key == nil {
				continue
			}
			failed[*e.Key] = fmt.Errorf("delete %s: %s: %s: %w",
				*e.Key, aws.ToString(e.Code), aws.ToString(e.Message), common.ErrStoreUnavailable)
		}

		for _, k := range batch {
			results = append(results, DeleteResult{Key: k, Err: failed[k]})
		}
	}

	return results, nil
}

// Copy duplicates src to dst server-side.
func (c *S3Client) Copy(ctx context.Context, src, dst string) (err error) {
	defer func(start time.Time) { c.observe("CopyObject", start, err) }(time.Now())

	if _, err = c.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(c.bucket),
		CopySource: aws.String(c.bucket + "/" + url.PathEscape(src)),
		Key:        aws.String(dst),
	}); err != nil {
		return classify("copy "+src, err)
	}
	return nil
}

// List returns one page of keys under in.Prefix, grouped by in.Delimiter
// when it is set.
func (c *S3Client) List(ctx context.Context, in ListInput) (page *ListPage, err error) {
	defer func(start time.Time) { c.observe("ListObjectsV2", start, err) }(time.Now())

	req := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(in.Prefix),
	}
	if in.Delimiter != "" {
		req.Delimiter = aws.String(in.Delimiter)
	}
	if in.ContinuationToken != "" {
		req.ContinuationToken = aws.String(in.ContinuationToken)
	}
	if in.MaxKeys > 0 {
		req.MaxKeys = aws.Int32(in.MaxKeys)
	}

	out, err := c.api.ListObjectsV2(ctx, req)
	if err != nil {
		return nil, classify("list "+in.Prefix, err)
	}

	page = &ListPage{
		IsTruncated:           aws.ToBool(out.IsTruncated),
		NextContinuationToken: aws.ToString(out.NextContinuationToken),
	}
	for _, cp := range out.CommonPrefixes {
		if cp.Prefix != nil {
			page.CommonPrefixes = append(page.CommonPrefixes, *cp.Prefix)
		}
	}
	for _, o := range out.Contents {
		if o.Key == nil {
			continue
		}
		page.Objects = append(page.Objects, ObjectInfo{
			Key:          *o.Key,
			Size:         aws.ToInt64(o.Size),
			LastModified: aws.ToTime(o.LastModified),
			ETag:         aws.ToString(o.ETag),
		})
	}
	return page, nil
}

// CreateMultipartUpload starts a multipart upload for key.
func (c *S3Client) CreateMultipartUpload(ctx context.Context, key, contentType string) (id string, err error) {
	defer func(start time.Time) { c.observe("CreateMultipartUpload", start, err) }(time.Now())

	in := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	out, err := c.api.CreateMultipartUpload(ctx, in)
	if err != nil {
		return "", classify("create multipart "+key, err)
	}
	if out.UploadId == nil {
		err = fmt.Errorf("create multipart %s: no upload id returned: %w", key, common.ErrStoreUnavailable)
		return "", err
	}

	c.metrics.RecordMultipart("created")
	return *out.UploadId, nil
}

// UploadPart sends one part and returns the ETag S3 assigned to it.
func (c *S3Client) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (etag string, err error) {
	defer func(start time.Time) { c.observe("UploadPart", start, err) }(time.Now())

	out, err := c.api.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", classify(fmt.Sprintf("upload part %d", partNumber), err)
	}

	c.metrics.RecordBytes("UploadPart", size)
	return aws.ToString(out.ETag), nil
}

// CompleteMultipartUpload assembles the parts. S3 rejecting the part list
// maps to common.ErrInvalidPartSet so the client restarts the upload.
func (c *S3Client) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) (err error) {
	defer func(start time.Time) { c.observe("CompleteMultipartUpload", start, err) }(time.Now())

	if err = ValidateParts(parts); err != nil {
		c.metrics.RecordMultipart("rejected")
		return err
	}

	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		}
	}

	if _, err = c.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(c.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	}); err != nil {
		err = classify("complete multipart "+key, err)
		if errors.Is(err, common.ErrInvalidPartSet) {
			c.metrics.RecordMultipart("rejected")
		}
		return err
	}

	c.metrics.RecordMultipart("completed")
	return nil
}

// AbortMultipartUpload drops the upload and its stored parts.
func (c *S3Client) AbortMultipartUpload(ctx context.Context, key, uploadID string) (err error) {
	defer func(start time.Time) { c.observe("AbortMultipartUpload", start, err) }(time.Now())

	_, err = c.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		var noSuchUpload *types.NoSuchUpload
		if !errors.As(err, &noSuchUpload) {
			return classify("abort multipart "+key, err)
		}
		err = nil
	}

	c.metrics.RecordMultipart("aborted")
	return nil
}

// PresignGet returns a presigned GetObject URL valid for ttl.
func (c *S3Client) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", classify("presign "+key, err)
	}
	return req.URL, nil
}

// classify maps SDK errors onto the common error taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%s: %w", op, common.ErrNotFound)
		case "InvalidPart", "InvalidPartOrder", "NoSuchUpload", "EntityTooSmall":
			return fmt.Errorf("%s: %s: %w", op, apiErr.ErrorCode(), common.ErrInvalidPartSet)
		}
	}

	return fmt.Errorf("%s: %w: %w", op, common.ErrStoreUnavailable, err)
}
