package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"

	"github.com/sdejongh/syncplan/pkg/compare"
	"github.com/sdejongh/syncplan/pkg/models"
)

// DefaultContentType is used when content sniffing fails
const DefaultContentType = "application/octet-stream"

// mtimeMetaKey stores the source modification time on uploaded objects
const mtimeMetaKey = "mtime"

// S3API is the subset of the S3 client used by the object-store backend
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Config holds client settings for S3-compatible stores
type S3Config struct {
	Region    string
	Endpoint  string
	PathStyle bool
}

// S3Error represents an S3 operation error with context about the operation that failed
type S3Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *S3Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("s3.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("s3.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
}

func (e *S3Error) Unwrap() error {
	return e.Err
}

// temporaryError marks a server-side condition worth retrying
type temporaryError struct {
	err error
}

func (e temporaryError) Error() string   { return e.err.Error() }
func (e temporaryError) Unwrap() error   { return e.err }
func (e temporaryError) Temporary() bool { return true }

// S3 uploads to an S3-compatible bucket
type S3 struct {
	api      S3API
	endpoint Endpoint

	// spool buffers unseekable bodies in a temp file before upload. Without
	// TLS the SDK can only checksum and sign a seekable body.
	spool bool
}

// NewS3 builds a client from the default AWS credential chain
func NewS3(ctx context.Context, ep Endpoint, cfg S3Config) (*S3, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &models.DestinationError{Endpoint: ep.String(), Err: fmt.Errorf("client initialization: %w", err)}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	b := NewS3WithClient(ep, client)
	b.spool = strings.HasPrefix(strings.ToLower(cfg.Endpoint), "http://")
	return b, nil
}

// NewS3WithClient wraps an existing client
func NewS3WithClient(ep Endpoint, api S3API) *S3 {
	return &S3{api: api, endpoint: ep}
}

// Kind returns BackendObjectStore
func (b *S3) Kind() models.BackendKind {
	return models.BackendObjectStore
}

// Root returns the bucket address
func (b *S3) Root() string {
	return b.endpoint.String()
}

// Prepare checks that the bucket exists and is reachable
func (b *S3) Prepare(ctx context.Context) error {
	_, err := b.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.endpoint.Bucket)})
	if err != nil {
		err = b.convertAWSError("headBucket", "", err)
		var destErr *models.DestinationError
		if errors.As(err, &destErr) {
			return err
		}
		return &models.DestinationError{Endpoint: b.Root(), Err: err}
	}
	return nil
}

// Stat returns object metadata; the source mtime is read back from object metadata
func (b *S3) Stat(ctx context.Context, relPath string) (*FileInfo, error) {
	key := b.key(relPath)
	out, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.endpoint.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, b.convertAWSError("headObject", key, err)
	}

	info := &FileInfo{
		Path:         key,
		RelativePath: relPath,
		Size:         aws.ToInt64(out.ContentLength),
		ModTime:      aws.ToTime(out.LastModified),
	}
	if v, ok := out.Metadata[mtimeMetaKey]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			info.ModTime = t
		}
	}
	return info, nil
}

// Write uploads the object with a SHA-256 checksum computed by the SDK.
// S3 commits an object only on a complete upload so no partial object is left behind.
// On plain HTTP endpoints the body is spooled to a temp file first.
func (b *S3) Write(ctx context.Context, relPath string, reader io.Reader, size int64, metadata *FileInfo) (int64, error) {
	key := b.key(relPath)

	head := make([]byte, 512)
	n, err := io.ReadFull(reader, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return 0, fmt.Errorf("failed to read content: %w", err)
	}
	head = head[:n]

	counter := &countingReader{r: io.MultiReader(bytes.NewReader(head), reader)}
	body, release, err := b.uploadBody(counter)
	if err != nil {
		return counter.n, err
	}
	defer release()
	if _, spooled := body.(*os.File); spooled && size >= 0 && counter.n != size {
		return counter.n, fmt.Errorf("incomplete write: expected %d bytes, read %d", size, counter.n)
	}

	input := &s3.PutObjectInput{
		Bucket:            aws.String(b.endpoint.Bucket),
		Key:               aws.String(key),
		Body:              body,
		ContentType:       aws.String(detectContentType(head, relPath)),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if metadata != nil && !metadata.ModTime.IsZero() {
		input.Metadata = map[string]string{mtimeMetaKey: metadata.ModTime.UTC().Format(time.RFC3339Nano)}
	}

	if _, err := b.api.PutObject(ctx, input); err != nil {
		return counter.n, b.convertAWSError("putObject", key, err)
	}
	if size >= 0 && counter.n != size {
		return counter.n, fmt.Errorf("incomplete write: expected %d bytes, wrote %d", size, counter.n)
	}
	return counter.n, nil
}

// Checksum returns the stored object checksum. SHA-256 comes from the
// object's checksum header; MD5 from the ETag of single-part uploads.
// It falls back to downloading and hashing the object.
func (b *S3) Checksum(ctx context.Context, relPath string, algo compare.Algorithm) (string, error) {
	key := b.key(relPath)
	out, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:       aws.String(b.endpoint.Bucket),
		Key:          aws.String(key),
		ChecksumMode: types.ChecksumModeEnabled,
	})
	if err != nil {
		return "", b.convertAWSError("headObject", key, err)
	}

	switch algo {
	case compare.SHA256:
		if sum := aws.ToString(out.ChecksumSHA256); sum != "" && !strings.Contains(sum, "-") {
			raw, err := base64.StdEncoding.DecodeString(sum)
			if err == nil {
				return hex.EncodeToString(raw), nil
			}
		}
	case compare.MD5:
		if etag := strings.Trim(aws.ToString(out.ETag), `"`); len(etag) == 32 && !strings.Contains(etag, "-") {
			return strings.ToLower(etag), nil
		}
	}

	obj, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.endpoint.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", b.convertAWSError("getObject", key, err)
	}
	defer obj.Body.Close()
	return compare.HashReader(ctx, obj.Body, algo)
}

// Probe uploads and deletes a throwaway object
func (b *S3) Probe(ctx context.Context, r io.Reader, size int64) error {
	key := b.key(fmt.Sprintf(".syncplan-probe-%d", time.Now().UnixNano()))
	body, release, err := b.uploadBody(io.LimitReader(r, size))
	if err != nil {
		return err
	}
	defer release()

	_, err = b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.endpoint.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return b.convertAWSError("putObject", key, err)
	}
	_, err = b.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.endpoint.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return b.convertAWSError("deleteObject", key, err)
	}
	return nil
}

// Close releases resources (no-op, the SDK client is stateless)
func (b *S3) Close() error {
	return nil
}

// uploadBody returns r unchanged, or a spooled copy when the endpoint needs
// a seekable body. release removes the spool file.
func (b *S3) uploadBody(r io.Reader) (io.Reader, func(), error) {
	if _, ok := r.(io.ReadSeeker); ok || !b.spool {
		return r, func() {}, nil
	}

	tmp, err := os.CreateTemp("", "syncplan-upload-*")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create upload buffer: %w", err)
	}
	release := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}
	if _, err := io.Copy(tmp, r); err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to buffer upload: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to buffer upload: %w", err)
	}
	return tmp, release, nil
}

func (b *S3) key(relPath string) string {
	if b.endpoint.Prefix == "" {
		return relPath
	}
	return path.Join(b.endpoint.Prefix, relPath)
}

// convertAWSError maps SDK errors onto fs sentinels and destination errors
func (b *S3) convertAWSError(op, key string, err error) error {
	wrapped := &S3Error{Op: op, Bucket: b.endpoint.Bucket, Key: key, Err: err}

	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return &models.DestinationError{Endpoint: b.Root(), Err: wrapped}
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		wrapped.Err = fmt.Errorf("%w: %v", fs.ErrNotExist, err)
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return &models.DestinationError{Endpoint: b.Root(), Err: wrapped}
		case "NotFound", "NoSuchKey":
			wrapped.Err = fmt.Errorf("%w: %v", fs.ErrNotExist, err)
			return wrapped
		case "AccessDenied", "Forbidden":
			wrapped.Err = fmt.Errorf("%w: %v", fs.ErrPermission, err)
			return wrapped
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable", "Throttling":
			return temporaryError{err: wrapped}
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch code := respErr.HTTPStatusCode(); {
		case code == 404 && op == "headBucket":
			return &models.DestinationError{Endpoint: b.Root(), Err: wrapped}
		case code == 404:
			wrapped.Err = fmt.Errorf("%w: %v", fs.ErrNotExist, err)
			return wrapped
		case code == 403:
			wrapped.Err = fmt.Errorf("%w: %v", fs.ErrPermission, err)
			return wrapped
		case code >= 500 || code == 429:
			return temporaryError{err: wrapped}
		}
	}

	return wrapped
}

// detectContentType sniffs the first bytes, falling back to the extension
func detectContentType(head []byte, name string) string {
	if len(head) > 0 {
		if mt := mimetype.Detect(head); mt != nil && mt.String() != DefaultContentType {
			return mt.String()
		}
	}
	if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(name))); byExt != "" {
		return byExt
	}
	return DefaultContentType
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
