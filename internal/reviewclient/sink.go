package reviewclient

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
)

const (
	defaultRegion       = "us-east-1"
	csvContentType      = "text/csv; charset=utf-8"
	exportFilePerm      = 0o644
	exportDirPermission = 0o750
)

// Sink stores an exported CSV. Put returns where the data ended up.
type Sink interface {
	Put(ctx context.Context, name string, body []byte) (string, error)
}

// FileSink writes exports below a local directory, or to a fixed file
// when Path does not name a directory.
type FileSink struct {
	Path string
}

// Put writes body to disk.
func (f FileSink) Put(_ context.Context, name string, body []byte) (string, error) {
	target := f.Path
	if target == "" {
		target = "."
	}
	if st, err := os.Stat(target); (err == nil && st.IsDir()) || strings.HasSuffix(target, string(os.PathSeparator)) {
		target = filepath.Join(target, name)
	}
	if err := os.MkdirAll(filepath.Dir(target), exportDirPermission); err != nil {
		return "", eris.Wrapf(err, "create directory for %s", target)
	}
	if err := os.WriteFile(target, body, exportFilePerm); err != nil {
		return "", eris.Wrapf(err, "write %s", target)
	}
	return target, nil
}

// S3API is the subset of the S3 client the sink needs.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads exports to a bucket. An empty Key or one ending in "/" is
// treated as a prefix for the export filename.
type S3Sink struct {
	client S3API
	bucket string
	key    string
}

// NewS3Sink builds a sink over an existing client.
func NewS3Sink(client S3API, bucket, key string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, key: key}
}

// Put uploads body and returns its s3:// location.
func (s *S3Sink) Put(ctx context.Context, name string, body []byte) (string, error) {
	key := s.key
	if key == "" || strings.HasSuffix(key, "/") {
		key += name
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(csvContentType),
	})
	if err != nil {
		return "", eris.Wrapf(err, "put s3://%s/%s", s.bucket, key)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// S3Options configures the client OpenSink builds for s3:// targets.
type S3Options struct {
	Region    string
	Endpoint  string
	PathStyle bool
	// AccessKeyID and SecretAccessKey override the default credential chain.
	AccessKeyID     string
	SecretAccessKey string
	HTTPClient      *http.Client
}

// OpenSink picks a sink for target: "s3://bucket/key" uploads to S3,
// anything else is a local path.
func OpenSink(ctx context.Context, target string, opts S3Options) (Sink, error) {
	if !strings.HasPrefix(target, "s3://") {
		return FileSink{Path: target}, nil
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil, eris.Wrapf(ErrBadTarget, "%q", target)
	}

	region := opts.Region
	if region == "" {
		region = defaultRegion
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = opts.PathStyle
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		if opts.HTTPClient != nil {
			o.HTTPClient = opts.HTTPClient
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return NewS3Sink(client, u.Host, strings.TrimPrefix(u.Path, "/")), nil
}
