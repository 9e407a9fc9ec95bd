package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
)

// ObjectPutter is the slice of the S3 API the archiver needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config locates the archive bucket. Endpoint and UsePathStyle are for MinIO.
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// Archiver writes batches of audit events to object storage as JSON lines
type Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	now    func() time.Time
}

// NewArchiver wraps an existing client
func NewArchiver(client ObjectPutter, bucket, prefix string) *Archiver {
	return &Archiver{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// NewS3Archiver builds an S3 client from cfg. Static keys are used when both are set,
// otherwise the default AWS credential chain.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewArchiver(client, cfg.Bucket, cfg.Prefix), nil
}

// Archive uploads events as one object and returns its key. An empty batch uploads nothing.
func (a *Archiver) Archive(ctx context.Context, events []*Event) (string, error) {
	if len(events) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return "", fmt.Errorf("failed to encode audit event %d: %w", e.ID, err)
		}
	}

	key := a.key(events)
	ctx, span := observability.Tracer().Start(ctx, "audit.Archive",
		trace.WithAttributes(
			attribute.String("s3.bucket", a.bucket),
			attribute.String("s3.key", key),
			attribute.Int("audit.events", len(events)),
		),
	)
	defer span.End()

	sum := sha256.Sum256(buf.Bytes())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(sum[:]),
			"event-count":     fmt.Sprint(len(events)),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return "", fmt.Errorf("failed to upload audit archive: %w", err)
	}
	return key, nil
}

// key is <prefix>/<yyyy>/<mm>/<dd>/audit-<min id>-<max id>.jsonl
func (a *Archiver) key(events []*Event) string {
	lo, hi := events[0].ID, events[0].ID
	for _, e := range events[1:] {
		lo = min(lo, e.ID)
		hi = max(hi, e.ID)
	}
	day := a.now().UTC().Format("2006/01/02")
	return path.Join(a.prefix, day, fmt.Sprintf("audit-%d-%d.jsonl", lo, hi))
}
