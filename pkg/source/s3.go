package source

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	dgerrors "github.com/datagrade/datagrade/pkg/errors"
	"github.com/datagrade/datagrade/pkg/engine"
)

// S3Client is the subset of the S3 API the source needs.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// OpenS3 streams an object from S3 through the decoder matching its key
// extension (.csv, .tsv, .jsonl, .arrow). The object body is decoded as it
// downloads; nothing is staged to disk.
func OpenS3(ctx context.Context, client S3Client, bucket, key string) (engine.RowSource, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, dgerrors.Wrap(err, dgerrors.CodeFileNotFound, "s3 get object failed")
	}

	name := "s3://" + bucket + "/" + key
	switch {
	case strings.HasSuffix(key, ".csv"):
		return NewCSVSource(name, out.Body, ',')
	case strings.HasSuffix(key, ".tsv"):
		return NewCSVSource(name, out.Body, '\t')
	case strings.HasSuffix(key, ".jsonl"), strings.HasSuffix(key, ".ndjson"):
		return NewJSONLSource(name, out.Body), nil
	case strings.HasSuffix(key, ".arrow"):
		return NewArrowSource(name, out.Body)
	default:
		out.Body.Close()
		return nil, dgerrors.New(dgerrors.CodeInvalidFormat, "unsupported object extension: "+key)
	}
}

// NewS3Client builds an S3 client from the ambient AWS configuration.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, dgerrors.Wrap(err, dgerrors.CodeConfigInvalid, "failed to load aws config")
	}
	return s3.NewFromConfig(cfg), nil
}
