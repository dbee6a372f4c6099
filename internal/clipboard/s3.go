package clipboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the slice of the S3 client the clipboard needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 drops the exported note into a bucket, one object per scope.
type S3 struct {
	api    PutObjectAPI
	bucket string
}

func NewS3(api PutObjectAPI, bucket string) (*S3, error) {
	if api == nil {
		return nil, fmt.Errorf("clipboard: s3 client required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("clipboard: s3 bucket required")
	}
	return &S3{api: api, bucket: bucket}, nil
}

// ObjectKey returns the object key used for scope.
func ObjectKey(scope string) string {
	return "clipboard/" + scope + "/note.txt"
}

func (c *S3) WriteText(ctx context.Context, scope, text string) error {
	if strings.TrimSpace(scope) == "" {
		return ErrEmptyScope
	}
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(ObjectKey(scope)),
		Body:        strings.NewReader(text),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("clipboard: s3 put: %w", err)
	}
	return nil
}
