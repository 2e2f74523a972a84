package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/jrhy/chronicle"
)

// DefaultStoredCacheSize is how many change keys a Persist remembers as
// already stored.
const DefaultStoredCacheSize = 1000

type S3Interface interface {
	DeleteObjectWithContext(ctx aws.Context, input *s3.DeleteObjectInput, opts ...request.Option) (*s3.DeleteObjectOutput, error)
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
	ListObjectsWithContext(ctx aws.Context, input *s3.ListObjectsInput, opts ...request.Option) (*s3.ListObjectsOutput, error)
}

// Persist implements the chronicle.Persist interface for storing and
// loading entries as objects in a bucket, under an optional key prefix.
type Persist struct {
	s3         S3Interface
	BucketName string
	Prefix     string

	l      sync.Mutex
	stored *simplelru.LRU
}

// Load loads the bytes persisted in the named object.
func (p *Persist) Load(ctx context.Context, key string) ([]byte, error) {
	input := s3.GetObjectInput{
		Bucket: &p.BucketName,
		Key:    aws.String(p.Prefix + key),
	}
	output, err := p.s3.GetObjectWithContext(ctx, &input)
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, fmt.Errorf("s3 %s: %w", key, chronicle.ErrNotFound)
		}
		return nil, err
	}
	defer output.Body.Close()
	b, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, err
	}
	if chronicle.IsChangeKey(key) {
		p.markStored(key)
	}
	return b, nil
}

// Store persists the given bytes in an object of the given name. Changes
// already known to be in the bucket are not written again.
func (p *Persist) Store(ctx context.Context, key string, b []byte) error {
	immutable := chronicle.IsChangeKey(key)
	if immutable && p.isStored(key) {
		return nil
	}
	input := s3.PutObjectInput{
		Bucket: &p.BucketName,
		Key:    aws.String(p.Prefix + key),
		Body:   bytes.NewReader(b),
	}
	_, err := p.s3.PutObjectWithContext(ctx, &input)
	if err != nil {
		return err
	}
	if immutable {
		p.markStored(key)
	}
	return nil
}

func (p *Persist) Delete(ctx context.Context, key string) error {
	p.l.Lock()
	p.stored.Remove(key)
	p.l.Unlock()
	_, err := p.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: &p.BucketName,
		Key:    aws.String(p.Prefix + key),
	})
	return err
}

// List pages through the bucket listing for keys starting with prefix.
func (p *Persist) List(ctx context.Context, prefix string) ([]string, error) {
	params := &s3.ListObjectsInput{
		Bucket: &p.BucketName,
		Prefix: aws.String(p.Prefix + prefix),
	}
	var keys []string
	for {
		objects, err := p.s3.ListObjectsWithContext(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, object := range objects.Contents {
			keys = append(keys, strings.TrimPrefix(aws.StringValue(object.Key), p.Prefix))
		}
		if !aws.BoolValue(objects.IsTruncated) || len(objects.Contents) == 0 {
			return keys, nil
		}
		params.Marker = objects.Contents[len(objects.Contents)-1].Key
	}
}

func (p *Persist) isStored(key string) bool {
	p.l.Lock()
	defer p.l.Unlock()
	return p.stored.Contains(key)
}

func (p *Persist) markStored(key string) {
	p.l.Lock()
	p.stored.Add(key, nil)
	p.l.Unlock()
}

// NewPersist returns a Persist that loads and stores entries as
// objects with the given S3 client and bucket name.
func NewPersist(client S3Interface, bucketName, prefix string) *Persist {
	stored, err := simplelru.NewLRU(DefaultStoredCacheSize, nil)
	if err != nil {
		panic(err)
	}
	return &Persist{s3: client, BucketName: bucketName, Prefix: prefix, stored: stored}
}
