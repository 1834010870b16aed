package aws_s3

import (
	"bytes"
	"context"

	"github.com/haierkeys/library-backup-service/pkg/fileurl"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

type Config struct {
	// Endpoint is set for S3-compatible services; empty means AWS
	Endpoint        string
	Region          string
	BucketName      string
	AccessKeyID     string
	AccessKeySecret string
	Prefix          string
}

type S3 struct {
	Client *s3.Client
	Config *Config
}

// NewClient 创建 S3 客户端，自定义 Endpoint 时使用 path-style
func NewClient(ctx context.Context, conf *Config) (*S3, error) {
	if conf.BucketName == "" {
		return nil, errors.New("aws_s3: bucket is empty")
	}
	region := conf.Region
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(conf.AccessKeyID, conf.AccessKeySecret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, errors.Wrap(err, "aws_s3")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{Client: client, Config: conf}, nil
}

func (p *S3) key(pathKey string) string {
	return fileurl.JoinRemote(p.Config.Prefix, pathKey)
}

// SendContent 上传内容
func (p *S3) SendContent(ctx context.Context, pathKey string, content []byte) error {
	_, err := p.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.Config.BucketName),
		Key:    aws.String(p.key(pathKey)),
		Body:   bytes.NewReader(content),
	})
	return errors.Wrap(err, "aws_s3")
}

func (p *S3) Delete(ctx context.Context, pathKey string) error {
	_, err := p.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.Config.BucketName),
		Key:    aws.String(p.key(pathKey)),
	})
	return errors.Wrap(err, "aws_s3")
}

func (p *S3) Close() error { return nil }
