package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"itemstore/pkg/cluster"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3 DeleteObjects 单次最多 1000 个 Key
const deleteBatch = 1000

// Channel 实现了 cluster.Channel 接口
// 节点的“文件系统”是一个 Bucket 下的前缀，路径 "/a/b" 对应 Key "a/b"
type Channel struct {
	name   string
	client *s3.Client
	bucket string
	prefix string // home 目录对应的 Key 前缀
}

// Config 用于初始化 Channel
type Config struct {
	Name            string
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewChannel 初始化 S3 客户端 (适配 AWS SDK v2 最新规范)
func NewChannel(ctx context.Context, cfg Config) (*Channel, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required for node %s", cfg.Name)
	}

	// 1. 加载基础配置 (仅包含 Region 和 Credentials)
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// 2. 创建 S3 客户端时注入 Endpoint
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// 如果指定了 Endpoint (比如 MinIO 的 localhost:9000)，则覆盖默认值
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO 必须强制使用 Path Style
		o.UsePathStyle = true
	})

	return NewWithClient(cfg.Name, client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient 允许使用现有的 S3 客户端
func NewWithClient(name string, client *s3.Client, bucket, prefix string) *Channel {
	return &Channel{
		name:   name,
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) Home(ctx context.Context) (string, error) {
	return "/" + c.prefix, nil
}

// key 将路径转换为 S3 Key
// Logic: "/home/jobs/a.txt" -> "home/jobs/a.txt"
func key(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func dirPrefix(k string) string {
	if k == "" {
		return ""
	}
	return k + "/"
}

func (c *Channel) Exists(ctx context.Context, p string) (bool, error) {
	k := key(p)

	// 1. 先当作文件查 (Head 请求便宜)
	if k != "" {
		_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(k),
		})
		if err == nil {
			return true, nil
		}
		if !isNotFound(err) {
			return false, fmt.Errorf("s3 head failed: %w", err)
		}
	}

	// 2. 再当作目录查：前缀下至少有一个对象
	resp, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		Prefix:  aws.String(dirPrefix(k)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("s3 list failed: %w", err)
	}
	return aws.ToInt32(resp.KeyCount) > 0, nil
}

func (c *Channel) List(ctx context.Context, root string) ([]cluster.Entry, error) {
	prefix := dirPrefix(key(root))

	dirs := make(map[string]bool)
	var out []cluster.Entry

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list failed: %w", err)
		}
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if rel == "" {
				continue
			}
			out = append(out, cluster.Entry{
				Path:    rel,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
			// S3 没有真正的目录，按 Key 补齐
			for d := path.Dir(rel); d != "." && !dirs[d]; d = path.Dir(d) {
				dirs[d] = true
				out = append(out, cluster.Entry{Path: d, Dir: true})
			}
		}
	}

	if len(out) == 0 {
		return nil, cluster.ErrNotFound
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (c *Channel) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key(p)),
	})
	if err != nil {
		// 将 AWS 的 NoSuchKey 错误映射为我们自己的 ErrNotFound
		if isNotFound(err) {
			return nil, cluster.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	return resp.Body, nil
}

// Create 返回一个缓冲写入器，Close 时一次性 PutObject
// PutObject 需要已知长度的 Body，流式未知长度的上传不被 SDK 直接支持
func (c *Channel) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	return &objectWriter{ctx: ctx, ch: c, key: key(p)}, nil
}

func (c *Channel) DeleteRecursive(ctx context.Context, p string) error {
	k := key(p)

	// 1. 删除同名对象 (S3 对不存在的 Key 删除也返回成功)
	if k != "" {
		if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(k),
		}); err != nil {
			return fmt.Errorf("s3 delete failed: %w", err)
		}
	}

	// 2. 分批删除前缀下的所有对象
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		Prefix:  aws.String(dirPrefix(k)),
		MaxKeys: aws.Int32(deleteBatch),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 list failed: %w", err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		ids := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, s3types.ObjectIdentifier{Key: obj.Key})
		}
		if _, err := c.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		}); err != nil {
			return fmt.Errorf("s3 batch delete failed: %w", err)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	var noKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noKey) {
		return true
	}
	// 兼容性：某些 S3 实现可能返回 generic 404 error string
	return strings.Contains(err.Error(), "StatusCode: 404")
}

type objectWriter struct {
	ctx context.Context
	ch  *Channel
	key string
	buf bytes.Buffer
}

func (w *objectWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *objectWriter) Abort() error {
	w.buf.Reset()
	return nil
}

func (w *objectWriter) Close() error {
	_, err := w.ch.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.ch.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("s3 put failed: %w", err)
	}
	return nil
}
