// Package s3backend implements backend.Backend over one or more S3
// buckets (§4.3 "S3 backend"). Grounded on the teacher's
// ais/cloud/aws.go awsProvider: session construction via
// aws-sdk-go/aws/session, s3manager for streaming multipart-aware
// uploads, and *the same* awserr-based error translation pattern
// (awsErrorToAISError here becomes classifyErr).
package s3backend

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/informatics-isi-edu/hatrac/internal/backend"
	"github.com/informatics-isi-edu/hatrac/internal/cmn"
	"github.com/informatics-isi-edu/hatrac/internal/herr"
)

// bucketRoute pairs a configured prefix with its bucket settings and a
// ready client, sorted longest-prefix-first for routing (§4.3 "Routes
// by longest-prefix match over configured buckets").
type bucketRoute struct {
	prefix string
	cfg    cmn.S3BucketConfig
	svc    *s3.S3
	up     *s3manager.Uploader
}

type Backend struct {
	routes []bucketRoute
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.Presigner = (*Backend)(nil)

// New builds one S3 client per configured bucket (§6 s3_config.buckets),
// matching the teacher's one-session-per-request-profile approach but
// cached at startup rather than reconstructed per call.
func New(cfg cmn.S3Config) (*Backend, error) {
	b := &Backend{}
	for prefix, bc := range cfg.Buckets {
		sess, err := session.NewSessionWithOptions(session.Options{SharedConfigState: session.SharedConfigEnable})
		if err != nil {
			return nil, herr.Internal(err, "create aws session")
		}
		awsConf := &aws.Config{}
		if bc.Region != "" {
			awsConf.Region = aws.String(bc.Region)
		}
		if bc.Endpoint != "" {
			awsConf.Endpoint = aws.String(bc.Endpoint)
		}
		svc := s3.New(sess, awsConf)
		b.routes = append(b.routes, bucketRoute{
			prefix: prefix,
			cfg:    bc,
			svc:    svc,
			up:     s3manager.NewUploaderWithClient(svc),
		})
	}
	sort.Slice(b.routes, func(i, j int) bool { return len(b.routes[i].prefix) > len(b.routes[j].prefix) })
	return b, nil
}

func (b *Backend) route(name string) (bucketRoute, error) {
	best, found := bucketRoute{}, false
	for _, r := range b.routes {
		if strings.HasPrefix(name, r.prefix) && (!found || len(r.prefix) > len(best.prefix)) {
			best, found = r, true
		}
	}
	if found {
		return best, nil
	}
	return bucketRoute{}, herr.Internal(fmt.Errorf("no s3 bucket configured for prefix of %q", name), "s3 routing")
}

// objectKey implements the configurable naming scheme (§4.3 "pref/**/hname
// or pref/**/hname:hver").
func objectKey(r bucketRoute, name, version string) string {
	trimmed := strings.TrimPrefix(name, r.prefix)
	trimmed = strings.TrimPrefix(trimmed, "/")
	key := r.cfg.BucketPathPrefix + "/" + trimmed
	if r.cfg.HatracS3Method == "pref/**/hname:hver" {
		key = key + ":" + version
	}
	if r.cfg.UnquoteObjectKeys {
		key = strings.ReplaceAll(key, "%2F", "/")
	}
	return key
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	if reqErr, ok := err.(awserr.RequestFailure); ok {
		switch reqErr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return herr.NotFound("s3 object not found: %v", reqErr.Message())
		}
		return herr.Internal(err, "s3 request failed")
	}
	return herr.Internal(err, "s3 call failed")
}

func (b *Backend) CreateFromStream(ctx context.Context, name, version string, r io.Reader, size int64, md backend.Metadata) (backend.Receipt, error) {
	route, err := b.route(name)
	if err != nil {
		return backend.Receipt{}, err
	}
	key := objectKey(route, name, version)
	out, err := route.up.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(route.cfg.BucketName),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(md.ContentType),
	})
	if err != nil {
		return backend.Receipt{}, classifyErr(err)
	}
	receipt := backend.Receipt{Size: size, Aux: map[string]string{"url": fmt.Sprintf("s3://%s/%s", route.cfg.BucketName, key)}}
	if route.cfg.VersionedBucket && out.VersionID != nil {
		receipt.Aux["version"] = *out.VersionID
	}
	return receipt, nil
}

func (b *Backend) GetStream(ctx context.Context, name, version string, rng *backend.Range) (io.ReadCloser, int64, backend.Metadata, error) {
	route, err := b.route(name)
	if err != nil {
		return nil, 0, backend.Metadata{}, err
	}
	key := objectKey(route, name, version)
	in := &s3.GetObjectInput{Bucket: aws.String(route.cfg.BucketName), Key: aws.String(key)}
	if rng != nil {
		end := "" // empty means "to end"
		if rng.End >= 0 {
			end = fmt.Sprintf("%d", rng.End)
		}
		in.Range = aws.String(fmt.Sprintf("bytes=%d-%s", rng.Start, end))
	}
	out, err := route.svc.GetObjectWithContext(ctx, in)
	if err != nil {
		return nil, 0, backend.Metadata{}, classifyErr(err)
	}
	md := backend.Metadata{}
	if out.ContentType != nil {
		md.ContentType = *out.ContentType
	}
	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, md, nil
}

func (b *Backend) Delete(ctx context.Context, name, version string) error {
	route, err := b.route(name)
	if err != nil {
		return err
	}
	key := objectKey(route, name, version)
	_, err = route.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{Bucket: aws.String(route.cfg.BucketName), Key: aws.String(key)})
	return classifyErr(err)
}

// CreateUpload starts an S3 multipart upload; handle is the multipart
// upload id (§4.3 "handle is the multipart upload id").
func (b *Backend) CreateUpload(ctx context.Context, name string, size int64, md backend.Metadata) (string, error) {
	route, err := b.route(name)
	if err != nil {
		return "", err
	}
	key := objectKey(route, name, "")
	out, err := route.svc.CreateMultipartUploadWithContext(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(route.cfg.BucketName),
		Key:         aws.String(key),
		ContentType: aws.String(md.ContentType),
	})
	if err != nil {
		return "", classifyErr(err)
	}
	return strings.Join([]string{key, aws.StringValue(out.UploadId)}, "\x1f"), nil
}

func splitHandle(handle string) (key, uploadID string) {
	parts := strings.SplitN(handle, "\x1f", 2)
	if len(parts) != 2 {
		return handle, ""
	}
	return parts[0], parts[1]
}

// UploadChunk uploads one S3 multipart part; chunk-aux stores the part
// ETag (§4.3 "chunk-aux stores S3 ETags per part"). S3 part numbers are
// 1-based, so position maps to position+1.
func (b *Backend) UploadChunk(ctx context.Context, name, handle string, position, chunkLength, size int64, r io.Reader) (backend.ChunkReceipt, error) {
	route, err := b.route(name)
	if err != nil {
		return backend.ChunkReceipt{}, err
	}
	key, uploadID := splitHandle(handle)
	out, err := route.svc.UploadPartWithContext(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(route.cfg.BucketName),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int64(position + 1),
		Body:       readSeekerFrom(r),
	})
	if err != nil {
		return backend.ChunkReceipt{}, classifyErr(err)
	}
	return backend.ChunkReceipt{ETag: aws.StringValue(out.ETag), Size: size}, nil
}

// readSeekerFrom adapts an io.Reader to the io.ReadSeeker the SDK's
// UploadPart signature requires; chunk bodies are request-scoped
// buffers, never re-read, so Seek is not exercised beyond the SDK's own
// internal retry logic over the already-buffered body.
func readSeekerFrom(r io.Reader) *aws.ReadSeekCloser {
	if rsc, ok := r.(io.ReadSeeker); ok {
		return aws.ReadSeekCloser(rsc)
	}
	return aws.ReadSeekCloser(&nopSeeker{r})
}

type nopSeeker struct{ io.Reader }

func (n *nopSeeker) Seek(offset int64, whence int) (int64, error) {
	if offset == 0 && whence == io.SeekCurrent {
		return 0, nil
	}
	return 0, fmt.Errorf("chunk body does not support seeking")
}

// FinalizeUpload completes the multipart upload from the recorded part
// ETags (§4.3, §4.4). Per §9 Open Question (b), Hatrac does not attempt
// to recompute a whole-object MD5/SHA-256 across S3 parts — S3's own
// multipart composition already verifies per-part integrity, and a
// full-object hash would require buffering the assembled object a
// second time; the declared digests are still recorded, not verified
// against assembled bytes, when the backend is S3 (documented in
// DESIGN.md).
func (b *Backend) FinalizeUpload(ctx context.Context, name, handle string, chunkAux []backend.ChunkReceipt, md backend.Metadata) (backend.Receipt, error) {
	route, err := b.route(name)
	if err != nil {
		return backend.Receipt{}, err
	}
	key, uploadID := splitHandle(handle)
	parts := make([]*s3.CompletedPart, len(chunkAux))
	var total int64
	for i, c := range chunkAux {
		parts[i] = &s3.CompletedPart{ETag: aws.String(c.ETag), PartNumber: aws.Int64(int64(i) + 1)}
		total += c.Size
	}
	out, err := route.svc.CompleteMultipartUploadWithContext(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(route.cfg.BucketName),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &s3.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return backend.Receipt{}, classifyErr(err)
	}
	receipt := backend.Receipt{
		Size:          total,
		ContentMD5:    md.ContentMD5,
		ContentSHA256: md.ContentSHA256,
		Aux:           map[string]string{"url": fmt.Sprintf("s3://%s/%s", route.cfg.BucketName, key)},
	}
	if route.cfg.VersionedBucket && out.VersionId != nil {
		receipt.Aux["version"] = *out.VersionId
	}
	return receipt, nil
}

func (b *Backend) CancelUpload(ctx context.Context, name, handle string) error {
	route, err := b.route(name)
	if err != nil {
		return err
	}
	key, uploadID := splitHandle(handle)
	_, err = route.svc.AbortMultipartUploadWithContext(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(route.cfg.BucketName),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	return classifyErr(err)
}

func (b *Backend) Address(ctx context.Context, name, version string) (string, error) {
	route, err := b.route(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", route.cfg.BucketName, objectKey(route, name, version)), nil
}

// PresignedGet implements backend.Presigner (§4.3 "Presigned-URL
// redirection is enabled above a configured size threshold").
func (b *Backend) PresignedGet(ctx context.Context, name, version string, ttl time.Duration) (string, bool, error) {
	route, err := b.route(name)
	if err != nil {
		return "", false, err
	}
	key := objectKey(route, name, version)
	req, _ := route.svc.GetObjectRequest(&s3.GetObjectInput{Bucket: aws.String(route.cfg.BucketName), Key: aws.String(key)})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", false, herr.Internal(err, "presign s3 get")
	}
	return url, true, nil
}
