package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/noticeserve-backend/internal/batch"
	types "github.com/yungbote/noticeserve-backend/internal/domain/notices"
	"github.com/yungbote/noticeserve-backend/internal/platform/blobstore"
	"github.com/yungbote/noticeserve-backend/internal/platform/thumbnail"
)

// Attachment is one uploaded file. Open may be called once.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

type Attachments struct {
	Thumbnail *Attachment
	Document  *Attachment
}

// BytesAttachment wraps an in-memory payload.
func BytesAttachment(filename, contentType string, data []byte) *Attachment {
	return &Attachment{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

type storedBlob struct {
	component   types.ComponentKind
	key         string
	contentType string
	size        int64
	sha256      string
	rendered    bool
}

type storedAttachments struct {
	thumbnail *storedBlob
	document  *storedBlob
}

func (s storedAttachments) all() []*storedBlob {
	out := make([]*storedBlob, 0, 2)
	if s.thumbnail != nil {
		out = append(out, s.thumbnail)
	}
	if s.document != nil {
		out = append(out, s.document)
	}
	return out
}

// storeAttachments uploads thumbnail and document in parallel. A document
// without a thumbnail gets a rendered Alert stub. Keys are scoped to attempt
// so a resubmission never overwrites blobs a committed attempt references.
func (s *batchService) storeAttachments(ctx context.Context, batchID, attempt string, n *batch.NormalizedBatch, att Attachments) (storedAttachments, error) {
	var out storedAttachments
	thumb := att.Thumbnail
	rendered := false
	if thumb == nil && att.Document != nil && s.thumbs != nil {
		png, err := s.thumbs.Render(thumbnail.Alert{
			CaseNumber:    n.CaseNumber,
			NoticeType:    n.NoticeType,
			IssuingAgency: n.IssuingAgency,
		})
		if err != nil {
			s.log.Warn("alert thumbnail render failed (continuing without)", "batch_id", batchID, "error", err)
		} else {
			thumb = BytesAttachment("thumbnail.png", "image/png", png)
			rendered = true
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if thumb != nil {
		g.Go(func() error {
			b, err := s.putAttachment(gctx, batchID, attempt, types.ComponentAlert, thumb)
			if err != nil {
				return err
			}
			b.rendered = rendered
			out.thumbnail = b
			return nil
		})
	}
	if att.Document != nil {
		g.Go(func() error {
			b, err := s.putAttachment(gctx, batchID, attempt, types.ComponentDocument, att.Document)
			if err != nil {
				return err
			}
			out.document = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.deleteBlobs(context.WithoutCancel(ctx), out)
		return storedAttachments{}, err
	}
	return out, nil
}

func (s *batchService) putAttachment(ctx context.Context, batchID, attempt string, kind types.ComponentKind, a *Attachment) (*storedBlob, error) {
	if a.Open == nil {
		return nil, fmt.Errorf("%s attachment has no content", kind)
	}
	rc, err := a.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s attachment: %w", kind, err)
	}
	defer rc.Close()

	ct := strings.TrimSpace(a.ContentType)
	key := fmt.Sprintf("batches/%s/%s/%s%s", batchID, attempt, kind, attachmentExt(a.Filename, ct))
	if ct == "" || ct == "application/octet-stream" {
		ct = blobstore.ContentTypeForKey(key)
	}
	h := sha256.New()
	counted := &countingReader{r: io.TeeReader(rc, h)}
	if err := s.blobs.Put(ctx, key, counted, a.Size, ct); err != nil {
		s.metrics.IncBlobUpload(string(kind), "error")
		return nil, fmt.Errorf("store %s attachment: %w", kind, err)
	}
	s.metrics.IncBlobUpload(string(kind), "ok")
	return &storedBlob{
		component:   kind,
		key:         key,
		contentType: ct,
		size:        counted.n,
		sha256:      hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// deleteBlobs removes only what one attempt stored. Best effort; orphaned
// blobs are unreferenced, not harmful.
func (s *batchService) deleteBlobs(ctx context.Context, stored storedAttachments) {
	for _, b := range stored.all() {
		if err := s.blobs.Delete(ctx, b.key); err != nil {
			s.log.Warn("failed to delete attachment (ignored)", "key", b.key, "error", err)
		}
	}
}

func attachmentExt(filename, contentType string) string {
	if ext := strings.ToLower(path.Ext(strings.TrimSpace(filename))); ext != "" && len(ext) <= 6 {
		return ext
	}
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "application/pdf":
		return ".pdf"
	default:
		return ""
	}
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
