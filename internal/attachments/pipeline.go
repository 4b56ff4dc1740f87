package attachments

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/opdstack/clinic-platform/internal/observability/metrics"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

// Pipeline ingests report files for one registration, chooses a storage
// tier per file and settles the whole batch even when individual files
// fail.
type Pipeline struct {
	blob     *BlobStore
	clinicID string
	timeout  time.Duration
	logger   *logging.Logger
	metrics  *metrics.CoreMetrics
}

// PipelineConfig holds configuration for the Pipeline.
type PipelineConfig struct {
	Blob     *BlobStore
	ClinicID string
	// Timeout bounds a whole batch. Zero means no deadline.
	Timeout time.Duration
	Logger  *logging.Logger
	Metrics *metrics.CoreMetrics
}

// NewPipeline creates an attachment pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.ClinicID == "" {
		cfg.ClinicID = "default"
	}
	return &Pipeline{
		blob:     cfg.Blob,
		clinicID: cfg.ClinicID,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger.Component("attachments"),
		metrics:  cfg.Metrics,
	}
}

// UploadBatch uploads every file concurrently and resolves once all of
// them settled. A slow or failing file never blocks the others; failures
// come back named, with the remediation that applies.
func (p *Pipeline) UploadBatch(ctx context.Context, files []File, onProgress ProgressFunc) BatchResult {
	if len(files) == 0 {
		return BatchResult{Succeeded: []Attachment{}, Failed: []FileError{}}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	type settled struct {
		attachment Attachment
		err        error
	}
	results := make([]settled, len(files))

	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func(i int, f File) {
			defer wg.Done()
			att, err := p.uploadOne(ctx, f, onProgress)
			results[i] = settled{attachment: att, err: err}
		}(i, f)
	}
	wg.Wait()

	out := BatchResult{Succeeded: []Attachment{}, Failed: []FileError{}}
	for i, r := range results {
		if r.err != nil {
			out.Failed = append(out.Failed, FileError{FileName: files[i].Name, Reason: r.err.Error()})
			continue
		}
		out.Succeeded = append(out.Succeeded, r.attachment)
	}
	return out
}

func (p *Pipeline) uploadOne(ctx context.Context, f File, onProgress ProgressFunc) (Attachment, error) {
	start := time.Now()

	if f.Size > AbsoluteMax {
		p.metrics.ObserveUpload(string(tierFor(f.Size)), "rejected")
		p.logger.Warn("report rejected before transfer", "file", f.Name, "size", f.Size)
		return Attachment{}, errTooLarge
	}

	if f.Size > InlineMax {
		att, err := p.uploadBlob(ctx, f, onProgress)
		p.observeOutcome(TierBlob, err, start)
		return att, err
	}

	att, err := p.uploadInline(f, onProgress)
	p.observeOutcome(TierInline, err, start)
	return att, err
}

// uploadBlob pushes a file to the blob tier. An authorization or
// cross-origin class of failure triggers one inline retry when the file
// would still fit inline; everything else is a permanent, named failure.
func (p *Pipeline) uploadBlob(ctx context.Context, f File, onProgress ProgressFunc) (Attachment, error) {
	if !p.blob.Enabled() {
		return Attachment{}, errStoreMisconfigured
	}

	key := objectKey(p.clinicID, f.Name)
	body := newProgressReader(bytes.NewReader(f.Content), f.Size, f.Name, onProgress)

	url, err := p.blob.Put(ctx, key, f.ContentType, body, f.Size)
	if err != nil {
		if isAuthorizationError(err) {
			if f.Size <= InlineMax {
				p.logger.Warn("blob tier denied, retrying inline", "file", f.Name, "error", err)
				return p.uploadInline(f, onProgress)
			}
			return Attachment{}, errStoreMisconfigured
		}
		p.logger.Error("blob upload failed", "file", f.Name, "error", err)
		return Attachment{}, fmt.Errorf("upload failed: %w", err)
	}

	report(onProgress, f.Name, 100)
	p.logger.Info("report stored in blob tier", "file", f.Name, "key", key, "size", f.Size)
	return Attachment{
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
		UploadedAt:  time.Now().UTC(),
		Tier:        TierBlob,
		URL:         url,
		Path:        key,
	}, nil
}

// uploadInline embeds the payload in the owning record. Progress jumps in
// two large steps around the encode since there is no byte-level signal.
func (p *Pipeline) uploadInline(f File, onProgress ProgressFunc) (Attachment, error) {
	report(onProgress, f.Name, 20)
	encoded := base64.StdEncoding.EncodeToString(f.Content)
	report(onProgress, f.Name, 80)

	att := Attachment{
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
		UploadedAt:  time.Now().UTC(),
		Tier:        TierInline,
		Data:        encoded,
	}
	report(onProgress, f.Name, 100)
	p.logger.Info("report stored inline", "file", f.Name, "size", f.Size)
	return att, nil
}

func (p *Pipeline) observeOutcome(tier Tier, err error, start time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	p.metrics.ObserveUpload(string(tier), outcome)
	p.metrics.ObserveUploadDuration(string(tier), time.Since(start).Seconds())
}

func tierFor(size int64) Tier {
	if size > InlineMax {
		return TierBlob
	}
	return TierInline
}

// objectKey builds a collision-resistant object key under the clinic's
// report prefix, with the original file name sanitized.
func objectKey(clinicID, fileName string) string {
	var b strings.Builder
	for _, r := range fileName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return fmt.Sprintf("reports/%s/%d_%04d_%s", clinicID, time.Now().UnixMilli(), rand.Intn(10000), b.String())
}

func report(onProgress ProgressFunc, fileName string, percent int) {
	if onProgress != nil {
		onProgress(fileName, percent)
	}
}
