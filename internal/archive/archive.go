// Package archive mirrors dead-lettered send jobs to S3 so operators can
// inspect them after the local NDJSON queue file has rotated. Purely
// additive: the queue store remains the single source of truth, and a
// mirror failure never blocks the reaper or dispatcher.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/pkg/logger"
)

// snapshot is the PII-scrubbed form of a dead-lettered job mirrored to S3.
// The recipient's address is never included; only its domain survives, the
// same boundary the core itself enforces on domain.SendJob.
type snapshot struct {
	JobID           string    `json:"job_id"`
	DraftID         string    `json:"draft_id"`
	TrackingID      string    `json:"tracking_id"`
	CompanyID       string    `json:"company_id"`
	TemplateID      string    `json:"template_id"`
	ToDomain        string    `json:"to_domain"`
	Attempts        int       `json:"attempts"`
	LastErrorCode   string    `json:"last_error_code"`
	ArchivedAt      time.Time `json:"archived_at"`
	DeadLetteredAt  time.Time `json:"dead_lettered_at"`
}

// putObjectAPI is the narrow slice of *s3.Client the archiver needs,
// seamed out so tests can substitute a fake without a live bucket.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver mirrors dead-lettered jobs to an S3 bucket.
type Archiver struct {
	client putObjectAPI
	bucket string
	prefix string
}

// New builds an Archiver against bucket using ambient AWS credentials
// (environment, shared config, or instance profile). prefix namespaces
// objects within the bucket, e.g. "outreach/dead-letters/".
func New(ctx context.Context, bucket, prefix, region string) (*Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("archive: loading AWS config: %w", err)
	}
	return &Archiver{
		client: s3.NewFromConfig(awsCfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// newWithClient builds an Archiver around an arbitrary putObjectAPI,
// primarily for tests.
func newWithClient(client putObjectAPI, bucket, prefix string) *Archiver {
	return &Archiver{client: client, bucket: bucket, prefix: prefix}
}

// MirrorDeadLetter writes job's PII-scrubbed snapshot to S3 under a key
// derived from its job_id. Errors are logged by the caller's choosing, not
// swallowed here, since the caller (the daemon's archive loop) decides
// whether a mirror failure is worth surfacing.
func (a *Archiver) MirrorDeadLetter(ctx context.Context, job domain.SendJob, now time.Time) error {
	snap := snapshot{
		JobID:          job.JobID,
		DraftID:        job.DraftID,
		TrackingID:     job.TrackingID,
		CompanyID:      job.CompanyID,
		TemplateID:     job.TemplateID,
		ToDomain:       job.ToDomain,
		Attempts:       job.Attempts,
		LastErrorCode:  string(job.LastErrorCode),
		ArchivedAt:     now,
	}
	if job.LastUpdatedAt.After(job.CreatedAt) {
		snap.DeadLetteredAt = job.LastUpdatedAt
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: marshalling snapshot for %s: %w", job.JobID, err)
	}

	key := a.objectKey(job.JobID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: putting object %s: %w", key, err)
	}

	logger.Info("archive: mirrored dead letter", "job_id", job.JobID, "s3_key", key)
	return nil
}

func (a *Archiver) objectKey(jobID string) string {
	sum := sha256.Sum256([]byte(jobID))
	shard := hex.EncodeToString(sum[:])[:2]
	return fmt.Sprintf("%s%s/%s.json", a.prefix, shard, jobID)
}
