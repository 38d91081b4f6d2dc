package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/drsolutions/drsplan/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	objects map[string]string
	gets    int
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	f.gets++
	body, ok := f.objects[aws.StringValue(input.Bucket)+"/"+aws.StringValue(input.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(body))}, nil
}

func TestS3ResultArchive(t *testing.T) {
	client := &fakeS3{objects: map[string]string{
		"drs-results/app1_plan1/exec-1.json": `{"AppId_PlanId":"ignored","ExecutionId":"exec-1","status":"completed","Waves":[{"status":"completed","log":"done"}]}`,
	}}
	archive := NewS3ResultArchive(client, "drs-results")
	ctx := context.Background()

	body, err := archive.Fetch(ctx, "", "app1_plan1/exec-1.json")
	require.NoError(t, err)

	stub := models.Result{AppIDPlanID: "app1_plan1", ExecutionID: "exec-1", S3Bucket: "drs-results", S3Key: "app1_plan1/exec-1.json"}
	full, err := DecodeArchivedResult(stub, body)
	require.NoError(t, err)
	assert.Equal(t, "app1_plan1", full.AppIDPlanID)
	assert.Equal(t, models.ResultStatusCompleted, full.Status)
	assert.False(t, full.IsArchived())
	require.Len(t, full.Waves, 1)
	assert.Equal(t, models.LogLines{"done"}, full.Waves[0].Log)

	_, err = archive.Fetch(ctx, "drs-results", "missing.json")
	assert.ErrorIs(t, err, ErrArchiveNotFound)

	_, err = NewS3ResultArchive(client, "").Fetch(ctx, "", "key.json")
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.Equal(t, 2, client.gets)
}

func TestS3ResultArchiveSizeLimit(t *testing.T) {
	client := &fakeS3{objects: map[string]string{
		"drs-results/fits.json":  strings.Repeat("a", maxArchiveSize),
		"drs-results/large.json": strings.Repeat("a", maxArchiveSize+1),
	}}
	archive := NewS3ResultArchive(client, "drs-results")
	ctx := context.Background()

	body, err := archive.Fetch(ctx, "", "fits.json")
	require.NoError(t, err)
	assert.Len(t, body, maxArchiveSize)

	_, err = archive.Fetch(ctx, "", "large.json")
	assert.ErrorIs(t, err, ErrArchiveTooLarge)
}
