package evidence

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/mikey/image-mod-relay/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRecord() *core.EvidenceRecord {
	return &core.EvidenceRecord{
		GroupID:    "123456",
		UserID:     "10001",
		Labels:     []string{"色情", "涉政"},
		Data:       []byte("raw-image"),
		CapturedAt: time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC),
	}
}

func TestFileName(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("20240501_123045_group123456_user10001_色情_涉政.jpg", FileName(testRecord()))

	record := testRecord()
	record.Labels = nil
	assert.Equal("20240501_123045_group123456_user10001_violation.jpg", FileName(record))

	record.GroupID = "../../etc"
	record.Labels = []string{"a/b"}
	name := FileName(record)
	assert.NotContains(name, "/")
	assert.Equal("20240501_123045_group..-..-etc_user10001_a-b.jpg", name)
}

func TestFileStoreSave(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dir := filepath.Join(t.TempDir(), "violations")
	store, err := NewFileStore(dir, zap.NewNop())
	require.NoError(err)

	path, err := store.Save(context.Background(), testRecord())
	require.NoError(err)
	assert.Equal(filepath.Join(dir, "20240501_123045_group123456_user10001_色情_涉政.jpg"), path)

	data, err := os.ReadFile(path)
	require.NoError(err)
	assert.Equal([]byte("raw-image"), data)

	// a taken name gets a numeric suffix, the first file is kept
	second := testRecord()
	second.Data = []byte("second-image")
	path2, err := store.Save(context.Background(), second)
	require.NoError(err)
	assert.Equal(filepath.Join(dir, "20240501_123045_group123456_user10001_色情_涉政_1.jpg"), path2)

	path3, err := store.Save(context.Background(), testRecord())
	require.NoError(err)
	assert.Equal(filepath.Join(dir, "20240501_123045_group123456_user10001_色情_涉政_2.jpg"), path3)

	data, err = os.ReadFile(path)
	require.NoError(err)
	assert.Equal([]byte("raw-image"), data)
	data, err = os.ReadFile(path2)
	require.NoError(err)
	assert.Equal([]byte("second-image"), data)

	entries, err := os.ReadDir(dir)
	require.NoError(err)
	assert.Len(entries, 3)
}

func TestSuffixed(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("a_b.jpg", suffixed("a_b.jpg", 0))
	assert.Equal("a_b_1.jpg", suffixed("a_b.jpg", 1))
	assert.Equal("a_b_12.jpg", suffixed("a_b.jpg", 12))
}

type fakeS3 struct {
	input   *s3.PutObjectInput
	body    []byte
	err     error
	objects map[string][]byte
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	key := aws.ToString(params.Key)
	if _, ok := f.objects[key]; ok && aws.ToString(params.IfNoneMatch) == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = f.body
	return &s3.PutObjectOutput{}, nil
}

func TestS3StoreSave(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	client := &fakeS3{}
	store := NewS3StoreWithClient(client, "evidence-bucket", "violations", zap.NewNop())

	location, err := store.Save(context.Background(), testRecord())
	require.NoError(err)
	assert.Equal("s3://evidence-bucket/violations/20240501_123045_group123456_user10001_色情_涉政.jpg", location)
	assert.Equal("evidence-bucket", aws.ToString(client.input.Bucket))
	assert.Equal("image/jpeg", aws.ToString(client.input.ContentType))
	assert.Equal("123456", client.input.Metadata["group-id"])
	assert.Equal([]byte("raw-image"), client.body)
	assert.Equal("*", aws.ToString(client.input.IfNoneMatch))

	location, err = store.Save(context.Background(), testRecord())
	require.NoError(err)
	assert.Equal("s3://evidence-bucket/violations/20240501_123045_group123456_user10001_色情_涉政_1.jpg", location)
	assert.Len(client.objects, 2)
}

func TestS3StoreError(t *testing.T) {
	store := NewS3StoreWithClient(&fakeS3{err: errors.New("access denied")}, "b", "", zap.NewNop())
	_, err := store.Save(context.Background(), testRecord())
	assert.ErrorContains(t, err, "access denied")
}
