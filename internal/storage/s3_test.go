package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/abstrio/internal/apperror"
)

type fakePutter struct {
	in   *s3.PutObjectInput
	body string
	err  error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, f.err
}

func fixedNow() time.Time {
	return time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC)
}

func TestUpload_StoresUnderProfileFolder(t *testing.T) {
	fp := &fakePutter{}
	s := newStore(fp, Config{Bucket: "abstrio", Region: "us-east-1"})
	s.now = fixedNow

	url, err := s.Upload(context.Background(), "Me.PNG", "", strings.NewReader("png-bytes"), 9)
	require.NoError(t, err)

	key := aws.ToString(fp.in.Key)
	assert.True(t, strings.HasPrefix(key, "profile-images/2025/03/"), key)
	assert.True(t, strings.HasSuffix(key, ".png"), key)
	assert.Equal(t, "abstrio", aws.ToString(fp.in.Bucket))
	assert.Equal(t, "image/png", aws.ToString(fp.in.ContentType))
	assert.Equal(t, int64(9), aws.ToInt64(fp.in.ContentLength))
	assert.Equal(t, "png-bytes", fp.body)
	assert.Equal(t, "https://abstrio.s3.us-east-1.amazonaws.com/"+key, url)
}

func TestUpload_URLForms(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		prefix string
	}{
		{"public base", Config{Bucket: "b", PublicBaseURL: "https://cdn.abstrio.io/"}, "https://cdn.abstrio.io/profile-images/"},
		{"custom endpoint", Config{Bucket: "b", Endpoint: "http://127.0.0.1:9000/"}, "http://127.0.0.1:9000/b/profile-images/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(&fakePutter{}, tt.cfg)
			url, err := s.Upload(context.Background(), "a.jpg", "image/jpeg", strings.NewReader("x"), 1)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(url, tt.prefix), url)
		})
	}
}

func TestUpload_RejectsOtherFormats(t *testing.T) {
	fp := &fakePutter{}
	s := newStore(fp, Config{Bucket: "b"})

	_, err := s.Upload(context.Background(), "script.svg", "image/svg+xml", strings.NewReader("<svg/>"), 6)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	assert.Nil(t, fp.in)
}

func TestUpload_BackendFailure(t *testing.T) {
	s := newStore(&fakePutter{err: errors.New("503 slow down")}, Config{Bucket: "b"})

	_, err := s.Upload(context.Background(), "a.jpeg", "", strings.NewReader("x"), 1)
	assert.Equal(t, apperror.KindUpstream, apperror.KindOf(err))
}

func TestImageContentType(t *testing.T) {
	ct, ok := ImageContentType("photo.JPEG")
	assert.True(t, ok)
	assert.Equal(t, "image/jpeg", ct)

	_, ok = ImageContentType("photo.gif")
	assert.False(t, ok)
}
