package media

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	objects  map[string]map[string]string
	bodies   map[string][]byte
	headErr  error
	lastType string
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	meta, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{Metadata: meta}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = in.Metadata
	f.bodies[aws.ToString(in.Key)] = body
	f.lastType = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Backend(t *testing.T) {
	client := &fakeS3{objects: make(map[string]map[string]string), bodies: make(map[string][]byte)}
	b := NewS3Backend(client, "media", "/catalog/product/")
	ctx := context.Background()

	if _, ok, err := b.Checksum(ctx, "/s/h/shirt.png"); ok || err != nil {
		t.Fatalf("Checksum() = %v, %v, want missing", ok, err)
	}

	if err := b.Put(ctx, "/s/h/shirt.png", pngData, "image/png", 0xabc); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := client.bodies["catalog/product/s/h/shirt.png"]; !ok {
		t.Errorf("object keys = %v, want catalog/product/s/h/shirt.png", client.bodies)
	}
	if client.lastType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", client.lastType)
	}

	sum, ok, err := b.Checksum(ctx, "/s/h/shirt.png")
	if err != nil || !ok || sum != 0xabc {
		t.Errorf("Checksum() = %x, %v, %v, want abc, true, nil", sum, ok, err)
	}
}

func TestS3Backend_HeadError(t *testing.T) {
	client := &fakeS3{headErr: errors.New("access denied")}
	b := NewS3Backend(client, "media", "")

	if _, _, err := b.Checksum(context.Background(), "/a/b/ab.png"); !errors.Is(err, client.headErr) {
		t.Errorf("Checksum() error = %v, want %v", err, client.headErr)
	}
}

func TestUpload_S3Backend(t *testing.T) {
	client := &fakeS3{objects: make(map[string]map[string]string), bodies: make(map[string][]byte)}
	u := NewUploader(NewS3Backend(client, "media", "catalog/product"), Options{ImportDir: t.TempDir()})
	writeFile(t, u.importDir, "hat.jpg", jpegData)

	got, err := u.Upload(context.Background(), "hat.jpg")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if got != "/h/a/hat.jpg" {
		t.Errorf("Upload() = %q, want /h/a/hat.jpg", got)
	}
	if client.lastType != "image/jpeg" {
		t.Errorf("ContentType = %q, want image/jpeg", client.lastType)
	}
}
