package services

import (
	"context"
	"testing"
	"time"

	"github.com/eoty/eoty-backend/internal/platform/gcp"
)

func TestSweepDeletesOnlyAgedOrphans(t *testing.T) {
	bucket := newFakeBucket()
	old := time.Now().Add(-2 * time.Hour)

	referencedKey := gcp.ContentPrefix + "referenced"
	orphanKey := gcp.ContentPrefix + "orphan"
	freshKey := gcp.ContentPrefix + "fresh-orphan"
	orphanText := gcp.ExtractedPrefix + "gone.txt"

	for _, k := range []string{referencedKey, orphanKey, freshKey, orphanText} {
		bucket.objects[k] = []byte("blob")
		bucket.updated[k] = old
	}
	bucket.updated[freshKey] = time.Now()

	resources := &fakeResourceRepo{
		blobKeys: map[string]bool{referencedKey: true},
		textKeys: map[string]bool{},
	}
	svc := NewSweepService(testLogger(t), resources, bucket)

	deleted, err := svc.SweepOrphanBlobs(context.Background())
	if err != nil {
		t.Fatalf("SweepOrphanBlobs: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted: want=2 got=%d", deleted)
	}
	if _, ok := bucket.objects[referencedKey]; !ok {
		t.Fatalf("referenced blob must survive")
	}
	if _, ok := bucket.objects[freshKey]; !ok {
		t.Fatalf("fresh blob must survive the grace period")
	}
	if _, ok := bucket.objects[orphanKey]; ok {
		t.Fatalf("aged orphan content blob must be deleted")
	}
	if _, ok := bucket.objects[orphanText]; ok {
		t.Fatalf("aged orphan text blob must be deleted")
	}
}

func TestSweepNothingToDo(t *testing.T) {
	svc := NewSweepService(testLogger(t), &fakeResourceRepo{}, newFakeBucket())
	deleted, err := svc.SweepOrphanBlobs(context.Background())
	if err != nil {
		t.Fatalf("SweepOrphanBlobs: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("deleted: want=0 got=%d", deleted)
	}
}
