package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/domain/codefile"
	"github.com/codescope/codescope/internal/domain/project"
)

func TestProjectCreateRequiresActor(t *testing.T) {
	svc := NewProjectService(newMockStore(), memberAll{}, testLogger())

	_, err := svc.Create(context.Background(), "", project.CreateRequest{Name: "x"})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestProjectCreateValidates(t *testing.T) {
	svc := NewProjectService(newMockStore(), memberAll{}, testLogger())

	_, err := svc.Create(context.Background(), "u1", project.CreateRequest{Name: "  "})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestProjectGetEnforcesMembership(t *testing.T) {
	store := newMockStore()
	svc := NewProjectService(store, memberSet{"p-1/u1": true}, testLogger())

	p, err := svc.Create(context.Background(), "u1", project.CreateRequest{Name: "mine"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Get(context.Background(), "u1", p.ID); err != nil {
		t.Errorf("member Get: %v", err)
	}
	if _, err := svc.Get(context.Background(), "outsider", p.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("outsider Get err = %v, want ErrForbidden", err)
	}
}

func TestProjectDeleteOwnerOnly(t *testing.T) {
	store := newMockStore()
	svc := NewProjectService(store, memberAll{}, testLogger())
	ctx := context.Background()

	p, err := svc.Create(ctx, "owner", project.CreateRequest{Name: "mine"})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx, "member", p.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("non-owner delete err = %v, want ErrForbidden", err)
	}
	if err := svc.Delete(ctx, "owner", p.ID); err != nil {
		t.Errorf("owner delete: %v", err)
	}
}

func TestAddMemberInvalidRole(t *testing.T) {
	store := newMockStore()
	svc := NewProjectService(store, memberAll{}, testLogger())
	ctx := context.Background()

	p, err := svc.Create(ctx, "owner", project.CreateRequest{Name: "team"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.AddMember(ctx, "owner", p.ID, "u2", "janitor"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

// recordingInvalidator captures cache invalidations.
type recordingInvalidator struct{ keys []string }

func (r *recordingInvalidator) Invalidate(projectID, userID string) {
	r.keys = append(r.keys, projectID+"/"+userID)
}

func TestAddMemberInvalidatesCache(t *testing.T) {
	store := newMockStore()
	svc := NewProjectService(store, memberAll{}, testLogger())
	inv := &recordingInvalidator{}
	svc.SetInvalidator(inv)
	ctx := context.Background()

	p, err := svc.Create(ctx, "owner", project.CreateRequest{Name: "team"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddMember(ctx, "owner", p.ID, "u2", project.RoleDeveloper); err != nil {
		t.Fatal(err)
	}

	if len(inv.keys) != 1 || inv.keys[0] != p.ID+"/u2" {
		t.Errorf("invalidations = %v", inv.keys)
	}
}

func TestSyncFilesPerItemResults(t *testing.T) {
	store := newMockStore()
	svc := NewProjectService(store, memberAll{}, testLogger())
	ctx := context.Background()

	p, err := svc.Create(ctx, "owner", project.CreateRequest{Name: "sync"})
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	entries := []codefile.SyncEntry{
		{FilePath: "src/a.py", FileSize: 10, LanguageType: "python", LastModified: now},
		{FilePath: "bin/tool", FileSize: 500, IsBinary: true, LastModified: now},
		{FilePath: "../escape.py", FileSize: 1, LastModified: now},
		{FilePath: "src/b.py", FileSize: 20, LanguageType: "python", LastModified: now},
	}

	results, err := svc.SyncFiles(ctx, "owner", p.ID, entries)
	if err != nil {
		t.Fatalf("SyncFiles: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("results = %d, want 4", len(results))
	}

	want := []string{"synced", "skipped_binary", "failed", "synced"}
	for i, w := range want {
		if results[i].Status != w {
			t.Errorf("entry %d (%s) status = %q, want %q", i, results[i].FilePath, results[i].Status, w)
		}
	}
	if results[2].Error == "" {
		t.Error("failed entry should carry an error message")
	}

	files, err := store.ListFiles(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("stored files = %d, want 2", len(files))
	}
}

func TestSyncFilesStoreFailureIsPerItem(t *testing.T) {
	store := newMockStore()
	svc := NewProjectService(store, memberAll{}, testLogger())
	ctx := context.Background()

	p, err := svc.Create(ctx, "owner", project.CreateRequest{Name: "sync"})
	if err != nil {
		t.Fatal(err)
	}

	store.upsertErr = errors.New("disk on fire")
	results, err := svc.SyncFiles(ctx, "owner", p.ID, []codefile.SyncEntry{
		{FilePath: "a.py", LastModified: time.Now()},
	})
	if err != nil {
		t.Fatalf("SyncFiles should not fail wholesale: %v", err)
	}
	if results[0].Status != "failed" {
		t.Errorf("status = %q, want failed", results[0].Status)
	}
}
