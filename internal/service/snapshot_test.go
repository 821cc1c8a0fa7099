package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/domain/codefile"
	"github.com/codescope/codescope/internal/domain/project"
	"github.com/codescope/codescope/internal/domain/snapshot"
)

func setupSnapshot(t *testing.T) (*mockStore, *SnapshotService, *project.Project) {
	t.Helper()
	store := newMockStore()
	svc := NewSnapshotService(store, memberAll{}, 1<<20, testLogger())
	p, err := store.CreateProject(context.Background(), "owner", project.CreateRequest{Name: "snap"})
	if err != nil {
		t.Fatal(err)
	}
	return store, svc, p
}

func TestSnapshotCreateValidatesName(t *testing.T) {
	_, svc, p := setupSnapshot(t)

	_, err := svc.Create(context.Background(), "owner", snapshot.CreateRequest{
		ProjectID: p.ID,
		Name:      "",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSnapshotUploadCreatesFileVersionAndLink(t *testing.T) {
	store, svc, p := setupSnapshot(t)
	ctx := context.Background()

	sn, err := svc.Create(ctx, "owner", snapshot.CreateRequest{ProjectID: p.ID, Name: "rel-1"})
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.Upload(ctx, "owner", sn.ID, "src/app.py", "print('hi')\n", "initial")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !res.Created {
		t.Error("first upload should create a version")
	}
	if res.Version.VersionNumber != 1 {
		t.Errorf("version number = %d, want 1", res.Version.VersionNumber)
	}

	f, err := store.GetFileByPath(ctx, p.ID, "src/app.py")
	if err != nil {
		t.Fatalf("file not upserted: %v", err)
	}
	if f.FileSize != int64(len("print('hi')\n")) {
		t.Errorf("file size = %d", f.FileSize)
	}

	detail, err := svc.Detail(ctx, "owner", sn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Files) != 1 || detail.Files[0].VersionID != res.Version.ID {
		t.Errorf("detail = %+v", detail.Files)
	}
}

func TestSnapshotUploadDedupAcrossSnapshots(t *testing.T) {
	_, svc, p := setupSnapshot(t)
	ctx := context.Background()

	s1, err := svc.Create(ctx, "owner", snapshot.CreateRequest{ProjectID: p.ID, Name: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	s2, err := svc.Create(ctx, "owner", snapshot.CreateRequest{ProjectID: p.ID, Name: "s2"})
	if err != nil {
		t.Fatal(err)
	}

	first, err := svc.Upload(ctx, "owner", s1.ID, "same.py", "unchanged\n", "")
	if err != nil {
		t.Fatal(err)
	}

	// Same path, same content, different snapshot: the existing version is
	// linked, no new version row.
	second, err := svc.Upload(ctx, "owner", s2.ID, "same.py", "unchanged\n", "")
	if err != nil {
		t.Fatal(err)
	}
	if second.Created {
		t.Error("identical content should be deduplicated")
	}
	if second.Version.ID != first.Version.ID {
		t.Errorf("version = %s, want reuse of %s", second.Version.ID, first.Version.ID)
	}

	d2, err := svc.Detail(ctx, "owner", s2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(d2.Files) != 1 || d2.Files[0].VersionID != first.Version.ID {
		t.Errorf("s2 detail = %+v", d2.Files)
	}
}

// An upload carries content but no language; the language a metadata sync
// already detected for the file must survive it.
func TestSnapshotUploadKeepsSyncedLanguage(t *testing.T) {
	store, svc, p := setupSnapshot(t)
	ctx := context.Background()

	_, err := store.UpsertFile(ctx, codefile.UpsertFileRequest{
		ProjectID:    p.ID,
		FilePath:     "main.py",
		FileSize:     10,
		LanguageType: "python",
		LastModified: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	sn, err := svc.Create(ctx, "owner", snapshot.CreateRequest{ProjectID: p.ID, Name: "rel"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Upload(ctx, "owner", sn.ID, "main.py", "print('hi')\n", ""); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	f, err := store.GetFileByPath(ctx, p.ID, "main.py")
	if err != nil {
		t.Fatal(err)
	}
	if f.LanguageType != "python" {
		t.Errorf("LanguageType after upload = %q, want python", f.LanguageType)
	}
}

func TestSnapshotUploadEnforcesSizeBound(t *testing.T) {
	store := newMockStore()
	svc := NewSnapshotService(store, memberAll{}, 8, testLogger())
	ctx := context.Background()

	p, _ := store.CreateProject(ctx, "owner", project.CreateRequest{Name: "tiny"})
	sn, err := svc.Create(ctx, "owner", snapshot.CreateRequest{ProjectID: p.ID, Name: "s"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Upload(ctx, "owner", sn.ID, "big.py", "way more than eight bytes", "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSnapshotMembershipEnforced(t *testing.T) {
	store := newMockStore()
	svc := NewSnapshotService(store, memberSet{}, 1<<20, testLogger())
	ctx := context.Background()

	p, _ := store.CreateProject(ctx, "owner", project.CreateRequest{Name: "locked"})
	_, err := svc.Create(ctx, "stranger", snapshot.CreateRequest{ProjectID: p.ID, Name: "nope"})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}
