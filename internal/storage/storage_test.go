package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/speech-recognition/internal/types"
)

func sampleOutcome(id string, at time.Time) *types.Outcome {
	return &types.Outcome{
		RequestID:   id,
		Filename:    "meeting.wav",
		SourceType:  types.SourceUpload,
		Status:      types.StateDone,
		Text:        "你好，世界。",
		Segments:    2,
		Fallbacks:   1,
		Duration:    1500 * time.Millisecond,
		ProcessedAt: at,
	}
}

func TestHistoryDBSaveAndList(t *testing.T) {
	db, err := NewHistoryDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	base := time.Date(2025, 1, 23, 14, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := db.SaveOutcome(ctx, sampleOutcome(fmt.Sprintf("req-%d", i), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	failed := &types.Outcome{
		RequestID:   "req-failed",
		Filename:    "clip.mp4",
		SourceType:  types.SourceStream,
		Status:      types.StateFailed,
		FailedStage: "transcoding",
		Error:       "transcode: Audio conversion failed",
		ProcessedAt: base.Add(time.Hour),
	}
	if err := db.SaveOutcome(ctx, failed); err != nil {
		t.Fatalf("save failed outcome: %v", err)
	}

	records, err := db.ListOutcomes(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].RequestID != "req-failed" || records[1].RequestID != "req-2" {
		t.Fatalf("expected newest first, got %s, %s", records[0].RequestID, records[1].RequestID)
	}
	if records[0].Status != string(types.StateFailed) || records[0].FailedStage != "transcoding" {
		t.Fatalf("unexpected failed record %+v", records[0])
	}

	rec, err := db.GetOutcome(ctx, "req-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.TextLength != 6 || rec.Segments != 2 || rec.Fallbacks != 1 || rec.DurationMS != 1500 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected created_at %v", rec.CreatedAt)
	}
}

func TestHistoryDBDuplicateRequestID(t *testing.T) {
	db, err := NewHistoryDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	o := sampleOutcome("req-dup", time.Now())
	if err := db.SaveOutcome(ctx, o); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.SaveOutcome(ctx, o); err == nil {
		t.Fatal("expected unique constraint violation")
	}
}

func TestHistoryDBArchiveURL(t *testing.T) {
	db, err := NewHistoryDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.SaveOutcome(ctx, sampleOutcome("req-a", time.Now())); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.SetArchiveURL(ctx, "req-a", "outputs/a.txt"); err != nil {
		t.Fatalf("set archive url: %v", err)
	}
	if err := db.SetArchiveURL(ctx, "missing", "x"); err == nil {
		t.Fatal("expected error for unknown request")
	}

	rec, err := db.GetOutcome(ctx, "req-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.ArchiveURL != "outputs/a.txt" {
		t.Fatalf("unexpected archive url %q", rec.ArchiveURL)
	}
}

func TestLocalStorageArchive(t *testing.T) {
	dir := t.TempDir()
	ls := NewLocalStorage(dir)
	ls.now = func() time.Time { return time.Date(2025, 1, 23, 14, 30, 22, 0, time.Local) }

	o := sampleOutcome("0123456789abcdef", time.Now())
	o.Filename = "../../etc/team: sync?.wav"

	path, err := ls.Archive(context.Background(), o)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	wantDir := filepath.Join(dir, "2025", "01", "23")
	if filepath.Dir(path) != wantDir {
		t.Fatalf("expected file in %s, got %s", wantDir, path)
	}
	if want := "20250123_143022_01234567_team_ sync_.txt"; filepath.Base(path) != want {
		t.Fatalf("expected %q, got %q", want, filepath.Base(path))
	}

	text, err := os.ReadFile(path)
	if err != nil || string(text) != o.Text {
		t.Fatalf("unexpected transcript %q (%v)", text, err)
	}

	raw, err := os.ReadFile(strings.TrimSuffix(path, ".txt") + "_meta.json")
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta["request_id"] != o.RequestID || meta["local_path"] != path {
		t.Fatalf("unexpected metadata %v", meta)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"meeting.wav":                     "meeting",
		`C:\audio\talk.mp4`:               "talk",
		"a*b?c.wav":                       "a_b_c",
		"..":                              "upload",
		"":                                "upload",
		strings.Repeat("长", 150) + ".wav": strings.Repeat("长", 100),
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

// fakeDrive implements the slice of the Drive v3 REST API the archiver uses.
type fakeDrive struct {
	mu      sync.Mutex
	nextID  int
	folders map[string]string // parent/name -> id
	files   map[string]string // name -> content
	lists   int
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{folders: map[string]string{}, files: map[string]string{}}
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/files":
		f.lists++
		q := r.URL.Query().Get("q")
		files := []map[string]string{}
		for key, id := range f.folders {
			parent, name, _ := strings.Cut(key, "/")
			if strings.Contains(q, "name='"+name+"'") &&
				(parent == "" && !strings.Contains(q, "in parents") || strings.Contains(q, "'"+parent+"' in parents")) {
				files = append(files, map[string]string{"id": id})
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"files": files})

	case r.Method == http.MethodPost && r.URL.Path == "/files":
		var file drive.File
		json.NewDecoder(r.Body).Decode(&file)
		f.nextID++
		id := fmt.Sprintf("folder-%d", f.nextID)
		parent := ""
		if len(file.Parents) > 0 {
			parent = file.Parents[0]
		}
		f.folders[parent+"/"+file.Name] = id
		json.NewEncoder(w).Encode(map[string]string{"id": id})

	case r.Method == http.MethodPost && r.URL.Path == "/upload/drive/v3/files":
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
			http.Error(w, "expected a multipart upload", http.StatusBadRequest)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		var file drive.File
		part, _ := mr.NextPart()
		json.NewDecoder(part).Decode(&file)
		part, _ = mr.NextPart()
		body, _ := io.ReadAll(part)
		f.files[file.Name] = string(body)
		f.nextID++
		json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("file-%d", f.nextID)})

	default:
		http.NotFound(w, r)
	}
}

func newTestDriveClient(t *testing.T, fake *fakeDrive) *DriveClient {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	svc, err := drive.NewService(ctx, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("drive service: %v", err)
	}
	dc, err := newDriveClient(ctx, svc, "Transcripts")
	if err != nil {
		t.Fatalf("drive client: %v", err)
	}
	dc.now = func() time.Time { return time.Date(2025, 1, 23, 14, 30, 22, 0, time.Local) }
	return dc
}

func TestDriveClientArchive(t *testing.T) {
	fake := newFakeDrive()
	dc := newTestDriveClient(t, fake)

	o := sampleOutcome("0123456789abcdef", time.Now())
	url, err := dc.Archive(context.Background(), o)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.HasPrefix(url, "https://drive.google.com/file/d/file-") {
		t.Fatalf("unexpected url %q", url)
	}

	base := "20250123_143022_01234567_meeting"
	if fake.files[base+".txt"] != o.Text {
		t.Fatalf("transcript not uploaded, files: %v", fake.files)
	}
	if _, ok := fake.files[base+"_meta.json"]; !ok {
		t.Fatal("metadata not uploaded")
	}

	root := fake.folders["/Transcripts"]
	year := fake.folders[root+"/2025"]
	month := fake.folders[year+"/01"]
	if root == "" || year == "" || month == "" || fake.folders[month+"/23"] == "" {
		t.Fatalf("expected dated folder chain, got %v", fake.folders)
	}

	// A second archive on the same day reuses the folders.
	folders := len(fake.folders)
	if _, err := dc.Archive(context.Background(), sampleOutcome("fedcba9876543210", time.Now())); err != nil {
		t.Fatalf("second archive: %v", err)
	}
	if len(fake.folders) != folders {
		t.Fatalf("expected folders to be reused, got %v", fake.folders)
	}
}

func TestNewDriveClientRequiresToken(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	content := `{"installed":{"client_id":"id","client_secret":"secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`
	if err := os.WriteFile(creds, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewDriveClient(context.Background(), creds, filepath.Join(dir, "token.json"), "Transcripts")
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}
