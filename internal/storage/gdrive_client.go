package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/speech-recognition/internal/types"
)

const folderMimeType = "application/vnd.google-apps.folder"

// ErrNoToken is returned when the Drive token file is missing. The server
// never runs the interactive consent flow; the token must be provisioned
// beforehand.
var ErrNoToken = errors.New("google drive token file not found")

// DriveClient archives transcripts to Google Drive
type DriveClient struct {
	service    *drive.Service
	folderName string
	folderID   string
	now        func() time.Time
}

// NewDriveClient creates a Drive archiver from an OAuth client credentials
// file and a previously saved token.
func NewDriveClient(ctx context.Context, credentialsFile, tokenFile, folderName string) (*DriveClient, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, err
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(context.Background(), tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	return newDriveClient(ctx, srv, folderName)
}

func newDriveClient(ctx context.Context, srv *drive.Service, folderName string) (*DriveClient, error) {
	dc := &DriveClient{
		service:    srv,
		folderName: folderName,
		now:        time.Now,
	}
	id, err := dc.findOrCreateFolder(ctx, folderName, "")
	if err != nil {
		return nil, fmt.Errorf("unable to prepare folder %q: %w", folderName, err)
	}
	dc.folderID = id
	return dc, nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoToken, file)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", file, err)
	}
	return tok, nil
}

func (dc *DriveClient) Name() string { return "gdrive" }

// Archive uploads the transcript and its metadata into Transcripts/YYYY/MM/DD
// and returns a link to the transcript.
func (dc *DriveClient) Archive(ctx context.Context, o *types.Outcome) (string, error) {
	now := dc.now()
	folderID, err := dc.ensureDateFolder(ctx, now)
	if err != nil {
		return "", err
	}

	base := baseName(now, o)

	txtFile := &drive.File{
		Name:     base + ".txt",
		Parents:  []string{folderID},
		MimeType: "text/plain",
	}
	created, err := dc.service.Files.Create(txtFile).
		Media(strings.NewReader(o.Text)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload transcript: %w", err)
	}

	metaJSON, err := json.MarshalIndent(metadata(o), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	metaFile := &drive.File{
		Name:     base + "_meta.json",
		Parents:  []string{folderID},
		MimeType: "application/json",
	}
	if _, err := dc.service.Files.Create(metaFile).
		Media(strings.NewReader(string(metaJSON))).
		Context(ctx).
		Do(); err != nil {
		return "", fmt.Errorf("failed to upload metadata: %w", err)
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}

// ensureDateFolder creates nested year/month/day folders
func (dc *DriveClient) ensureDateFolder(ctx context.Context, t time.Time) (string, error) {
	parent := dc.folderID
	for _, name := range datePath(t) {
		id, err := dc.findOrCreateFolder(ctx, name, parent)
		if err != nil {
			return "", fmt.Errorf("unable to prepare folder %s: %w", name, err)
		}
		parent = id
	}
	return parent, nil
}

// findOrCreateFolder finds or creates a folder. An empty parentID searches
// the whole drive.
func (dc *DriveClient) findOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeQuery(name), folderMimeType)
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", parentID)
	}

	r, err := dc.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
	}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}

	file, err := dc.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return file.Id, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
