package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/smartbots/docdispatch/internal/google"
)

const (
	// FolderMimeType is the MIME type for Google Drive folders
	FolderMimeType = "application/vnd.google-apps.folder"

	nativeMimePrefix = "application/vnd.google-apps."

	serviceName = "drive"

	fileFields = "id, name, mimeType, size, modifiedTime, parents"
)

// ErrFolderNotFound is returned when a path segment does not resolve to a folder.
var ErrFolderNotFound = errors.New("drive folder not found")

// Client wraps the Google Drive API service
type Client struct {
	service  *drive.Service
	recorder google.APIRecorder
}

// NewClient creates a Drive client on top of an authenticated HTTP client.
// Extra options are passed to the service constructor.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	driveService, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	return &Client{
		service:  driveService,
		recorder: google.NopRecorder{},
	}, nil
}

// WithRecorder sets the recorder for API operations.
func (c *Client) WithRecorder(r google.APIRecorder) *Client {
	c.recorder = r
	return c
}

// ShareURL returns the public view link of a file.
func ShareURL(fileID string) string {
	return "https://drive.google.com/file/d/" + fileID + "/view?usp=sharing"
}

// ListFiles lists one page of files. Trashed files are never returned.
func (c *Client) ListFiles(ctx context.Context, options *ListOptions) ([]*FileInfo, string, error) {
	q := "trashed = false"
	call := c.service.Files.List().
		Context(ctx).
		Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")"))

	if options != nil {
		if options.Query != "" {
			q = options.Query + " and " + q
		}
		if options.PageSize > 0 {
			call = call.PageSize(int64(options.PageSize))
		}
		if options.PageToken != "" {
			call = call.PageToken(options.PageToken)
		}
	}

	start := time.Now()
	fileList, err := call.Q(q).Do()
	google.Observe(ctx, c.recorder, serviceName, "list", start, err)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list files: %w", err)
	}

	files := make([]*FileInfo, len(fileList.Files))
	for i, f := range fileList.Files {
		files[i] = convertToFileInfo(f)
	}

	return files, fileList.NextPageToken, nil
}

// ListAll follows page tokens until every match of query is returned.
func (c *Client) ListAll(ctx context.Context, query string) ([]*FileInfo, error) {
	var all []*FileInfo
	opts := &ListOptions{Query: query, PageSize: 1000}
	for {
		files, next, err := c.ListFiles(ctx, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, files...)
		if next == "" {
			return all, nil
		}
		opts.PageToken = next
	}
}

// FindFolderByPath resolves a slash separated path below parentID ("root"
// when empty) to a folder ID. When the first segment is not under My Drive
// root, folders shared with the user are searched as well.
func (c *Client) FindFolderByPath(ctx context.Context, path, parentID string) (string, error) {
	if parentID == "" {
		parentID = "root"
	}
	current := parentID

	var parts []string
	for _, p := range strings.Split(strings.Trim(path, "/"), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}

	for i, name := range parts {
		base := fmt.Sprintf("name = '%s' and mimeType = '%s'", escapeQuery(name), FolderMimeType)
		files, _, err := c.ListFiles(ctx, &ListOptions{
			Query:    fmt.Sprintf("%s and '%s' in parents", base, escapeQuery(current)),
			PageSize: 1,
		})
		if err != nil {
			return "", err
		}
		if len(files) == 0 && i == 0 && parentID == "root" {
			files, _, err = c.ListFiles(ctx, &ListOptions{Query: base, PageSize: 1})
			if err != nil {
				return "", err
			}
		}
		if len(files) == 0 {
			return "", fmt.Errorf("%w: %q under %s", ErrFolderNotFound, name, current)
		}
		current = files[0].ID
	}

	return current, nil
}

// ListSubfolders returns the folders directly inside folderID.
func (c *Client) ListSubfolders(ctx context.Context, folderID string) ([]*FileInfo, error) {
	return c.ListAll(ctx, fmt.Sprintf("'%s' in parents and mimeType = '%s'", escapeQuery(folderID), FolderMimeType))
}

// DownloadFile downloads the content of a file
func (c *Client) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}

	start := time.Now()
	resp, err := c.service.Files.Get(fileID).
		Context(ctx).
		Download()
	google.Observe(ctx, c.recorder, serviceName, "download", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}

	return resp.Body, nil
}

// DownloadFolder copies the tree under folderID into dest, creating it.
// Native Google documents are skipped.
func (c *Client) DownloadFolder(ctx context.Context, folderID, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	entries, err := c.ListAll(ctx, fmt.Sprintf("'%s' in parents", escapeQuery(folderID)))
	if err != nil {
		return err
	}

	for _, e := range entries {
		target := filepath.Join(dest, filepath.Base(e.Name))
		switch {
		case e.IsFolder():
			if err := c.DownloadFolder(ctx, e.ID, target); err != nil {
				return err
			}
		case e.IsNative():
			continue
		default:
			if err := c.downloadTo(ctx, e.ID, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) downloadTo(ctx context.Context, fileID, target string) error {
	body, err := c.DownloadFile(ctx, fileID)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return f.Close()
}

// GetFile retrieves metadata for a specific file
func (c *Client) GetFile(ctx context.Context, fileID string) (*FileInfo, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}

	start := time.Now()
	file, err := c.service.Files.Get(fileID).
		Context(ctx).
		Fields(fileFields).
		Do()
	google.Observe(ctx, c.recorder, serviceName, "get", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", fileID, err)
	}

	return convertToFileInfo(file), nil
}

// MoveToFolder makes newParentID the only parent of fileID.
func (c *Client) MoveToFolder(ctx context.Context, fileID, newParentID string) error {
	current, err := c.GetFile(ctx, fileID)
	if err != nil {
		return err
	}

	call := c.service.Files.Update(fileID, &drive.File{}).
		Context(ctx).
		Fields(fileFields).
		AddParents(newParentID)
	if len(current.Parents) > 0 {
		call = call.RemoveParents(strings.Join(current.Parents, ","))
	}

	start := time.Now()
	_, err = call.Do()
	google.Observe(ctx, c.recorder, serviceName, "move", start, err)
	if err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", fileID, newParentID, err)
	}
	return nil
}

// UploadFile stores content as a new file called name inside parentID, or in
// My Drive root when parentID is empty.
func (c *Client) UploadFile(ctx context.Context, name string, content io.Reader, parentID string) (*FileInfo, error) {
	if name == "" || content == nil {
		return nil, fmt.Errorf("file name and content are required")
	}

	file := &drive.File{Name: name}
	if parentID != "" {
		file.Parents = []string{parentID}
	}

	start := time.Now()
	created, err := c.service.Files.Create(file).
		Context(ctx).
		Media(content).
		Fields(fileFields).
		Do()
	google.Observe(ctx, c.recorder, serviceName, "upload", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return convertToFileInfo(created), nil
}

// ShareFile grants role to grantee ("user", "group", "domain" or "anyone") on
// fileID and returns the permission id.
func (c *Client) ShareFile(ctx context.Context, fileID, grantee, role string) (string, error) {
	start := time.Now()
	p, err := c.service.Permissions.Create(fileID, &drive.Permission{Type: grantee, Role: role}).
		Context(ctx).
		Fields("id").
		Do()
	google.Observe(ctx, c.recorder, serviceName, "share", start, err)
	if err != nil {
		return "", fmt.Errorf("failed to share %s: %w", fileID, err)
	}
	return p.Id, nil
}

// ShareLink uploads the local file at path into folderID (My Drive root when
// empty), grants anyone-with-the-link read access and returns the view link.
func (c *Client) ShareLink(ctx context.Context, path, folderID string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	uploaded, err := c.UploadFile(ctx, filepath.Base(path), f, folderID)
	if err != nil {
		return "", err
	}
	if _, err := c.ShareFile(ctx, uploaded.ID, "anyone", "reader"); err != nil {
		return "", err
	}
	return ShareURL(uploaded.ID), nil
}

func escapeQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

func convertToFileInfo(f *drive.File) *FileInfo {
	info := &FileInfo{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Size:     f.Size,
		Parents:  f.Parents,
	}
	// An unparseable timestamp leaves ModifiedTime zero.
	info.ModifiedTime, _ = time.Parse(time.RFC3339, f.ModifiedTime)
	return info
}
