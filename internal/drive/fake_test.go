package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type fakeFile struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType"`
	Parents  []string `json:"parents"`
	content  []byte
}

type fakePermission struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Role string `json:"role"`
}

// fakeDrive is an in-memory Drive v3 backend covering the calls the client makes.
type fakeDrive struct {
	mu          sync.Mutex
	files       map[string]*fakeFile
	permissions map[string][]fakePermission
	nextID      int
}

var (
	qName   = regexp.MustCompile(`name = '((?:[^'\\]|\\.)*)'`)
	qParent = regexp.MustCompile(`'((?:[^'\\]|\\.)*)' in parents`)
	qMime   = regexp.MustCompile(`mimeType = '([^']*)'`)
)

func newFakeDrive() *fakeDrive {
	return &fakeDrive{files: map[string]*fakeFile{}, permissions: map[string][]fakePermission{}}
}

func (f *fakeDrive) addFolder(id, name, parent string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[id] = &fakeFile{ID: id, Name: name, MimeType: FolderMimeType, Parents: []string{parent}}
}

func (f *fakeDrive) addFile(id, name, parent, mimeType, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[id] = &fakeFile{ID: id, Name: name, MimeType: mimeType, Parents: []string{parent}, content: []byte(content)}
}

func (f *fakeDrive) parentOf(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[id]; ok && len(file.Parents) > 0 {
		return file.Parents[0]
	}
	return ""
}

func unescape(v string) string {
	return strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(v)
}

func (f *fakeDrive) list(q string) []*fakeFile {
	var out []*fakeFile
	for _, file := range f.files {
		if m := qName.FindStringSubmatch(q); m != nil && file.Name != unescape(m[1]) {
			continue
		}
		if m := qMime.FindStringSubmatch(q); m != nil && file.MimeType != m[1] {
			continue
		}
		if m := qParent.FindStringSubmatch(q); m != nil && !contains(file.Parents, unescape(m[1])) {
			continue
		}
		out = append(out, file)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/upload")
	path = strings.TrimPrefix(path, "/drive/v3")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] == "files" && r.Method == http.MethodGet:
		writeJSON(w, map[string]any{"files": f.list(r.URL.Query().Get("q"))})

	case len(parts) == 1 && parts[0] == "files" && r.Method == http.MethodPost:
		f.create(w, r)

	case len(parts) == 2 && r.Method == http.MethodGet:
		file, ok := f.files[parts[1]]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("alt") == "media" {
			_, _ = w.Write(file.content)
			return
		}
		writeJSON(w, file)

	case len(parts) == 2 && r.Method == http.MethodPatch:
		file, ok := f.files[parts[1]]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
			return
		}
		var kept []string
		remove := strings.Split(r.URL.Query().Get("removeParents"), ",")
		for _, p := range file.Parents {
			if !contains(remove, p) {
				kept = append(kept, p)
			}
		}
		if add := r.URL.Query().Get("addParents"); add != "" {
			kept = append(kept, strings.Split(add, ",")...)
		}
		file.Parents = kept
		writeJSON(w, file)

	case len(parts) == 3 && parts[2] == "permissions" && r.Method == http.MethodPost:
		var p fakePermission
		_ = json.NewDecoder(r.Body).Decode(&p)
		p.ID = fmt.Sprintf("perm-%d", len(f.permissions[parts[1]])+1)
		f.permissions[parts[1]] = append(f.permissions[parts[1]], p)
		writeJSON(w, p)

	default:
		http.Error(w, "unexpected request "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
	}
}

func (f *fakeDrive) create(w http.ResponseWriter, r *http.Request) {
	f.nextID++
	file := &fakeFile{ID: fmt.Sprintf("up-%d", f.nextID)}

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err == nil && strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r.Body, params["boundary"])
		meta, err := mr.NextPart()
		if err == nil {
			_ = json.NewDecoder(meta).Decode(file)
		}
		if media, err := mr.NextPart(); err == nil {
			file.content, _ = io.ReadAll(media)
		}
	} else {
		_ = json.NewDecoder(r.Body).Decode(file)
	}
	file.ID = fmt.Sprintf("up-%d", f.nextID)
	if len(file.Parents) == 0 {
		file.Parents = []string{"root"}
	}
	f.files[file.ID] = file
	writeJSON(w, file)
}

func newFakeClient(t *testing.T, f *fakeDrive) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), srv.Client(), option.WithEndpoint(srv.URL+"/drive/v3/"))
	require.NoError(t, err)
	return c
}
