// Package index performs the recursive crawl of a bundle root, classifies
// files by extension, computes each file's content hash, and detects the
// bundle's declared platform from meta.json.
//
// Grounded on the corpus's directory-walking idiom: viant/afs's
// Service.Walk visitor (see viant/linager's analyzer package) drives the
// recursive crawl, and sabhiram/go-gitignore (as used by mycelium's
// indexer/crawler.go) lets a bundle opt individual paths out via a root
// .gitignore without the core needing its own ignore-file parser. The
// content-hash pass (the classification step expensive enough to be worth
// parallelizing) runs through a bounded golang.org/x/sync/errgroup, the
// same concurrency idiom the corpus uses for its GitHub fetch workers
// (internal/github/client.go).
package index

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/minio/highwayhash"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"golang.org/x/sync/errgroup"

	"github.com/arvidnilsson/depscan/internal/canon"
	"github.com/arvidnilsson/depscan/internal/models"
)

var hashKey = []byte("DepScanBundleHashKey0123456789AB")

// scriptExtensions is the Indexer's allow-list of suffixes, per spec §4.2.
var scriptExtensions = map[string]bool{
	".sh": true, ".bash": true, ".ksh": true,
	".bat": true, ".cmd": true,
	".ps1": true,
	".pl":  true,
	".py":  true,
}

// Meta is the optional bundle-root meta.json document.
type Meta struct {
	Platform string `json:"platform"`
}

// Result is the Indexer's output: all indexed script files plus whether
// the bundle declares itself Windows.
type Result struct {
	Files      []models.ScriptFile
	Windowsish bool
}

// Indexer recursively crawls a bundle root.
type Indexer struct {
	fs          afs.Service
	canon       *canon.Canonicalizer
	withContent bool
}

// New returns an Indexer. withContentHash controls whether each file's
// HighwayHash-64 is computed (disabled by default; it costs a full read
// of every file, and no pipeline stage reads the hash back).
func New(windowsish bool, withContentHash bool) *Indexer {
	return &Indexer{
		fs:          afs.New(),
		canon:       canon.New(windowsish),
		withContent: withContentHash,
	}
}

// DetectPlatform reads <root>/meta.json and reports whether the bundle
// declares platform=windows. A missing or unreadable meta.json defaults
// to non-Windows, per spec §4.2.
func DetectPlatform(root string) bool {
	data, err := os.ReadFile(filepath.Join(root, "meta.json"))
	if err != nil {
		return false
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return false
	}
	return m.Platform == "windows"
}

// Index crawls root and returns every script file whose extension is in
// the allow-list, skipping paths excluded by a root-level .gitignore if
// one is present.
func (ix *Indexer) Index(ctx context.Context, root string) (*Result, error) {
	var matcher *ignore.GitIgnore
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		matcher = gi
	}

	var files []models.ScriptFile
	var visitor storage.OnVisit = func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return true, nil
		}
		rel := filepath.Join(parent, info.Name())
		if matcher != nil && matcher.MatchesPath(rel) {
			return true, nil
		}
		ext := filepath.Ext(info.Name())
		if !scriptExtensions[ext] {
			return true, nil
		}
		files = append(files, models.ScriptFile{
			Path:     ix.canon.Canonical(rel),
			RawPath:  rel,
			Language: models.LanguageForExt(ext),
			Size:     info.Size(),
		})
		return true, nil
	}

	if err := ix.fs.Walk(ctx, root, visitor); err != nil {
		return nil, err
	}

	if ix.withContent {
		if err := ix.hashAll(ctx, root, files); err != nil {
			return nil, err
		}
	}

	return &Result{Files: files, Windowsish: DetectPlatform(root)}, nil
}

// hashAll fills in ContentHash for every file, capped at GOMAXPROCS
// concurrent reads through an errgroup — the one part of classification
// expensive enough (a full file read per entry) to be worth parallelizing.
// It reads by each file's RawPath (the filesystem's actual casing), never
// by the canonicalized Path, since a windowsish bundle's canonical form
// may be lower-cased while the underlying filesystem stays case-sensitive.
func (ix *Indexer) hashAll(ctx context.Context, root string, files []models.ScriptFile) error {
	workers := runtime.GOMAXPROCS(0)
	if workers > len(files) {
		workers = len(files)
	}
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range files {
		i := i
		g.Go(func() error {
			h, err := hashFile(filepath.Join(root, files[i].RawPath))
			if err != nil {
				return nil // a single unreadable file shouldn't fail the whole index
			}
			files[i].ContentHash = h
			return ctx.Err()
		})
	}
	return g.Wait()
}

// AllowList reduces a Result to the canonical-path set, case-aware per
// the canonicalizer's policy (paths are already case-folded if
// windowsish, so membership here is a plain map lookup).
func (r *Result) AllowList() map[string]bool {
	m := make(map[string]bool, len(r.Files))
	for _, f := range r.Files {
		m[f.Path] = true
	}
	return m
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := highwayhash.New64(hashKey)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	var sum [8]byte
	copy(sum[:], h.Sum(nil))
	return hex.EncodeToString(sum[:]), nil
}
