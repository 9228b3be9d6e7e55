package media

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"mediastore/internal/blobstore"
	"mediastore/internal/faultfs"
	"mediastore/internal/metrics"
	"mediastore/internal/models"
	"mediastore/internal/store"
)

var errInjected = errors.New("injected store failure")

// faultStore fails the nth mutating call on any transaction it opens.
type faultStore struct {
	store.MetaStore

	mu          sync.Mutex
	writes      int
	failWriteAt int
	failCommit  bool
}

func (f *faultStore) Begin(ctx context.Context) (store.MetaTx, error) {
	tx, err := f.MetaStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultTx{MetaTx: tx, f: f}, nil
}

func (f *faultStore) tick() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.failWriteAt > 0 && f.writes == f.failWriteAt {
		return errInjected
	}
	return nil
}

type faultTx struct {
	store.MetaTx
	f *faultStore
}

func (t *faultTx) InsertBlob(ctx context.Context, b *models.Blob) error {
	if err := t.f.tick(); err != nil {
		return err
	}
	return t.MetaTx.InsertBlob(ctx, b)
}

func (t *faultTx) UpdateBlobContent(ctx context.Context, b *models.Blob) error {
	if err := t.f.tick(); err != nil {
		return err
	}
	return t.MetaTx.UpdateBlobContent(ctx, b)
}

func (t *faultTx) Commit() error {
	if t.f.failCommit {
		_ = t.MetaTx.Rollback()
		return errInjected
	}
	return t.MetaTx.Commit()
}

type fixture struct {
	svc     *Service
	store   *store.Store
	faults  *faultStore
	roots   map[models.MediaKind]string
	trees   map[models.MediaKind]*blobstore.TreeStore
	fs      map[models.MediaKind]*faultfs.FS
	metrics *metrics.Metrics
}

type fixtureOptions struct {
	maxEntries int
	depth      int
	// rootLeaf stores files directly in each tree root.
	rootLeaf bool
	now      func() time.Time
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	if opts.maxEntries == 0 {
		opts.maxEntries = 10
	}
	if opts.depth == 0 && !opts.rootLeaf {
		opts.depth = 2
	}
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m := metrics.New(prometheus.NewRegistry())
	fx := &fixture{
		store:   st,
		faults:  &faultStore{MetaStore: st},
		roots:   map[models.MediaKind]string{},
		trees:   map[models.MediaKind]*blobstore.TreeStore{},
		fs:      map[models.MediaKind]*faultfs.FS{},
		metrics: m,
	}
	trees := map[models.MediaKind]blobstore.BlobStore{}
	for _, kind := range []models.MediaKind{models.KindDocument, models.KindImage} {
		root := t.TempDir()
		ffs := faultfs.New(osfs.New(root))
		tree, err := blobstore.NewTreeStore(ffs, blobstore.TreeOptions{
			Kind:       string(kind),
			MaxEntries: opts.maxEntries,
			Depth:      opts.depth,
			Metrics:    m,
		})
		if err != nil {
			t.Fatalf("new tree: %v", err)
		}
		fx.roots[kind] = root
		fx.trees[kind] = tree
		fx.fs[kind] = ffs
		trees[kind] = tree
	}
	svc, err := NewService(fx.faults, trees, Options{Metrics: m, Now: opts.now})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	fx.svc = svc
	return fx
}

// countFiles counts payload files under a tree root, ignoring tmp/.
func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == "tmp" {
			return filepath.SkipDir
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return n
}

func countRows(t *testing.T, st *store.Store, table string) int {
	t.Helper()
	var n int
	if err := st.DB().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func photoPrompt(promptID, blobID, content string) PromptUpload {
	return PromptUpload{
		PromptResponse: models.PromptResponse{PromptID: promptID, PromptType: "photo"},
		Media: &MediaUpload{
			ID:        blobID,
			Kind:      models.KindImage,
			Extension: "jpg",
			Content:   strings.NewReader(content),
			Variants:  []blobstore.Variant{{Suffix: models.VariantScaled, Content: strings.NewReader(content + "-small")}},
		},
	}
}

func survey(id string, prompts ...PromptUpload) SurveyUpload {
	return SurveyUpload{
		Response: models.SurveyResponse{
			ID:          id,
			Username:    "alice",
			CampaignURN: "urn:campaign:test",
			SurveyID:    "daily",
			EpochMillis: 1700000000000,
		},
		Prompts: prompts,
	}
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}
