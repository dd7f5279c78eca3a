package assemble

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/spherical/verbatim/internal/cache"
	"github.com/spherical/verbatim/internal/domain"
)

func units(artifactID string, kind domain.UnitKind, n int) []domain.Unit {
	out := make([]domain.Unit, n)
	for i := range out {
		out[i] = domain.NewUnit(artifactID, kind, i+1, "image/png", nil)
	}
	return out
}

func newStore(t *testing.T) *cache.FileStore {
	t.Helper()
	store, err := cache.NewFileStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	return store
}

func TestAssemble_OrderedSectionsWithNormalizedHeaders(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	us := units("scan", domain.UnitPage, 3)

	// Populate out of order; the third page echoes its header.
	require.NoError(t, store.Put(ctx, us[2].Key(), "=== Page 3 ===\n\nthird"))
	require.NoError(t, store.Put(ctx, us[0].Key(), "first"))
	require.NoError(t, store.Put(ctx, us[1].Key(), "second\nline"))

	outDir := t.TempDir()
	a := NewAssembler(store, outDir, nil, nil)
	out, err := a.Assemble(ctx, domain.Artifact{ID: "scan", OutputName: "scan"}, us)
	require.NoError(t, err)

	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t,
		"=== Page 1 ===\nfirst\n\n=== Page 2 ===\nsecond\nline\n\n=== Page 3 ===\nthird\n\n",
		string(data))
	assert.Equal(t, filepath.Join(outDir, "scan.txt"), out.Path)
	assert.Equal(t, 3, out.Sections)
}

func TestAssemble_IncompleteArtifactWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	us := units("scan", domain.UnitPage, 5)
	for _, u := range us[:4] {
		require.NoError(t, store.Put(ctx, u.Key(), "text"))
	}

	outDir := t.TempDir()
	a := NewAssembler(store, outDir, nil, nil)
	_, err := a.Assemble(ctx, domain.Artifact{ID: "scan"}, us)

	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeIncompleteArtifact))
	assert.Contains(t, err.Error(), "005")

	_, statErr := os.Stat(filepath.Join(outDir, "scan.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestAssemble_IncompleteKeepsPreviousOutput(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	outDir := t.TempDir()
	path := filepath.Join(outDir, "scan.txt")
	require.NoError(t, os.WriteFile(path, []byte("previous run"), 0o644))

	a := NewAssembler(store, outDir, nil, nil)
	_, err := a.Assemble(ctx, domain.Artifact{ID: "scan"}, units("scan", domain.UnitPage, 1))
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous run", string(data))
}

func TestAssemble_PreambleAndTrackHeaders(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	us := units("v1_verbatim", domain.UnitTrack, 1)
	require.NoError(t, store.Put(ctx, us[0].Key(), "=== Track 1 === spoken words"))

	preamble := func(a domain.Artifact) string { return "Title: " + a.Title + "\n\n" }
	a := NewAssembler(store, t.TempDir(), preamble, nil)
	out, err := a.Assemble(ctx, domain.Artifact{ID: "v1_verbatim", OutputName: "v1__Talk_verbatim", Title: "Talk"}, us)
	require.NoError(t, err)

	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, "Title: Talk\n\n=== Track 1 ===\nspoken words\n\n", string(data))
	assert.Equal(t, "v1__Talk_verbatim.txt", filepath.Base(out.Path))
}

func TestAssemble_IsByteIdenticalAcrossRuns(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	us := units("scan", domain.UnitPage, 2)
	require.NoError(t, store.Put(ctx, us[0].Key(), "a"))
	require.NoError(t, store.Put(ctx, us[1].Key(), "b"))

	a := NewAssembler(store, t.TempDir(), nil, nil)
	first, err := a.Assemble(ctx, domain.Artifact{ID: "scan"}, us)
	require.NoError(t, err)
	before, err := os.ReadFile(first.Path)
	require.NoError(t, err)

	_, err = a.Assemble(ctx, domain.Artifact{ID: "scan"}, us)
	require.NoError(t, err)
	after, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestNormalizeSection(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "text", "text"},
		{"echoed header", "=== Page 4 ===\ntext", "text"},
		{"leading whitespace before header", "\n\n  === Page 4 ===\n\n  text  \n", "text"},
		{"other page header kept", "=== Page 5 ===\ntext", "=== Page 5 ===\ntext"},
		{"header only once", "=== Page 4 ===\n=== Page 4 ===\ntext", "=== Page 4 ===\ntext"},
		{"header in body kept", "intro\n=== Page 4 ===", "intro\n=== Page 4 ==="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSection(domain.UnitPage, 4, tt.in))
		})
	}
}

func TestSortUnits_DoesNotMutateInput(t *testing.T) {
	us := units("a", domain.UnitPage, 3)
	shuffled := []domain.Unit{us[2], us[0], us[1]}

	sorted := SortUnits(shuffled)
	assert.Equal(t, []int{1, 2, 3}, []int{sorted[0].Index, sorted[1].Index, sorted[2].Index})
	assert.Equal(t, 3, shuffled[0].Index)
}

// The output depends only on cache contents, never on the order in which
// entries were written or units were listed.
func TestAssemble_OrderIndependentProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "units")
		texts := make([]string, n)
		for i := range texts {
			body := rapid.StringMatching(`[a-zA-Zअ-ह ]{1,20}`).Draw(rt, "text")
			if strings.TrimSpace(body) == "" {
				body = "x"
			}
			if rapid.Bool().Draw(rt, "echo") {
				body = Header(domain.UnitPage, i+1) + "\n" + body
			}
			texts[i] = body
		}
		putOrder := rapid.Permutation(indices(n)).Draw(rt, "putOrder")
		listOrder := rapid.Permutation(indices(n)).Draw(rt, "listOrder")

		dir, err := os.MkdirTemp("", "assemble-prop-*")
		if err != nil {
			rt.Fatalf("temp dir: %v", err)
		}
		defer os.RemoveAll(dir)

		store, err := cache.NewFileStore(filepath.Join(dir, "cache"))
		if err != nil {
			rt.Fatalf("store: %v", err)
		}
		us := units("doc", domain.UnitPage, n)
		for _, i := range putOrder {
			if err := store.Put(context.Background(), us[i].Key(), texts[i]); err != nil {
				rt.Fatalf("put: %v", err)
			}
		}

		listed := make([]domain.Unit, n)
		for pos, i := range listOrder {
			listed[pos] = us[i]
		}

		out, err := NewAssembler(store, dir, nil, nil).Assemble(context.Background(), domain.Artifact{ID: "doc"}, listed)
		if err != nil {
			rt.Fatalf("assemble: %v", err)
		}
		data, err := os.ReadFile(out.Path)
		if err != nil {
			rt.Fatalf("read: %v", err)
		}

		var want strings.Builder
		for i := range texts {
			WriteSection(&want, domain.UnitPage, i+1, strings.TrimSpace(texts[i]))
		}
		if string(data) != want.String() {
			rt.Fatalf("output mismatch:\n got: %q\nwant: %q", data, want.String())
		}
		if got := strings.Count(string(data), "=== Page "); got != n {
			rt.Fatalf("expected %d headers, got %d", n, got)
		}
	})
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
