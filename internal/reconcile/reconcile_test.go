package reconcile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/frontd/frontd/internal/artifact"
	"github.com/frontd/frontd/internal/discovery"
	"github.com/frontd/frontd/internal/reconcile"
	"github.com/frontd/frontd/internal/registry"
	"github.com/stretchr/testify/require"
)

func TestPrompter_Confirm(t *testing.T) {
	testCases := []struct {
		name   string
		answer string
		def    bool
		want   bool
	}{{
		name:   "empty_default_yes",
		answer: "\n",
		def:    true,
		want:   true,
	}, {
		name:   "empty_default_no",
		answer: "\n",
		def:    false,
		want:   false,
	}, {
		name:   "y",
		answer: "y\n",
		def:    false,
		want:   true,
	}, {
		name:   "yes_mixed_case",
		answer: "YeS\n",
		def:    false,
		want:   true,
	}, {
		name:   "anything_else_is_no",
		answer: "sure\n",
		def:    true,
		want:   false,
	}, {
		name:   "n",
		answer: "n\n",
		def:    true,
		want:   false,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			p := reconcile.NewPrompter(strings.NewReader(tc.answer), out)

			require.Equal(t, tc.want, p.Confirm("Proceed?", tc.def))
			require.Contains(t, out.String(), "Proceed?")
		})
	}
}

// runReconcile runs a single-kind reconciliation over a scripted operator.
func runReconcile(
	t *testing.T,
	regPath string,
	answers string,
	discovered []*artifact.Descriptor,
) (descs []*artifact.Descriptor) {
	t.Helper()

	descs, err := reconcile.Run(&reconcile.Config{
		RegistryPath: regPath,
		Prompter:     reconcile.NewPrompter(strings.NewReader(answers), &bytes.Buffer{}),
		Discover: map[artifact.Kind]reconcile.DiscoverFunc{
			artifact.KindStatic: func() (fresh []*artifact.Descriptor, err error) {
				return discovered, nil
			},
		},
		Rederive: map[artifact.Kind]reconcile.RederiveFunc{
			artifact.KindStatic: discovery.ParseStatic,
		},
	})
	require.NoError(t, err)

	return descs
}

func TestRun_firstRun(t *testing.T) {
	regPath := filepath.Join(t.TempDir(), "frontd.conf")

	discovered := []*artifact.Descriptor{{
		Kind:    artifact.KindStatic,
		Path:    "/srv/site/site.static",
		Dir:     "/srv/site",
		Domains: []string{"example.com"},
	}, {
		Kind:    artifact.KindStatic,
		Path:    "/srv/other/other.static",
		Dir:     "/srv/other",
		Domains: []string{"other.test"},
	}}

	// Accept the first addition, decline the second.
	descs := runReconcile(t, regPath, "y\nn\n", discovered)
	require.Len(t, descs, 1)
	require.Equal(t, "/srv/site/site.static", descs[0].Path)

	// The registry was written and reads back equivalently.
	persisted, err := registry.Load(regPath)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	require.Equal(t, descs[0].Domains, persisted[0].Domains)
}

func TestRun_domainChange(t *testing.T) {
	regPath := filepath.Join(t.TempDir(), "frontd.conf")

	stored := []*artifact.Descriptor{{
		Kind:    artifact.KindStatic,
		Path:    "/srv/site/site.static",
		Dir:     "/srv/site",
		Domains: []string{"old.example.com"},
	}}
	require.NoError(t, registry.Save(regPath, stored, nil))

	discovered := []*artifact.Descriptor{{
		Kind:    artifact.KindStatic,
		Path:    "/srv/site/site.static",
		Dir:     "/srv/site",
		Domains: []string{"new.example.com"},
	}}

	t.Run("accept_takes_fresh", func(t *testing.T) {
		descs := runReconcile(t, regPath, "yes\n", discovered)
		require.Len(t, descs, 1)
		require.Equal(t, []string{"new.example.com"}, descs[0].Domains)
	})

	require.NoError(t, registry.Save(regPath, stored, nil))

	t.Run("decline_keeps_stored", func(t *testing.T) {
		fresh := []*artifact.Descriptor{{
			Kind:    artifact.KindStatic,
			Path:    "/srv/site/site.static",
			Dir:     "/srv/site",
			Domains: []string{"new.example.com"},
		}}

		descs := runReconcile(t, regPath, "n\n", fresh)
		require.Len(t, descs, 1)
		require.Equal(t, []string{"old.example.com"}, descs[0].Domains)
	})
}

func TestRun_sameDomainsNoPrompt(t *testing.T) {
	regPath := filepath.Join(t.TempDir(), "frontd.conf")

	stored := []*artifact.Descriptor{{
		Kind:    artifact.KindStatic,
		Path:    "/srv/site/site.static",
		Dir:     "/srv/site",
		Domains: []string{"a.test", "b.test"},
	}}
	require.NoError(t, registry.Save(regPath, stored, nil))

	// Same set, different order: no prompt is asked, so no scripted
	// answers are needed.
	discovered := []*artifact.Descriptor{{
		Kind:    artifact.KindStatic,
		Path:    "/srv/site/site.static",
		Dir:     "/srv/site",
		Domains: []string{"b.test", "a.test"},
	}}

	descs := runReconcile(t, regPath, "", discovered)
	require.Len(t, descs, 1)
}

func TestRun_unscannedKindCarriesThrough(t *testing.T) {
	regPath := filepath.Join(t.TempDir(), "frontd.conf")

	stored := []*artifact.Descriptor{{
		Kind:    artifact.KindProxy,
		Path:    "/srv/api/api.proxy",
		Dir:     "/srv/api",
		Target:  "http://localhost:8080",
		Domains: []string{"api.test"},
	}, {
		Kind:    artifact.KindStatic,
		Path:    "/srv/site/site.static",
		Dir:     "/srv/site",
		Domains: []string{"site.test"},
	}}
	require.NoError(t, registry.Save(regPath, stored, nil))

	// Only static artifacts are scanned; the persisted proxy descriptor
	// must survive the run untouched.
	discovered := []*artifact.Descriptor{{
		Kind:    artifact.KindStatic,
		Path:    "/srv/site/site.static",
		Dir:     "/srv/site",
		Domains: []string{"site.test"},
	}}

	descs := runReconcile(t, regPath, "", discovered)
	require.Len(t, descs, 2)

	require.Equal(t, artifact.KindProxy, descs[0].Kind)
	require.Equal(t, "http://localhost:8080", descs[0].Target)
	require.Equal(t, []string{"api.test"}, descs[0].Domains)

	persisted, err := registry.Load(regPath)
	require.NoError(t, err)
	require.Len(t, persisted, 2)
}

func TestRun_removal(t *testing.T) {
	dir := t.TempDir()
	regPath := filepath.Join(dir, "frontd.conf")

	// One persisted artifact that still exists on disk, one that is gone.
	existingPath := filepath.Join(dir, "kept.static")
	require.NoError(t, os.WriteFile(existingPath, []byte("rederived.test\n"), 0o644))

	stored := []*artifact.Descriptor{{
		Kind:    artifact.KindStatic,
		Path:    existingPath,
		Dir:     dir,
		Domains: []string{"stale.test"},
	}, {
		Kind:    artifact.KindStatic,
		Path:    filepath.Join(dir, "gone.static"),
		Dir:     dir,
		Domains: []string{"gone.test"},
	}, {
		Kind:    artifact.KindStatic,
		Path:    filepath.Join(dir, "dropped.static"),
		Dir:     dir,
		Domains: []string{"dropped.test"},
	}}
	require.NoError(t, registry.Save(regPath, stored, nil))

	// Keep the first (re-derived from disk), keep the second (file gone,
	// stored domains retained), drop the third by the stated default.
	descs := runReconcile(t, regPath, "y\nyes\n\n", nil)
	require.Len(t, descs, 2)

	require.Equal(t, existingPath, descs[0].Path)
	require.Equal(t, []string{"rederived.test"}, descs[0].Domains)

	require.Equal(t, []string{"gone.test"}, descs[1].Domains)
}
