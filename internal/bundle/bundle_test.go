package bundle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func TestResolvePlainDirectory(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "31.8.1")
	require.NoError(t, os.Mkdir(root, 0o755))

	b, err := Resolve(root)
	require.NoError(t, err)
	require.Equal(t, "31.8.1", b.Version)
	require.Empty(t, b.Revision)

	env := b.Env()
	require.Len(t, env, 4)
	require.Equal(t, EnvVar{Name: "BUNDLE_VERSION", Value: "31.8.1"}, env[0])
	require.Equal(t, filepath.Join(root, "XMLConfig"), env[1].Value)
	require.Equal(t, filepath.Join(root, "oracle-admin"), env[3].Value)
}

func TestResolveRejectsMissingOrFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Resolve(filepath.Join(dir, "absent"))
	require.Error(t, err)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = Resolve(file)
	require.Error(t, err)
}

func TestResolveGitCheckoutRecordsRevisionAndTag(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "bundle-2")
	require.NoError(t, os.Mkdir(root, 0o755))
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "setup.sh"), []byte("true\n"), 0o644))
	_, err = wt.Add("setup.sh")
	require.NoError(t, err)
	hash, err := wt.Commit("bundle", &git.CommitOptions{
		Author: &object.Signature{Name: "Stagehand", Email: "stagehand@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	_, err = repo.CreateTag("v2", hash, nil)
	require.NoError(t, err)

	b, err := Resolve(root)
	require.NoError(t, err)
	require.Equal(t, hash.String()[:12], b.Revision)
	require.Equal(t, "v2", b.Tag)

	env := b.Env()
	require.Equal(t, EnvVar{Name: "BUNDLE_REVISION", Value: "v2@" + hash.String()[:12]}, env[len(env)-1])
}
