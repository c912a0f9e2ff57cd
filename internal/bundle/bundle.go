// Package bundle resolves the versioned resource bundle a compute engine
// stage reads its conditions and geometry data from.
package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Bundle is a resolved resource bundle directory. The directory name is the
// bundle version.
type Bundle struct {
	Root     string
	Version  string
	Revision string
	Tag      string
}

// EnvVar is one environment export of the bundle setup block.
type EnvVar struct {
	Name  string
	Value string
}

// Resolve checks that root is a bundle directory and records its version.
// When root is a git checkout its HEAD revision is recorded too.
func Resolve(root string) (*Bundle, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve bundle path %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("bundle %s is not a directory", root)
	}

	b := &Bundle{Root: abs, Version: filepath.Base(abs)}
	revision, tag, err := headRevision(abs)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", root, err)
	}
	b.Revision = revision
	b.Tag = tag
	return b, nil
}

func headRevision(root string) (string, string, error) {
	repo, err := git.PlainOpen(root)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("open git checkout: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		// An empty repository has no HEAD yet.
		return "", "", nil
	}
	hash := head.Hash()
	revision := hash.String()[:12]

	tags, err := repo.Tags()
	if err != nil {
		return revision, "", nil
	}
	defer tags.Close()

	var tag string
	_ = tags.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if obj, err := repo.TagObject(target); err == nil {
			target = obj.Target
		}
		if target == hash {
			tag = ref.Name().Short()
			return errStop
		}
		return nil
	})
	return revision, tag, nil
}

var errStop = errors.New("stop")

// Env returns the exports of the setup block, in the order they are written.
func (b *Bundle) Env() []EnvVar {
	xml := filepath.Join(b.Root, "XMLConfig")
	env := []EnvVar{
		{Name: "BUNDLE_VERSION", Value: b.Version},
		{Name: "BUNDLE_AUTH_PATH", Value: xml},
		{Name: "BUNDLE_LOOKUP_PATH", Value: xml},
		{Name: "BUNDLE_ADMIN", Value: filepath.Join(b.Root, "oracle-admin")},
	}
	if b.Revision != "" {
		rev := b.Revision
		if b.Tag != "" {
			rev = b.Tag + "@" + b.Revision
		}
		env = append(env, EnvVar{Name: "BUNDLE_REVISION", Value: rev})
	}
	return env
}
