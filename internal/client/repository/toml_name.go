package repository

import (
	"fmt"
	"strings"
	"sync"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
)

const (
	permNames = 0644
)

type TOMLNameRepository struct {
	file tomlFile
	data nameSchema
	mu   sync.Mutex
}

func NewTOMLNameRepository(path string) *TOMLNameRepository {
	return &TOMLNameRepository{
		file: tomlFile{path: path, perm: permNames},
	}
}

func (r *TOMLNameRepository) Get(id shared.Identity) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return "", err
	}
	name, ok := r.data.Names[shared.IdentityKey(id)]
	if !ok {
		return "", fmt.Errorf("failed to get name for %s: %w", id.Hex(), shared.ErrNotExist)
	}
	return name, nil
}

// Set stores a display name. A blank name removes the override.
func (r *TOMLNameRepository) Set(id shared.Identity, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return r.Delete(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return err
	}
	r.data.Names[shared.IdentityKey(id)] = name
	return r.file.save(r.data)
}

func (r *TOMLNameRepository) Delete(id shared.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return err
	}
	key := shared.IdentityKey(id)
	if _, ok := r.data.Names[key]; !ok {
		return nil
	}
	delete(r.data.Names, key)
	return r.file.save(r.data)
}

func (r *TOMLNameRepository) refresh() error {
	modified, err := r.file.fileModified()
	if err != nil {
		return err
	}
	if modified || r.data.Names == nil {
		r.data = nameSchema{}
		if err := r.file.load(&r.data); err != nil {
			return err
		}
	}
	if r.data.Names == nil {
		r.data.Names = make(map[string]string)
	}
	return nil
}

type nameSchema struct {
	Names map[string]string `toml:"names"`
}
