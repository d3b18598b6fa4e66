package repository

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
)

const (
	permCredentials = 0600
)

type TOMLCredentialRepository struct {
	file tomlFile
	data credentialSchema
	mu   sync.Mutex
}

func NewTOMLCredentialRepository(path string) *TOMLCredentialRepository {
	return &TOMLCredentialRepository{
		file: tomlFile{path: path, perm: permCredentials},
	}
}

func (r *TOMLCredentialRepository) Load(id shared.Identity) (shared.SignIn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred := shared.SignIn{}
	if err := r.refresh(); err != nil {
		return cred, err
	}
	repr, ok := r.data.Credentials[shared.IdentityKey(id)]
	if !ok {
		return cred, fmt.Errorf("failed to load credential for %s: %w", id.Hex(), shared.ErrNotExist)
	}
	return repr.toDomain(), nil
}

func (r *TOMLCredentialRepository) Save(id shared.Identity, cred shared.SignIn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return err
	}
	if cred.User != id {
		return fmt.Errorf("credential for %s cannot be saved under %s", cred.User.Hex(), id.Hex())
	}
	repr := &credential{}
	repr.fromDomain(cred)
	r.data.Credentials[shared.IdentityKey(id)] = repr
	return r.file.save(r.data)
}

func (r *TOMLCredentialRepository) Delete(id shared.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return err
	}
	key := shared.IdentityKey(id)
	if _, ok := r.data.Credentials[key]; !ok {
		return nil
	}
	delete(r.data.Credentials, key)
	return r.file.save(r.data)
}

func (r *TOMLCredentialRepository) refresh() error {
	modified, err := r.file.fileModified()
	if err != nil {
		return err
	}
	if modified || r.data.Credentials == nil {
		r.data = credentialSchema{}
		if err := r.file.load(&r.data); err != nil {
			return err
		}
	}
	if r.data.Credentials == nil {
		r.data.Credentials = make(map[string]*credential)
	}
	return nil
}

type credential struct {
	User common.Address `toml:"user"`
	Time uint32         `toml:"time"`
	R    common.Hash    `toml:"r"`
	S    common.Hash    `toml:"s"`
	V    uint8          `toml:"v"`
}

func (c *credential) toDomain() shared.SignIn {
	return shared.SignIn{
		User: c.User,
		Time: c.Time,
		RSV: shared.Signature{
			R: c.R,
			S: c.S,
			V: c.V,
		},
	}
}

func (c *credential) fromDomain(cred shared.SignIn) {
	c.User = cred.User
	c.Time = cred.Time
	c.R = cred.RSV.R
	c.S = cred.RSV.S
	c.V = cred.RSV.V
}

type credentialSchema struct {
	Credentials map[string]*credential `toml:"credentials"`
}
