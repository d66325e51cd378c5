package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	ierrors "github.com/jrsteele09/go-lstech-balance/internal/errors"
	"github.com/jrsteele09/go-lstech-balance/session"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	fileRecordVersion = 1

	saltLength  = 16
	nonceLength = 24
	keyLength   = 32

	// scrypt parameters for interactive use.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// fileRecord is the on-disk form. With a passphrase the token fields hold sealed,
// base64 encoded values.
type fileRecord struct {
	Version int                    `json:"version"`
	Sealed  bool                   `json:"sealed"`
	Salt    string                 `json:"salt,omitempty"`
	State   session.PersistedState `json:"state"`
}

// FileStore keeps one JSON file per account in a directory.
type FileStore struct {
	dir        string
	passphrase string
	mu         sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed. An empty passphrase stores tokens in clear text.
func NewFileStore(dir, passphrase string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store.NewFileStore MkdirAll %s: %w", dir, err)
	}
	return &FileStore{dir: dir, passphrase: passphrase}, nil
}

func (s *FileStore) path(account string) string {
	return filepath.Join(s.dir, url.PathEscape(account)+".json")
}

func (s *FileStore) Load(_ context.Context, account string) (session.PersistedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path(account))
	if os.IsNotExist(err) {
		return session.PersistedState{}, ierrors.ErrNotFound
	}
	if err != nil {
		return session.PersistedState{}, fmt.Errorf("store.FileStore.Load ReadFile: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return session.PersistedState{}, fmt.Errorf("store.FileStore.Load Unmarshal: %w", err)
	}
	if !rec.Sealed {
		return rec.State, nil
	}

	salt, err := base64.StdEncoding.DecodeString(rec.Salt)
	if err != nil {
		return session.PersistedState{}, ierrors.Wrapf(ierrors.ErrSealed, "salt")
	}
	key, err := deriveKey(s.passphrase, salt)
	if err != nil {
		return session.PersistedState{}, err
	}

	st := rec.State
	if st.AccessToken, err = open(key, st.AccessToken); err != nil {
		return session.PersistedState{}, err
	}
	if st.RefreshToken, err = open(key, st.RefreshToken); err != nil {
		return session.PersistedState{}, err
	}
	return st, nil
}

func (s *FileStore) Save(_ context.Context, account string, state session.PersistedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := fileRecord{Version: fileRecordVersion, State: state}
	if s.passphrase != "" {
		salt := make([]byte, saltLength)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("store.FileStore.Save salt: %w", err)
		}
		key, err := deriveKey(s.passphrase, salt)
		if err != nil {
			return err
		}
		if rec.State.AccessToken, err = seal(key, state.AccessToken); err != nil {
			return err
		}
		if rec.State.RefreshToken, err = seal(key, state.RefreshToken); err != nil {
			return err
		}
		rec.Sealed = true
		rec.Salt = base64.StdEncoding.EncodeToString(salt)
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("store.FileStore.Save Marshal: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".session-*")
	if err != nil {
		return fmt.Errorf("store.FileStore.Save CreateTemp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("store.FileStore.Save Write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store.FileStore.Save Close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("store.FileStore.Save Chmod: %w", err)
	}
	return os.Rename(tmp.Name(), s.path(account))
}

func (s *FileStore) Delete(_ context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(account))
	if os.IsNotExist(err) {
		return ierrors.ErrNotFound
	}
	return err
}

func deriveKey(passphrase string, salt []byte) (*[keyLength]byte, error) {
	k, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("store deriveKey: %w", err)
	}
	var key [keyLength]byte
	copy(key[:], k)
	return &key, nil
}

func seal(key *[keyLength]byte, plaintext string) (string, error) {
	var nonce [nonceLength]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("store seal nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return base64.StdEncoding.EncodeToString(box), nil
}

func open(key *[keyLength]byte, sealed string) (string, error) {
	box, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(box) < nonceLength {
		return "", ierrors.ErrSealed
	}
	var nonce [nonceLength]byte
	copy(nonce[:], box[:nonceLength])
	plain, ok := secretbox.Open(nil, box[nonceLength:], &nonce, key)
	if !ok {
		return "", ierrors.ErrSealed
	}
	return string(plain), nil
}
