package securestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps every entry in a single encrypted file. The whole map is
// re-read and re-written on each mutation; entry counts here are tiny (a
// device keypair plus one couple key and version per couple).
type FileStore struct {
	mu         sync.Mutex
	path       string
	passphrase string
}

func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: passphrase}
}

func (s *FileStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAllLocked()
	if err != nil {
		return nil, false, err
	}
	v, ok := all[key]
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

func (s *FileStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAllLocked()
	if err != nil {
		return err
	}
	all[key] = append([]byte(nil), value...)
	return s.writeAllLocked(all)
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadAllLocked()
	if err != nil {
		return err
	}
	if _, ok := all[key]; !ok {
		return nil
	}
	delete(all, key)
	return s.writeAllLocked(all)
}

func (s *FileStore) loadAllLocked() (map[string][]byte, error) {
	result := make(map[string][]byte)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return result, nil
	}
	plain, err := Decrypt(s.passphrase, data)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(plain, &result); err != nil {
		return nil, ErrInvalid
	}
	return result, nil
}

func (s *FileStore) writeAllLocked(all map[string][]byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	payload, err := json.Marshal(all)
	if err != nil {
		return err
	}
	encrypted, err := Encrypt(s.passphrase, payload)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, encrypted, 0o600)
}
