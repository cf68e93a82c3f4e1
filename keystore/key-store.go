// Package keystore manages a collection of identity.Identity keypairs,
// persisted under caller-chosen IDs (typically a Log's ID) rather than by
// content hash, so a process can hold one signing key per log it owns.
package keystore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"oplogdb/go-oplog/identity"
)

// KV is the narrow persistence seam KeyStore needs: lookup by caller-chosen
// key, not content hash. store.Store (content-addressed) intentionally does
// not satisfy this; MemoryKV below is the default, process-local backend.
type KV interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	Clear() error
}

// MemoryKV is an in-memory KV, the default backend for KeyStore.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV constructs an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte{}, value...)
	return nil
}

func (m *MemoryKV) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("keystore: key not found")
	}
	return v, nil
}

func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

// KeyStore owns a set of identity.Identity keypairs addressed by an
// arbitrary caller ID.
type KeyStore struct {
	kv KV
	mu sync.Mutex
}

// privateKeyData is the serialized form of an ECDSA P256 private key.
type privateKeyData struct {
	X string `json:"x"`
	Y string `json:"y"`
	D string `json:"d"`
}

// NewKeyStore builds a KeyStore over kv. Passing nil uses a fresh MemoryKV.
func NewKeyStore(kv KV) *KeyStore {
	if kv == nil {
		kv = NewMemoryKV()
	}
	return &KeyStore{kv: kv}
}

// CreateKey generates a fresh identity and stores it under id.
func (ks *KeyStore) CreateKey(id string) (*identity.Identity, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.hasKey(id) {
		return nil, fmt.Errorf("keystore: key already exists for %q", id)
	}

	idn, err := identity.New()
	if err != nil {
		return nil, err
	}
	if err := ks.put(id, idn); err != nil {
		return nil, err
	}
	return idn, nil
}

// HasKey reports whether id already has a stored key.
func (ks *KeyStore) HasKey(id string) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.hasKey(id)
}

func (ks *KeyStore) hasKey(id string) bool {
	_, err := ks.kv.Get(keyOf(id))
	return err == nil
}

// AddKey stores an already-created identity under id.
func (ks *KeyStore) AddKey(id string, idn *identity.Identity) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.hasKey(id) {
		return fmt.Errorf("keystore: key already exists for %q", id)
	}
	return ks.put(id, idn)
}

func (ks *KeyStore) put(id string, idn *identity.Identity) error {
	data, err := serializePrivateKey(idn.PrivateKey())
	if err != nil {
		return err
	}
	return ks.kv.Put(keyOf(id), data)
}

// GetKey retrieves the identity stored under id.
func (ks *KeyStore) GetKey(id string) (*identity.Identity, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	data, err := ks.kv.Get(keyOf(id))
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	key, err := deserializePrivateKey(data)
	if err != nil {
		return nil, err
	}
	return identity.FromPrivateKey(key), nil
}

// Clear removes every key from the store.
func (ks *KeyStore) Clear() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.kv.Clear()
}

func keyOf(id string) string {
	return "private_" + id
}

func serializePrivateKey(key *ecdsa.PrivateKey) ([]byte, error) {
	data := privateKeyData{
		X: key.X.Text(16),
		Y: key.Y.Text(16),
		D: key.D.Text(16),
	}
	return json.Marshal(data)
}

func deserializePrivateKey(data []byte) (*ecdsa.PrivateKey, error) {
	var keyData privateKeyData
	if err := json.Unmarshal(data, &keyData); err != nil {
		return nil, fmt.Errorf("keystore: decode key: %w", err)
	}

	x, ok := new(big.Int).SetString(keyData.X, 16)
	if !ok {
		return nil, errors.New("keystore: bad x coordinate")
	}
	y, ok := new(big.Int).SetString(keyData.Y, 16)
	if !ok {
		return nil, errors.New("keystore: bad y coordinate")
	}
	d, ok := new(big.Int).SetString(keyData.D, 16)
	if !ok {
		return nil, errors.New("keystore: bad private scalar")
	}

	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     x,
			Y:     y,
		},
		D: d,
	}, nil
}
