package keys

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Key directory layout: one file per key version, named
// "<kid>.<version>.pem" for asymmetric private keys (PKCS#8 PEM) and
// "<kid>.<version>.key" for symmetric keys (standard base64).
const (
	extPEM    = ".pem"
	extSecret = ".key"
)

// LoadDir reads every key file in dir into a new StaticProvider. Other files
// are ignored.
func LoadDir(dir string) (*StaticProvider, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading key directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	p := NewStaticProvider()
	for _, name := range names {
		ext := filepath.Ext(name)
		if ext != extPEM && ext != extSecret {
			continue
		}
		kid, version, ok := splitKeyFile(strings.TrimSuffix(name, ext))
		if !ok {
			return nil, fmt.Errorf("key file %q: want <kid>.<version>%s", name, ext)
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading key file %q: %w", name, err)
		}
		ref := KeyRef{Kid: kid, Version: version}
		if ext == extSecret {
			secret, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
			if err != nil {
				return nil, fmt.Errorf("decoding key file %q: %w", name, err)
			}
			ref.Type, ref.Material = TypeSymmetric, secret
		} else {
			signer, err := ParsePrivateKey(data)
			if err != nil {
				return nil, fmt.Errorf("parsing key file %q: %w", name, err)
			}
			if ref, err = fromSigner(typeOrEmpty(signer), signer); err != nil {
				return nil, fmt.Errorf("encoding key file %q: %w", name, err)
			}
			ref.Kid, ref.Version = kid, version
		}
		if _, err := p.Add(ref); err != nil {
			return nil, fmt.Errorf("adding key file %q: %w", name, err)
		}
	}
	return p, nil
}

// WriteKey stores ref in dir using the LoadDir layout and returns the path.
// Existing files are never overwritten.
func WriteKey(dir string, ref KeyRef) (string, error) {
	if ref.Kid == "" || ref.Version <= 0 {
		return "", fmt.Errorf("key %q needs a kid and a positive version", ref.ID())
	}
	if len(ref.Material) == 0 {
		return "", ErrSecretNotExportable
	}
	data, ext := ref.Material, extPEM
	if ref.Type == TypeSymmetric {
		data, ext = []byte(base64.StdEncoding.EncodeToString(ref.Material)+"\n"), extSecret
	} else if !isPEM(data) {
		signer, err := ParsePrivateKey(data)
		if err != nil {
			return "", err
		}
		if data, _, err = EncodePEM(signer); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, ref.ID()+ext)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

// NextVersion returns the version a new key named kid would get in p.
func (p *StaticProvider) NextVersion(kid string) int {
	versions := p.Versions(kid)
	if len(versions) == 0 {
		return 1
	}
	return versions[len(versions)-1] + 1
}

func splitKeyFile(base string) (string, int, bool) {
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return "", 0, false
	}
	v, err := strconv.Atoi(base[i+1:])
	if err != nil || v <= 0 {
		return "", 0, false
	}
	return base[:i], v, true
}

func typeOrEmpty(key any) Type {
	t, _ := TypeOf(key)
	return t
}
