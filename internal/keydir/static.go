package keydir

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/relay_layer/internal/entityid"
)

// Static is a fixed account → key table, typically loaded from YAML:
//
//	accounts:
//	  "0.0.1001": "02a1b2..."
type Static struct {
	keys map[string]string
}

type staticFile struct {
	Accounts map[string]string `yaml:"accounts"`
}

// NewStatic builds a directory from keys, normalizing account ids.
func NewStatic(keys map[string]string) (*Static, error) {
	s := &Static{keys: make(map[string]string, len(keys))}
	for account, key := range keys {
		id, err := entityid.Parse(account)
		if err != nil {
			return nil, err
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("account %s: empty key", account)
		}
		s.keys[id.String()] = key
	}
	return s, nil
}

// LoadStatic reads a YAML key file.
func LoadStatic(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key directory: %w", err)
	}
	var f staticFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse key directory %s: %w", path, err)
	}
	return NewStatic(f.Accounts)
}

func (s *Static) PublicKey(_ context.Context, accountID string) (string, error) {
	id, err := entityid.Parse(accountID)
	if err != nil {
		return "", &LookupError{Account: accountID, Err: ErrUnknownAccount}
	}
	key, ok := s.keys[id.String()]
	if !ok {
		return "", &LookupError{Account: accountID, Err: ErrUnknownAccount}
	}
	return key, nil
}

// Len returns the number of accounts.
func (s *Static) Len() int { return len(s.keys) }
