package account

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// ErrAccountNotFound is returned when an explicitly requested account id is unknown.
var ErrAccountNotFound = errors.New("account not found")

// SMTP holds the delivery credentials for one sender account.
type SMTP struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

// Account is a credentialed sender identity. Accounts are loaded once at
// startup and never mutated afterwards.
type Account struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"displayName"`
	Address     string `yaml:"address"`
	ProviderID  string `yaml:"providerId"`
	// DailyLimit caps automatic sends per calendar day. Nil means unlimited.
	DailyLimit *int `yaml:"dailyLimit"`
	SMTP       SMTP `yaml:"smtp"`
}

// Registry holds the immutable sender account pool.
type Registry struct {
	accounts []Account
	index    map[string]int
}

// LoadRegistry reads the account pool from a YAML file. The file must contain
// a list of account definitions; a malformed file or an entry missing its
// required fields is an unrecoverable startup error.
func LoadRegistry(path string) (*Registry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trying to open accounts file %s: %v", path, err)
	}

	var accounts []Account
	if err := yaml.Unmarshal(content, &accounts); err != nil {
		return nil, fmt.Errorf("accounts file %s is not a list of accounts: %v", path, err)
	}

	return NewRegistry(accounts)
}

// NewRegistry validates the given account definitions and builds a registry.
func NewRegistry(accounts []Account) (*Registry, error) {
	index := make(map[string]int, len(accounts))
	for i, a := range accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("account at position %d is missing an id", i)
		}
		if a.Address == "" {
			return nil, fmt.Errorf("account %q is missing a sender address", a.ID)
		}
		if a.SMTP.Host == "" {
			return nil, fmt.Errorf("account %q is missing an SMTP host", a.ID)
		}
		if a.DailyLimit != nil && *a.DailyLimit <= 0 {
			return nil, fmt.Errorf("account %q has a non-positive daily limit", a.ID)
		}
		if _, dup := index[a.ID]; dup {
			return nil, fmt.Errorf("duplicate account id %q", a.ID)
		}
		index[a.ID] = i
	}

	return &Registry{accounts: accounts, index: index}, nil
}

// List returns the accounts in their configured order.
func (r *Registry) List() []Account {
	return r.accounts
}

// Len returns the number of registered accounts.
func (r *Registry) Len() int {
	return len(r.accounts)
}

// Find returns the account with the given id, or ErrAccountNotFound.
func (r *Registry) Find(id string) (Account, error) {
	i, ok := r.index[id]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return r.accounts[i], nil
}
