package store

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"subadmin/internal/types"
)

//go:embed seed.yaml
var seedYAML []byte

// Dataset is the full set of console collections.
type Dataset struct {
	Users         []*types.User                `yaml:"users"`
	Accounts      []*types.Account             `yaml:"accounts"`
	Subscriptions []*types.Subscription        `yaml:"subscriptions"`
	Requests      []*types.SubscriptionRequest `yaml:"requests"`
	Invoices      []*types.Invoice             `yaml:"invoices"`
	Audit         []*types.AuditLogEntry       `yaml:"audit"`
}

// LoadSeed decodes the embedded demo dataset.
func LoadSeed() (Dataset, error) {
	return ParseDataset(seedYAML)
}

// ParseDataset decodes a YAML dataset in the seed format.
func ParseDataset(raw []byte) (Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return Dataset{}, fmt.Errorf("decoding dataset: %w", err)
	}
	for _, a := range ds.Accounts {
		if a.SubscriptionStatus == "" {
			a.SubscriptionStatus = a.Status.Label()
		}
	}
	return ds, nil
}

func (ds Dataset) clone() Dataset {
	return Dataset{
		Users:         cloneAll(ds.Users, cloneUser),
		Accounts:      cloneAll(ds.Accounts, cloneAccount),
		Subscriptions: cloneAll(ds.Subscriptions, cloneSubscription),
		Requests:      cloneAll(ds.Requests, cloneRequest),
		Invoices:      cloneAll(ds.Invoices, cloneInvoice),
		Audit:         cloneAll(ds.Audit, cloneAudit),
	}
}
