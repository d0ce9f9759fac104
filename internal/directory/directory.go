// Package directory holds the recipient and distribution tables used to route
// case folders. A Directory is loaded once per run and never mutated.
package directory

import (
	"slices"
	"strings"
)

// RecipientMapping maps a recipient key to its distribution and destination emails.
type RecipientMapping struct {
	Key             string
	DistributionKey string
	Emails          []string
}

// Distribution describes the country and body text of one distribution key.
// Examples and Notes are display-only.
type Distribution struct {
	Key      string
	Country  string
	Body     string
	Examples string
	Notes    string
}

// CCPolicy is a named copy list, such as the internal CC group.
type CCPolicy struct {
	Type   string
	Name   string
	Emails []string
}

// Directory is the in-memory lookup built from the four recipient tables.
type Directory struct {
	recipients    []RecipientMapping
	distributions []Distribution
	ccPolicies    []CCPolicy
	reportEmails  []string
}

// New builds a Directory from already parsed tables. Order is preserved and
// determines which entry wins when keys repeat.
func New(recipients []RecipientMapping, distributions []Distribution, cc []CCPolicy, reportEmails []string) *Directory {
	return &Directory{
		recipients:    slices.Clone(recipients),
		distributions: slices.Clone(distributions),
		ccPolicies:    slices.Clone(cc),
		reportEmails:  slices.Clone(reportEmails),
	}
}

// Recipient returns the first mapping whose key equals key. The comparison is
// case-sensitive.
func (d *Directory) Recipient(key string) (RecipientMapping, bool) {
	for _, r := range d.recipients {
		if r.Key == key {
			return r, true
		}
	}
	return RecipientMapping{}, false
}

// Distribution returns the first distribution registered under key.
func (d *Directory) Distribution(key string) (Distribution, bool) {
	for _, dist := range d.distributions {
		if dist.Key == key {
			return dist, true
		}
	}
	return Distribution{}, false
}

// CCPolicy returns the copy list named name, ignoring surrounding whitespace.
func (d *Directory) CCPolicy(name string) (CCPolicy, bool) {
	name = strings.TrimSpace(name)
	for _, p := range d.ccPolicies {
		if strings.TrimSpace(p.Name) == name {
			return p, true
		}
	}
	return CCPolicy{}, false
}

// Recipients returns a copy of the recipient table in load order.
func (d *Directory) Recipients() []RecipientMapping {
	return slices.Clone(d.recipients)
}

// ReportEmails returns the addresses that receive the run report.
func (d *Directory) ReportEmails() []string {
	return slices.Clone(d.reportEmails)
}

// DuplicateRecipientKeys lists keys that appear more than once, in first-seen order.
func (d *Directory) DuplicateRecipientKeys() []string {
	seen := make(map[string]int, len(d.recipients))
	var dups []string
	for _, r := range d.recipients {
		seen[r.Key]++
		if seen[r.Key] == 2 {
			dups = append(dups, r.Key)
		}
	}
	return dups
}
