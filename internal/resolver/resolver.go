// Package resolver turns a case-folder name into the set of people who receive it.
package resolver

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/smartbots/docdispatch/internal/directory"
)

var (
	// ErrRecipientNotFound means the folder name yields no key, or the key has no mapping.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrDistributionNotFound means the mapping points at an unknown distribution.
	ErrDistributionNotFound = errors.New("distribution not found")

	// ErrNoRecipientEmails means the resolved case has nobody to send to.
	ErrNoRecipientEmails = errors.New("recipient emails not found")
)

// DistributionCase is the fully resolved routing of one case folder.
type DistributionCase struct {
	Recipient       string
	DistributionKey string
	Country         string
	Body            string
	To              []string
	CC              []string
}

// Resolver resolves folder names against a directory.
type Resolver struct {
	dir     *directory.Directory
	ccGroup string
}

// New returns a Resolver over dir. ccGroup names the CC policy copied on every case.
func New(dir *directory.Directory, ccGroup string) *Resolver {
	return &Resolver{dir: dir, ccGroup: ccGroup}
}

// ExtractRecipientKey returns the recipient token of a folder named
// "... - RECIPIENT (details)": the last '-' separated segment before the first
// '(' with whitespace trimmed. Case is preserved.
func ExtractRecipientKey(folderName string) (string, bool) {
	name := norm.NFC.String(folderName)
	if i := strings.Index(name, "("); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "-"); i >= 0 {
		name = name[i+1:]
	}
	key := strings.TrimSpace(name)
	return key, key != ""
}

// Resolve looks key up case-sensitively; the first mapping in load order wins.
func (r *Resolver) Resolve(key string) (directory.RecipientMapping, bool) {
	return r.dir.Recipient(key)
}

// ResolveDistribution follows the mapping's distribution key. A missing
// distribution yields a zero Distribution and false.
func (r *Resolver) ResolveDistribution(m directory.RecipientMapping) (directory.Distribution, bool) {
	return r.dir.Distribution(m.DistributionKey)
}

// Case resolves a folder name into a DistributionCase.
//
// The returned case is always populated with whatever was found, so callers can
// record it even when err is non-nil. err wraps ErrRecipientNotFound,
// ErrDistributionNotFound or ErrNoRecipientEmails.
func (r *Resolver) Case(folderName string) (DistributionCase, error) {
	key, ok := ExtractRecipientKey(folderName)
	if !ok {
		return DistributionCase{}, &Error{Folder: folderName, Err: ErrRecipientNotFound}
	}

	var cc []string
	if policy, ok := r.dir.CCPolicy(r.ccGroup); ok {
		cc = policy.Emails
	}

	mapping, ok := r.Resolve(key)
	if !ok {
		return DistributionCase{Recipient: key, CC: cc}, &Error{Folder: folderName, Key: key, Err: ErrRecipientNotFound}
	}

	dist, distOK := r.ResolveDistribution(mapping)
	c := newCase(key, mapping, dist, cc)
	if !distOK {
		return c, &Error{Folder: folderName, Key: key, Err: ErrDistributionNotFound}
	}
	if len(c.To) == 0 {
		return c, &Error{Folder: folderName, Key: key, Err: ErrNoRecipientEmails}
	}
	return c, nil
}

func newCase(key string, m directory.RecipientMapping, d directory.Distribution, cc []string) DistributionCase {
	return DistributionCase{
		Recipient:       key,
		DistributionKey: m.DistributionKey,
		Country:         d.Country,
		Body:            d.Body,
		To:              append([]string(nil), m.Emails...),
		CC:              append([]string(nil), cc...),
	}
}

// Error describes a folder that could not be resolved.
type Error struct {
	Folder string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return e.Err.Error() + ": no recipient key in folder name " + `"` + e.Folder + `"`
	}
	return e.Err.Error() + ": " + e.Key
}

func (e *Error) Unwrap() error {
	return e.Err
}
