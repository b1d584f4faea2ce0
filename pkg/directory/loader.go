package directory

import (
	"fmt"
	"os"

	"github.com/go-ldap/ldap/v3"
	"gopkg.in/yaml.v3"
)

// EntryRecord is the on-disk form of an entry in an entries file:
//
//	- dn: uid=alice,ou=people,dc=example,dc=com
//	  attributes:
//	    uid: [alice]
//	    userPassword: ["{SSHA512}..."]
type EntryRecord struct {
	DN         string              `yaml:"dn"`
	Attributes map[string][]string `yaml:"attributes"`
}

// LoadFile adds every entry of a YAML entries file to d and returns the
// number of entries loaded.
func (d *MemoryDirectory) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read entries file: %w", err)
	}

	var records []EntryRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("parse entries file %s: %w", path, err)
	}

	for i, rec := range records {
		if rec.DN == "" {
			return i, fmt.Errorf("entries file %s: record %d has no dn", path, i)
		}
		if err := d.Add(ldap.NewEntry(rec.DN, rec.Attributes)); err != nil {
			return i, fmt.Errorf("entries file %s: %w", path, err)
		}
	}
	return len(records), nil
}

// GrantPrivilege adds p to the entry's ds-privilege-name values.
func (d *MemoryDirectory) GrantPrivilege(dn string, p Privilege) error {
	key, err := NormalizeDN(dn)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.entries[key]
	if !ok {
		return fmt.Errorf("no entry %q", dn)
	}

	for _, a := range entry.Attributes {
		if a.Name == PrivilegeAttribute {
			a.Values = append(a.Values, string(p))
			return nil
		}
	}
	entry.Attributes = append(entry.Attributes, ldap.NewEntryAttribute(PrivilegeAttribute, []string{string(p)}))
	return nil
}
