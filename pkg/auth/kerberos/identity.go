package kerberos

import (
	"strings"

	"github.com/marmos91/dittoauth/pkg/auth"
	"github.com/marmos91/dittoauth/pkg/config"
)

// StaticMapper implements auth.PrincipalMapper using a static configuration map.
//
// Principals are looked up in the configured static map using the key
// format "user@REALM", case-insensitively. If a match is found, the
// configured UID/GID/GIDs are returned. Otherwise, the default UID/GID is
// used.
//
// This is suitable for small deployments with a known set of users.
type StaticMapper struct {
	staticMap  map[string]config.StaticIdentity
	defaultUID uint32
	defaultGID uint32
}

var _ auth.PrincipalMapper = (*StaticMapper)(nil)

// NewStaticMapper creates a static identity mapper from configuration. A nil
// cfg maps every principal to the unmapped (nobody) identity.
func NewStaticMapper(cfg *config.IdentityMappingConfig) *StaticMapper {
	m := &StaticMapper{
		staticMap:  make(map[string]config.StaticIdentity),
		defaultUID: config.DefaultUnmappedUID,
		defaultGID: config.DefaultUnmappedGID,
	}
	if cfg == nil {
		return m
	}

	// Viper lowercases map keys, so lookups fold case.
	for k, v := range cfg.StaticMap {
		m.staticMap[strings.ToLower(k)] = v
	}
	// A zero default would map strangers to root.
	if cfg.DefaultUID != 0 {
		m.defaultUID = cfg.DefaultUID
	}
	if cfg.DefaultGID != 0 {
		m.defaultGID = cfg.DefaultGID
	}
	return m
}

// MapPrincipal maps a Kerberos user and realm to a Unix identity.
//
// Lookup key format: "user@realm" (e.g., "alice@EXAMPLE.COM"). Username and
// Domain are always set from the arguments; UID/GID fall back to the
// configured defaults for unknown principals.
func (m *StaticMapper) MapPrincipal(user, realm string) (*auth.Identity, error) {
	principal := user
	if realm != "" {
		principal = user + "@" + realm
	}

	id := &auth.Identity{
		Username:  user,
		Domain:    realm,
		Principal: principal,
		UID:       m.defaultUID,
		GID:       m.defaultGID,
	}

	if entry, ok := m.staticMap[strings.ToLower(principal)]; ok {
		id.UID = entry.UID
		id.GID = entry.GID
		if len(entry.GIDs) > 0 {
			id.Groups = make([]uint32, len(entry.GIDs))
			copy(id.Groups, entry.GIDs)
		}
	}

	return id, nil
}
