package kerberos

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		value   string
		config  string
		want    string
		resolve func(string) string
	}{
		{"KeytabEnv", "DITTOAUTH_KERBEROS_KEYTAB", "/run/secrets/krb5.keytab", "/etc/krb5.keytab", "/run/secrets/krb5.keytab", resolveKeytabPath},
		{"KeytabConfig", "DITTOAUTH_KERBEROS_KEYTAB", "", "/etc/krb5.keytab", "/etc/krb5.keytab", resolveKeytabPath},
		{"KeytabUnset", "DITTOAUTH_KERBEROS_KEYTAB", "", "", "", resolveKeytabPath},
		{"PrincipalEnv", "DITTOAUTH_KERBEROS_PRINCIPAL", "cifs/env.example.com@EXAMPLE.COM", "cifs/fs.example.com@EXAMPLE.COM", "cifs/env.example.com@EXAMPLE.COM", resolveServicePrincipal},
		{"PrincipalConfig", "DITTOAUTH_KERBEROS_PRINCIPAL", "", "cifs/fs.example.com@EXAMPLE.COM", "cifs/fs.example.com@EXAMPLE.COM", resolveServicePrincipal},
		{"Krb5ConfEnv", "DITTOAUTH_KERBEROS_KRB5CONF", "/tmp/krb5.conf", "/etc/krb5.conf", "/tmp/krb5.conf", resolveKrb5ConfPath},
		{"Krb5ConfConfig", "DITTOAUTH_KERBEROS_KRB5CONF", "", "/opt/krb5.conf", "/opt/krb5.conf", resolveKrb5ConfPath},
		{"Krb5ConfDefault", "DITTOAUTH_KERBEROS_KRB5CONF", "", "", "/etc/krb5.conf", resolveKrb5ConfPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			assert.Equal(t, tt.want, tt.resolve(tt.config))
		})
	}
}

// writeKeytab writes test.keytab in dir with one entry per principal
// (cifs/server.example.com by default) and returns its path.
func writeKeytab(t *testing.T, dir string, kvno uint8, principals ...string) string {
	t.Helper()
	if len(principals) == 0 {
		principals = []string{"cifs/server.example.com"}
	}

	kt := keytab.New()
	for _, p := range principals {
		require.NoError(t, kt.AddEntry(p, "EXAMPLE.COM", "test-password", time.Now(), kvno, 17))
	}
	data, err := kt.Marshal()
	require.NoError(t, err)

	path := filepath.Join(dir, "test.keytab")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestLoadKeytab(t *testing.T) {
	dir := t.TempDir()

	kt, err := loadKeytab(writeKeytab(t, dir, 1))
	require.NoError(t, err)
	require.Len(t, kt.Entries, 1)
	assert.Equal(t, uint32(1), kt.Entries[0].KVNO)

	_, err = loadKeytab(filepath.Join(dir, "missing.keytab"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.keytab")
	require.NoError(t, os.WriteFile(bad, []byte("not a keytab"), 0600))
	_, err = loadKeytab(bad)
	assert.Error(t, err)
}

func TestReloadKeytab(t *testing.T) {
	dir := t.TempDir()
	path := writeKeytab(t, dir, 1)

	kt, err := loadKeytab(path)
	require.NoError(t, err)
	m := newRecordingMetrics()
	p := &Provider{keytabPath: path, keytab: kt, metrics: m}

	t.Run("Swaps", func(t *testing.T) {
		old := p.Keytab()
		writeKeytab(t, dir, 2, "cifs/server.example.com", "host/server.example.com")

		require.NoError(t, p.ReloadKeytab())
		assert.NotSame(t, old, p.Keytab())
		assert.Len(t, p.Keytab().Entries, 2)
		assert.Equal(t, 1, m.reloads[true])
		assert.Equal(t, 2, m.keytabEntries)
	})

	t.Run("KeepsOldOnFailure", func(t *testing.T) {
		old := p.Keytab()
		require.NoError(t, os.WriteFile(path, []byte("invalid keytab data"), 0600))

		assert.Error(t, p.ReloadKeytab())
		assert.Same(t, old, p.Keytab())
		assert.Equal(t, 1, m.reloads[false])
	})
}

type countingReloader struct {
	calls atomic.Int32
	err   error
}

func (c *countingReloader) ReloadKeytab() error {
	c.calls.Add(1)
	return c.err
}

func TestKeytabManager_Lifecycle(t *testing.T) {
	path := writeKeytab(t, t.TempDir(), 1)

	km := NewKeytabManager(path, &countingReloader{}, time.Hour)
	require.NoError(t, km.Start())
	km.Stop()
	km.Stop()

	never := NewKeytabManager(path, &countingReloader{}, 0)
	assert.Equal(t, DefaultKeytabPollInterval, never.interval)
	never.Stop()

	missing := NewKeytabManager(filepath.Join(t.TempDir(), "nope"), &countingReloader{}, 0)
	assert.ErrorContains(t, missing.Start(), "keytab file not accessible")
}

func TestKeytabManager_CheckAndReload(t *testing.T) {
	dir := t.TempDir()
	path := writeKeytab(t, dir, 1)

	r := &countingReloader{}
	km := NewKeytabManager(path, r, time.Hour)
	require.NoError(t, km.Start())
	defer km.Stop()

	assert.False(t, km.checkAndReload(), "unchanged file")
	assert.Zero(t, r.calls.Load())

	t.Run("ModTime", func(t *testing.T) {
		future := time.Now().Add(time.Minute)
		require.NoError(t, os.Chtimes(path, future, future))
		assert.True(t, km.checkAndReload())
		assert.False(t, km.checkAndReload(), "stamp advanced")
	})

	t.Run("SizeWithSameModTime", func(t *testing.T) {
		info, err := os.Stat(path)
		require.NoError(t, err)
		writeKeytab(t, dir, 2, "cifs/server.example.com", "host/server.example.com")
		require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))
		assert.True(t, km.checkAndReload())
	})

	t.Run("FailedReloadRetries", func(t *testing.T) {
		r.err = assert.AnError
		before := r.calls.Load()
		future := time.Now().Add(2 * time.Minute)
		require.NoError(t, os.Chtimes(path, future, future))

		assert.False(t, km.checkAndReload())
		assert.False(t, km.checkAndReload())
		assert.Equal(t, before+2, r.calls.Load())
	})

	t.Run("FileRemoved", func(t *testing.T) {
		require.NoError(t, os.Remove(path))
		assert.False(t, km.checkAndReload())
	})
}

func TestLoadKrb5Conf(t *testing.T) {
	dir := t.TempDir()

	cfg, err := loadKrb5Conf(filepath.Join(dir, "missing.conf"))
	require.NoError(t, err)
	assert.Empty(t, cfg.LibDefaults.DefaultRealm)

	path := filepath.Join(dir, "krb5.conf")
	require.NoError(t, os.WriteFile(path, []byte("[libdefaults]\n  default_realm = EXAMPLE.COM\n"), 0600))
	cfg, err = loadKrb5Conf(path)
	require.NoError(t, err)
	assert.Equal(t, "EXAMPLE.COM", cfg.LibDefaults.DefaultRealm)
}
