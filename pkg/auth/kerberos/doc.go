// Package kerberos accepts Kerberos session-setup tokens.
//
// The pieces, from the inside out:
//   - Provider loads the keytab and krb5.conf (with environment variable
//     overrides) and hot-reloads the keytab.
//   - Acceptor is the gokrb5-backed gss.Provider: it verifies AP-REQs
//     against the Provider's keytab and builds AP-REPs for mutual
//     authentication.
//   - SessionSetup runs one accept per call against any gss.Provider and
//     always releases the credential and context, reporting release
//     failures without losing the accept result.
//   - Authenticator is the auth.AuthProvider tying it together: SPNEGO
//     decode, SessionSetup, principal mapping via StaticMapper, and the
//     SPNEGO response.
//
// Configuration is defined in pkg/config.KerberosConfig; this package takes
// it as a constructor parameter.
//
// References:
//   - RFC 4120: The Kerberos Network Authentication Service (V5)
//   - RFC 4121: The Kerberos Version 5 GSS-API Mechanism
//   - RFC 4178: SPNEGO
package kerberos
