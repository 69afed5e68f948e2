package graphbolt

// AuthToken is the map sent in LOGON (or folded into HELLO on Bolt < 5.1),
// per spec.md §6's auth schemes: none, basic, kerberos, bearer, and custom.
type AuthToken map[string]any

// NoAuth builds an auth token for servers with authentication disabled.
func NoAuth() AuthToken {
	return AuthToken{"scheme": "none"}
}

// BasicAuth builds a username/password auth token, optionally scoped to a
// non-default realm.
func BasicAuth(username, password, realm string) AuthToken {
	t := AuthToken{"scheme": "basic", "principal": username, "credentials": password}
	if realm != "" {
		t["realm"] = realm
	}
	return t
}

// KerberosAuth builds a Kerberos ticket auth token.
func KerberosAuth(ticket string) AuthToken {
	return AuthToken{"scheme": "kerberos", "principal": "", "credentials": ticket}
}

// BearerAuth builds a bearer-token (SSO) auth token.
func BearerAuth(token string) AuthToken {
	return AuthToken{"scheme": "bearer", "credentials": token}
}

// CustomAuth builds an auth token for a server-side custom scheme, with
// arbitrary extra parameters merged in.
func CustomAuth(scheme, principal, credentials, realm string, parameters map[string]any) AuthToken {
	t := AuthToken{"scheme": scheme, "principal": principal, "credentials": credentials}
	if realm != "" {
		t["realm"] = realm
	}
	for k, v := range parameters {
		t[k] = v
	}
	return t
}

// toMap renders the token as the plain map[string]any the bolt package's
// message constructors expect.
func (t AuthToken) toMap() map[string]any {
	out := make(map[string]any, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
