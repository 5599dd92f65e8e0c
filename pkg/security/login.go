package security

import (
	"fmt"
	"strings"
	"sync"

	krbclient "github.com/jcmturner/gokrb5/v8/client"
	krbconfig "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/underfs/underfs/internal/logger"
)

// DefaultKrbConfigPath is the conventional location of the Kerberos client
// configuration.
const DefaultKrbConfigPath = "/etc/krb5.conf"

// LoginConfig describes a static keytab login for a process role.
type LoginConfig struct {
	// KeytabPath is the path to the keytab file holding the principal's keys.
	KeytabPath string

	// Principal is the principal to log in as, e.g. "nn/host@EXAMPLE.COM".
	// The realm part is optional; when absent, the default realm from the
	// Kerberos configuration is used.
	Principal string

	// KrbConfigPath overrides the krb5.conf location. Empty uses
	// DefaultKrbConfigPath.
	KrbConfigPath string
}

// loginState holds the process-wide login identity.
//
// The mutex makes installation single-writer: the first successful login
// wins, a repeated login with the same principal is a no-op, and a login
// with a different principal fails instead of silently replacing the
// ambient identity.
var (
	loginMu     sync.Mutex
	loginID     Identity
	loginClient *krbclient.Client
)

// Login performs a process-wide Kerberos keytab login and installs the
// resulting identity as the ambient login identity.
//
// Login failure is fatal to the caller: a misconfigured identity must not
// silently proceed with a wrong one, so there is no retry here.
func Login(cfg LoginConfig) error {
	if cfg.KeytabPath == "" || cfg.Principal == "" {
		return fmt.Errorf("login requires both a keytab path and a principal")
	}

	loginMu.Lock()
	defer loginMu.Unlock()

	if !loginID.IsZero() {
		if loginID.Principal == cfg.Principal {
			logger.Debug("already logged in as %q, skipping keytab login", cfg.Principal)
			return nil
		}
		return fmt.Errorf("process already logged in as %q, refusing login as %q",
			loginID.Principal, cfg.Principal)
	}

	kt, err := keytab.Load(cfg.KeytabPath)
	if err != nil {
		return fmt.Errorf("failed to load keytab %q: %w", cfg.KeytabPath, err)
	}

	krbConfPath := cfg.KrbConfigPath
	if krbConfPath == "" {
		krbConfPath = DefaultKrbConfigPath
	}
	krbConf, err := krbconfig.Load(krbConfPath)
	if err != nil {
		return fmt.Errorf("failed to load kerberos config %q: %w", krbConfPath, err)
	}

	username, realm := splitPrincipal(cfg.Principal)
	if realm == "" {
		realm = krbConf.LibDefaults.DefaultRealm
	}

	client := krbclient.NewWithKeytab(username, realm, kt, krbConf)
	if err := client.Login(); err != nil {
		return fmt.Errorf("keytab login for principal %q failed: %w", cfg.Principal, err)
	}

	loginID = Identity{Principal: cfg.Principal}
	loginClient = client
	logger.Info("logged in from keytab %s as %q", cfg.KeytabPath, cfg.Principal)
	return nil
}

// LoginIdentity returns the ambient login identity, or the zero Identity if
// no static login has been performed.
func LoginIdentity() Identity {
	loginMu.Lock()
	defer loginMu.Unlock()
	return loginID
}

// KerberosClient returns the logged-in Kerberos client for use by transport
// layers that authenticate with it, or nil if no login has been performed.
func KerberosClient() *krbclient.Client {
	loginMu.Lock()
	defer loginMu.Unlock()
	return loginClient
}

// resetLogin clears the ambient login identity. Test hook.
func resetLogin() {
	loginMu.Lock()
	defer loginMu.Unlock()
	if loginClient != nil {
		loginClient.Destroy()
	}
	loginID = Identity{}
	loginClient = nil
}

// splitPrincipal splits "user/instance@REALM" into its name and realm parts.
func splitPrincipal(principal string) (username, realm string) {
	if at := strings.LastIndex(principal, "@"); at >= 0 {
		return principal[:at], principal[at+1:]
	}
	return principal, ""
}
