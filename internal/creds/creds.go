// Package creds resolves service credentials from the environment or a
// netrc file.
package creds

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/bgentry/go-netrc/netrc"
)

// EarthdataHost is the netrc machine name for NASA Earthdata Login.
const EarthdataHost = "urs.earthdata.nasa.gov"

// Earthdata is the service prefix for the EARTHDATA_USERNAME/PASSWORD variables.
const Earthdata = "EARTHDATA"

// ErrCredentialsNotFound is returned when neither the environment nor netrc
// yields a username and password.
var ErrCredentialsNotFound = errors.New("credentials not found")

// Credentials is a username/password pair.
type Credentials struct {
	Username string
	Password string
}

// Environment looks up variables. *Overlay and OSEnvironment implement it.
type Environment interface {
	LookupEnv(key string) (string, bool)
}

// OSEnvironment reads the process environment.
type OSEnvironment struct{}

// LookupEnv implements Environment.
func (OSEnvironment) LookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Overlay layers explicitly supplied values over a base environment. It
// replaces writing secrets into the process environment.
type Overlay struct {
	base Environment

	mu     sync.RWMutex
	values map[string]string
}

// NewOverlay creates an overlay on top of base. A nil base means no fallback.
func NewOverlay(base Environment) *Overlay {
	return &Overlay{base: base, values: make(map[string]string)}
}

// LookupEnv implements Environment.
func (o *Overlay) LookupEnv(key string) (string, bool) {
	o.mu.RLock()
	v, ok := o.values[key]
	o.mu.RUnlock()
	if ok {
		return v, true
	}
	if o.base == nil {
		return "", false
	}
	return o.base.LookupEnv(key)
}

// Set stores a value. Empty values are ignored and never unset anything.
func (o *Overlay) Set(key, value string) {
	if value == "" {
		return
	}
	o.mu.Lock()
	o.values[key] = value
	o.mu.Unlock()
}

// SetCreds promotes explicitly supplied credentials for service so that
// later lookups find them. An empty username or password is a no-op for
// that value.
func (o *Overlay) SetCreds(service, username, password string) {
	prefix := strings.ToUpper(service)
	o.Set(prefix+"_USERNAME", username)
	o.Set(prefix+"_PASSWORD", password)
}

// Resolver finds credentials in Env first, then in the netrc file at NetrcPath.
type Resolver struct {
	Env       Environment
	NetrcPath string
}

// NewResolver creates a resolver over env using the default netrc location
// for the current user. The netrc path is empty when no home directory is known.
func NewResolver(env Environment) *Resolver {
	path := ""
	if home, err := os.UserHomeDir(); err == nil {
		path = NetrcPath(runtime.GOOS, home)
	}
	return &Resolver{Env: env, NetrcPath: path}
}

// NetrcPath returns the platform-dependent netrc location under home.
func NetrcPath(goos, home string) string {
	name := ".netrc"
	if goos == "windows" {
		name = "_netrc"
	}
	return filepath.Join(home, name)
}

// Resolve returns the credentials for service, reading {SERVICE}_USERNAME and
// {SERVICE}_PASSWORD before falling back to the netrc entry for host.
func (r *Resolver) Resolve(service, host string) (Credentials, error) {
	prefix := strings.ToUpper(service)
	if r.Env != nil {
		user, uok := r.Env.LookupEnv(prefix + "_USERNAME")
		pass, pok := r.Env.LookupEnv(prefix + "_PASSWORD")
		if uok && pok && user != "" && pass != "" {
			return Credentials{Username: user, Password: pass}, nil
		}
	}

	if r.NetrcPath != "" {
		creds, err := fromNetrc(r.NetrcPath, host)
		if err != nil {
			return Credentials{}, err
		}
		if creds != nil {
			return *creds, nil
		}
	}

	return Credentials{}, fmt.Errorf("%w: please provide %s credentials via the %s_USERNAME and %s_PASSWORD environment variables, or your netrc file",
		ErrCredentialsNotFound, serviceLabel(service), prefix, prefix)
}

// ResolveEarthdata resolves NASA Earthdata Login credentials.
func (r *Resolver) ResolveEarthdata() (Credentials, error) {
	return r.Resolve(Earthdata, EarthdataHost)
}

func fromNetrc(path, host string) (*Credentials, error) {
	m, err := netrc.FindMachine(path, host)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read netrc file %s: %w", path, err)
	}
	if m == nil || m.IsDefault() || m.Login == "" || m.Password == "" {
		return nil, nil
	}
	return &Credentials{Username: m.Login, Password: m.Password}, nil
}

func serviceLabel(service string) string {
	if strings.EqualFold(service, Earthdata) {
		return "NASA EarthData"
	}
	return service
}
