// Package plugin runs commands in separate executables. The host side spawns
// plugin processes and speaks the wire protocol with them; the plugin side
// (Serve, Main) is what a plugin executable links against.
package plugin

import (
	"path/filepath"
	"strings"
)

// Identity names a plugin executable and the extra arguments it is started
// with. Two identities with the same path and arguments share instances.
type Identity struct {
	Filename       string
	ExecutablePath string
	Args           []string
}

// NewIdentity derives an identity from an executable path.
func NewIdentity(path string, args ...string) Identity {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.TrimPrefix(name, "pipeshell_plugin_")
	return Identity{Filename: name, ExecutablePath: path, Args: args}
}

func (id Identity) key() string {
	return strings.Join(append([]string{id.ExecutablePath}, id.Args...), "\x00")
}

func (id Identity) String() string {
	return id.Filename
}
