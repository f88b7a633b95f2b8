package volume

import (
	"strings"

	"github.com/cuemby/fusiond/pkg/ferrors"
	"github.com/cuemby/fusiond/pkg/types"
	"gopkg.in/yaml.v3"
)

// URIScheme is the fixed scheme prefix for volume-relative file references
// (spec §4.4).
const URIScheme = "khfile://"

// URI names a path relative to a named volume: khfile://<volume>/<path>.
type URI struct {
	Volume string
	Path   string
}

// String renders the URI back to wire form.
func (u URI) String() string {
	if u.Volume == "" && u.Path == "" {
		return ""
	}
	return URIScheme + u.Volume + "/" + u.Path
}

// IsZero reports whether this is the empty/unresolved URI.
func (u URI) IsZero() bool { return u.Volume == "" && u.Path == "" }

// ParseURI parses a khfile://<volume>/<path> string. Both the volume and
// path segments must be non-empty.
func ParseURI(s string) (URI, error) {
	rest := strings.TrimPrefix(s, URIScheme)
	if rest == s {
		return URI{}, ferrors.Newf(ferrors.KindClientRequest, "volume.ParseURI", "missing %q scheme in %q", URIScheme, s)
	}
	idx := strings.IndexByte(rest, '/')
	if idx <= 0 || idx == len(rest)-1 {
		return URI{}, ferrors.Newf(ferrors.KindClientRequest, "volume.ParseURI", "malformed uri %q: need non-empty volume and path", s)
	}
	return URI{Volume: rest[:idx], Path: rest[idx+1:]}, nil
}

// Manager resolves URIs against the configured volume list and answers
// host-placement queries. It is read-only after Load; the resource manager
// owns all runtime reservation state separately.
type Manager struct {
	volumes map[string]types.Volume
}

// NewManager constructs an empty Manager. Callers must call Load before use.
func NewManager() *Manager {
	return &Manager{volumes: make(map[string]types.Volume)}
}

// volumeFile is the on-disk shape of the volume list config.
type volumeFile struct {
	Volumes []types.Volume `yaml:"volumes"`
}

// Load reads and replaces the volume list from raw YAML bytes (the contents
// of a volumes.yaml file). Paths are normalized: trailing slashes trimmed,
// and each must be absolute.
func (m *Manager) Load(data []byte) error {
	var f volumeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return ferrors.New(ferrors.KindFatal, "volume.Manager.Load", err)
	}
	vols := make(map[string]types.Volume, len(f.Volumes))
	for _, v := range f.Volumes {
		if !strings.HasPrefix(v.NetPath, "/") {
			return ferrors.Newf(ferrors.KindFatal, "volume.Manager.Load", "volume %q netpath %q is not absolute", v.Name, v.NetPath)
		}
		if !strings.HasPrefix(v.LocalPath, "/") {
			return ferrors.Newf(ferrors.KindFatal, "volume.Manager.Load", "volume %q localpath %q is not absolute", v.Name, v.LocalPath)
		}
		v.NetPath = strings.TrimRight(v.NetPath, "/")
		v.LocalPath = strings.TrimRight(v.LocalPath, "/")
		vols[v.Name] = v
	}
	m.volumes = vols
	return nil
}

// Get returns the definition for volname, if any.
func (m *Manager) Get(volname string) (types.Volume, bool) {
	v, ok := m.volumes[volname]
	return v, ok
}

// NetworkPathOf concatenates the volume's netpath with the URI's relative
// path. Returns "" if the volume is unknown.
func (m *Manager) NetworkPathOf(u URI) string {
	v, ok := m.volumes[u.Volume]
	if !ok {
		return ""
	}
	return v.NetPath + "/" + u.Path
}

// LocalPathOf concatenates the volume's localpath with the URI's relative
// path. Returns "" if the volume is unknown.
func (m *Manager) LocalPathOf(u URI) string {
	v, ok := m.volumes[u.Volume]
	if !ok {
		return ""
	}
	return v.LocalPath + "/" + u.Path
}

// DeduceURIFromPath scans volumes and returns the first whose netpath is a
// prefix of absPath, or whose localpath is a prefix of absPath and whose
// host equals thisHost (spec §4.4).
func (m *Manager) DeduceURIFromPath(absPath, thisHost string) URI {
	for name, v := range m.volumes {
		if prefix := v.NetPath + "/"; len(absPath) > len(prefix) && strings.HasPrefix(absPath, prefix) {
			return URI{Volume: name, Path: absPath[len(prefix):]}
		}
		if v.Host == thisHost {
			if prefix := v.LocalPath + "/"; len(absPath) > len(prefix) && strings.HasPrefix(absPath, prefix) {
				return URI{Volume: name, Path: absPath[len(prefix):]}
			}
		}
	}
	return URI{}
}

// VolumeHost returns the host a volume lives on, or "" if unknown.
func (m *Manager) VolumeHost(volname string) string {
	return m.volumes[volname].Host
}

// GetHostVolumes returns every volume name hosted on host.
func (m *Manager) GetHostVolumes(host string) []string {
	var names []string
	for name, v := range m.volumes {
		if v.Host == host {
			names = append(names, name)
		}
	}
	return names
}

// GetLocalTmpVolumes returns scratch volumes local to host.
func (m *Manager) GetLocalTmpVolumes(host string) []string {
	var names []string
	for name, v := range m.volumes {
		if v.IsTmp && v.Host == host {
			names = append(names, name)
		}
	}
	return names
}

// GetRemoteTmpVolumes returns scratch volumes not local to host.
func (m *Manager) GetRemoteTmpVolumes(host string) []string {
	var names []string
	for name, v := range m.volumes {
		if v.IsTmp && v.Host != host {
			names = append(names, name)
		}
	}
	return names
}

// AssetRootVolume is the well-known volume name that must be present and
// whose netpath matches the configured asset root (spec §4.4 parity with
// the original system's startup validation).
const AssetRootVolume = "asset_root"

// Validate checks that the asset-root volume is present and its netpath
// matches assetRoot, matching the original system's fatal-on-missing
// startup check.
func (m *Manager) Validate(assetRoot string) error {
	v, ok := m.volumes[AssetRootVolume]
	if !ok {
		return ferrors.Newf(ferrors.KindFatal, "volume.Manager.Validate", "no volume definition for %q", AssetRootVolume)
	}
	if v.NetPath != strings.TrimRight(assetRoot, "/") {
		return ferrors.Newf(ferrors.KindFatal, "volume.Manager.Validate", "%q volume netpath %q does not match configured asset root %q", AssetRootVolume, v.NetPath, assetRoot)
	}
	return nil
}
