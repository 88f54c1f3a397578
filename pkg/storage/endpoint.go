package storage

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/sdejongh/syncplan/pkg/models"
)

// ErrUnsupportedEndpoint is returned for addresses no backend can serve
var ErrUnsupportedEndpoint = errors.New("unsupported endpoint")

// Endpoint is a parsed source or destination address
type Endpoint struct {
	Kind models.BackendKind
	Raw  string

	// remote
	User string
	Host string
	Port int

	// Path is the local or remote directory
	Path string

	// object store
	Bucket string
	Prefix string
}

// scpLike matches user@host:path
var scpLike = regexp.MustCompile(`^([^@/\s]+)@([^:/\s]+):(.*)$`)

// Resolve classifies an address.
//
//	s3://bucket/prefix, bos://bucket/prefix   object store
//	sftp://user@host:port/path, user@host:path remote
//	anything else                              local path
func Resolve(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("%w: empty address", ErrUnsupportedEndpoint)
	}

	if scheme, rest, ok := strings.Cut(raw, "://"); ok {
		switch strings.ToLower(scheme) {
		case "s3", "bos":
			bucket, prefix, _ := strings.Cut(rest, "/")
			if bucket == "" {
				return Endpoint{}, fmt.Errorf("%w: missing bucket in %q", ErrUnsupportedEndpoint, raw)
			}
			return Endpoint{
				Kind:   models.BackendObjectStore,
				Raw:    raw,
				Bucket: bucket,
				Prefix: strings.Trim(prefix, "/"),
			}, nil
		case "sftp", "ssh":
			return resolveSFTPURL(raw)
		case "file":
			return Endpoint{Kind: models.BackendLocal, Raw: raw, Path: rest}, nil
		default:
			return Endpoint{}, fmt.Errorf("%w: scheme %q", ErrUnsupportedEndpoint, scheme)
		}
	}

	if m := scpLike.FindStringSubmatch(raw); m != nil {
		p := m[3]
		if p == "" {
			p = "."
		}
		return Endpoint{Kind: models.BackendRemote, Raw: raw, User: m[1], Host: m[2], Port: 22, Path: p}, nil
	}

	return Endpoint{Kind: models.BackendLocal, Raw: raw, Path: raw}, nil
}

func resolveSFTPURL(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrUnsupportedEndpoint, err)
	}
	if u.Hostname() == "" {
		return Endpoint{}, fmt.Errorf("%w: missing host in %q", ErrUnsupportedEndpoint, raw)
	}

	ep := Endpoint{
		Kind: models.BackendRemote,
		Raw:  raw,
		User: u.User.Username(),
		Host: u.Hostname(),
		Port: 22,
		Path: u.Path,
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: bad port %q", ErrUnsupportedEndpoint, p)
		}
		ep.Port = port
	}
	if ep.Path == "" {
		ep.Path = "."
	}
	return ep, nil
}

// String renders the endpoint for logs and reports
func (e Endpoint) String() string {
	switch e.Kind {
	case models.BackendObjectStore:
		if e.Prefix == "" {
			return "s3://" + e.Bucket
		}
		return "s3://" + e.Bucket + "/" + e.Prefix
	case models.BackendRemote:
		if strings.HasPrefix(e.Path, "/") {
			return fmt.Sprintf("sftp://%s@%s:%d%s", e.User, e.Host, e.Port, e.Path)
		}
		// relative to the login directory
		if e.Port == 22 {
			return fmt.Sprintf("%s@%s:%s", e.User, e.Host, e.Path)
		}
		return fmt.Sprintf("sftp://%s@%s:%d/~/%s", e.User, e.Host, e.Port, e.Path)
	default:
		return e.Path
	}
}
