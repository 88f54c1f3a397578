package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	sshagent "github.com/xanzy/ssh-agent"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sdejongh/syncplan/pkg/compare"
	"github.com/sdejongh/syncplan/pkg/models"
)

// SFTPConfig holds connection settings for the remote-copy backend.
// Credentials come from the ssh agent, a key file or a password.
type SFTPConfig struct {
	KeyFile        string
	Password       string
	KnownHostsFile string
	// Insecure skips host key verification
	Insecure bool
	Timeout  time.Duration
}

// SFTP writes to a remote host over SFTP
type SFTP struct {
	endpoint  Endpoint
	root      string
	sshClient *ssh.Client
	client    *sftp.Client
}

// NewSFTP connects to the endpoint host
func NewSFTP(ctx context.Context, ep Endpoint, cfg SFTPConfig) (*SFTP, error) {
	user := ep.User
	if user == "" {
		user = os.Getenv("USER")
	}

	hostKey, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}

	// agent auth when neither password nor key file is given
	if cfg.Password == "" && cfg.KeyFile == "" {
		agentClient, _, err := sshagent.New()
		if err != nil {
			return nil, fmt.Errorf("couldn't connect to ssh-agent: %w", err)
		}
		signers, err := agentClient.Signers()
		if err != nil {
			return nil, fmt.Errorf("couldn't read ssh agent signers: %w", err)
		}
		config.Auth = append(config.Auth, ssh.PublicKeys(signers...))
	}

	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key file: %w", err)
		}
		config.Auth = append(config.Auth, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		config.Auth = append(config.Auth, ssh.Password(cfg.Password))
	}

	addr := net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
	sshClient, err := dialSSH(ctx, addr, config)
	if err != nil {
		return nil, &models.DestinationError{Endpoint: ep.String(), Err: fmt.Errorf("couldn't connect ssh: %w", err)}
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, &models.DestinationError{Endpoint: ep.String(), Err: fmt.Errorf("couldn't initialise SFTP: %w", err)}
	}

	s := newSFTPWithClient(ep, client)
	s.sshClient = sshClient
	return s, nil
}

func newSFTPWithClient(ep Endpoint, client *sftp.Client) *SFTP {
	return &SFTP{endpoint: ep, root: ep.Path, client: client}
}

func dialSSH(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := &net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func hostKeyCallback(cfg SFTPConfig) (ssh.HostKeyCallback, error) {
	if cfg.Insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := cfg.KnownHostsFile
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate known_hosts: %w", err)
		}
		file = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return cb, nil
}

// Kind returns BackendRemote
func (s *SFTP) Kind() models.BackendKind {
	return models.BackendRemote
}

// Root returns the remote address
func (s *SFTP) Root() string {
	return s.endpoint.String()
}

// Prepare creates the remote root directory
func (s *SFTP) Prepare(ctx context.Context) error {
	if err := s.client.MkdirAll(s.root); err != nil {
		return &models.DestinationError{Endpoint: s.Root(), Err: err}
	}
	return nil
}

// Stat returns remote file metadata
func (s *SFTP) Stat(ctx context.Context, relPath string) (*FileInfo, error) {
	full := s.remotePath(relPath)
	info, err := s.client.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat file: %w", fs.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return &FileInfo{
		Path:         full,
		RelativePath: relPath,
		Size:         info.Size(),
		ModTime:      info.ModTime(),
		IsDir:        info.IsDir(),
		Permissions:  uint32(info.Mode().Perm()),
	}, nil
}

// Write uploads to a temporary name and renames it into place.
// The temporary file is removed if the upload fails.
func (s *SFTP) Write(ctx context.Context, relPath string, reader io.Reader, size int64, metadata *FileInfo) (int64, error) {
	full := s.remotePath(relPath)
	if err := s.client.MkdirAll(path.Dir(full)); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := full + partialSuffix
	file, err := s.client.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	remove := func() {
		_ = s.client.Remove(tmp)
	}

	written, err := file.ReadFrom(reader)
	if err != nil {
		file.Close()
		remove()
		return written, fmt.Errorf("failed to write file: %w", err)
	}
	if err := file.Close(); err != nil {
		remove()
		return written, fmt.Errorf("failed to close file: %w", err)
	}
	if size >= 0 && written != size {
		remove()
		return written, fmt.Errorf("incomplete write: expected %d bytes, wrote %d", size, written)
	}

	if err := s.rename(tmp, full); err != nil {
		remove()
		return written, fmt.Errorf("failed to move file into place: %w", err)
	}

	if metadata != nil && !metadata.ModTime.IsZero() {
		if err := s.client.Chtimes(full, metadata.ModTime, metadata.ModTime); err != nil {
			return written, fmt.Errorf("failed to set modification time: %w", err)
		}
	}
	return written, nil
}

// rename prefers the atomic posix-rename extension and falls back to
// remove-then-rename on servers without it
func (s *SFTP) rename(from, to string) error {
	if err := s.client.PosixRename(from, to); err == nil {
		return nil
	}
	_ = s.client.Remove(to)
	return s.client.Rename(from, to)
}

// Checksum reads the remote file back and hashes it
func (s *SFTP) Checksum(ctx context.Context, relPath string, algo compare.Algorithm) (string, error) {
	f, err := s.client.Open(s.remotePath(relPath))
	if err != nil {
		return "", fmt.Errorf("failed to open remote file: %w", err)
	}
	defer f.Close()
	return compare.HashReader(ctx, f, algo)
}

// FreeSpace asks the server via the statvfs extension; -1 when unsupported
func (s *SFTP) FreeSpace(ctx context.Context) (int64, error) {
	st, err := s.client.StatVFS(s.root)
	if err != nil {
		return -1, nil
	}
	return int64(st.FreeSpace()), nil
}

// Probe uploads a throwaway file to the root, or its nearest existing
// parent, and removes it
func (s *SFTP) Probe(ctx context.Context, r io.Reader, size int64) error {
	dir := s.root
	for {
		if info, err := s.client.Stat(dir); err == nil && info.IsDir() {
			break
		}
		parent := path.Dir(dir)
		if parent == dir {
			return &models.DestinationError{Endpoint: s.Root(), Err: fs.ErrNotExist}
		}
		dir = parent
	}
	name := path.Join(dir, fmt.Sprintf(".syncplan-probe-%d", time.Now().UnixNano()))
	f, err := s.client.Create(name)
	if err != nil {
		return err
	}
	defer s.client.Remove(name)

	if _, err := io.CopyN(f, r, size); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Close closes the SFTP session and the ssh connection
func (s *SFTP) Close() error {
	err := s.client.Close()
	if s.sshClient != nil {
		if cerr := s.sshClient.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *SFTP) remotePath(relPath string) string {
	return path.Join(s.root, relPath)
}
