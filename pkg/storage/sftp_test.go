package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"strings"
	"testing"

	"github.com/pkg/sftp"

	"github.com/sdejongh/syncplan/pkg/compare"
	"github.com/sdejongh/syncplan/pkg/models"
)

// newInMemorySFTP serves an in-memory filesystem over a pipe
func newInMemorySFTP(t *testing.T) *SFTP {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go server.Serve()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	if err != nil {
		t.Fatalf("NewClientPipe() error = %v", err)
	}

	s := newSFTPWithClient(Endpoint{Kind: models.BackendRemote, User: "u", Host: "mem", Port: 22, Path: "/dest"}, client)
	t.Cleanup(func() {
		s.Close()
		server.Close()
	})
	return s
}

func TestSFTPWriteAndStat(t *testing.T) {
	ctx := context.Background()
	s := newInMemorySFTP(t)

	if err := s.Prepare(ctx); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	content := "remote payload"
	n, err := s.Write(ctx, "sub/file.txt", strings.NewReader(content), int64(len(content)), nil)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != int64(len(content)) {
		t.Errorf("Write() = %d, want %d", n, len(content))
	}

	info, err := s.Stat(ctx, "sub/file.txt")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size != int64(len(content)) {
		t.Errorf("Size = %d", info.Size)
	}

	if _, err := s.Stat(ctx, "sub/file.txt"+partialSuffix); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("temporary upload left behind: %v", err)
	}

	sum, err := s.Checksum(ctx, "sub/file.txt", compare.SHA256)
	if err != nil {
		t.Fatalf("Checksum() error = %v", err)
	}
	want, _ := compare.HashReader(ctx, strings.NewReader(content), compare.SHA256)
	if sum != want {
		t.Errorf("Checksum() = %s, want %s", sum, want)
	}
}

func TestSFTPOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newInMemorySFTP(t)
	s.Prepare(ctx)

	s.Write(ctx, "f.txt", strings.NewReader("first"), 5, nil)
	if _, err := s.Write(ctx, "f.txt", strings.NewReader("second!"), 7, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	info, err := s.Stat(ctx, "f.txt")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size != 7 {
		t.Errorf("Size = %d, want 7", info.Size)
	}
}

func TestSFTPFailedUploadIsRemoved(t *testing.T) {
	ctx := context.Background()
	s := newInMemorySFTP(t)
	s.Prepare(ctx)

	r := io.MultiReader(strings.NewReader("part"), &failingReader{err: errors.New("broken pipe")})
	if _, err := s.Write(ctx, "broken.bin", r, 100, nil); err == nil {
		t.Fatal("Write() should fail")
	}
	if _, err := s.Stat(ctx, "broken.bin"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("target should not exist: %v", err)
	}
	if _, err := s.Stat(ctx, "broken.bin"+partialSuffix); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("partial upload should be removed: %v", err)
	}
}

func TestSFTPStatMissing(t *testing.T) {
	s := newInMemorySFTP(t)
	if _, err := s.Stat(context.Background(), "nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat() error = %v, want fs.ErrNotExist", err)
	}
}

func TestSFTPProbeDoesNotCreateRoot(t *testing.T) {
	s := newInMemorySFTP(t)

	if err := s.Probe(context.Background(), strings.NewReader(strings.Repeat("p", 128)), 128); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if _, err := s.client.Stat("/dest"); err == nil {
		t.Error("Probe() should not create the destination root")
	}
	entries, err := s.client.ReadDir("/")
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Probe() left %d files behind", len(entries))
	}
}
