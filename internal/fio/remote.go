package fio

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"dbbackup/internal/xerrors"
)

// RemoteConfig configures the SSH-tunneled transport used to reach
// PGDATA when the database server is not the machine running the
// backup process.
type RemoteConfig struct {
	Endpoint       string // "user@host[:port]"
	KeyPath        string
	KeyPassphrase  string
	Password       string
	KnownHostsPath string
	Insecure       bool
}

// remoteBackend implements the per-Location file operations over SFTP.
type remoteBackend struct {
	mu     sync.Mutex
	cfg    RemoteConfig
	host   string
	user   string
	ssh    *ssh.Client
	sftp   *sftp.Client
	policy backoff.BackOff
}

// NewRemoteBackend returns a backend that lazily connects on first use.
func NewRemoteBackend(cfg RemoteConfig) (*remoteBackend, error) {
	user, host, err := parseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindConfig, xerrors.SeverityFatal, err, "parse remote endpoint")
	}
	return &remoteBackend{
		cfg:    cfg,
		host:   host,
		user:   user,
		policy: backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5),
	}, nil
}

func parseEndpoint(endpoint string) (user, host string, err error) {
	parts := strings.SplitN(endpoint, "@", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("fio: endpoint %q must be user@host[:port]", endpoint)
	}
	user, host = parts[0], parts[1]
	if _, _, err := net.SplitHostPort(host); err != nil {
		host += ":22"
	}
	return user, host, nil
}

func (b *remoteBackend) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if b.cfg.KeyPath != "" {
		data, err := os.ReadFile(b.cfg.KeyPath)
		if err != nil {
			return nil, err
		}
		var signer ssh.Signer
		if b.cfg.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(b.cfg.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(data)
		}
		if err != nil {
			return nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if b.cfg.Password != "" {
		methods = append(methods, ssh.Password(b.cfg.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("fio: no SSH authentication configured (key or password required)")
	}
	return methods, nil
}

func (b *remoteBackend) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if b.cfg.Insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := b.cfg.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "/root"
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	return knownhosts.New(path)
}

func (b *remoteBackend) connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sftp != nil {
		return nil
	}

	auth, err := b.authMethods()
	if err != nil {
		return xerrors.Wrap(xerrors.KindConfig, xerrors.SeverityFatal, err, "build SSH auth")
	}
	hkc, err := b.hostKeyCallback()
	if err != nil {
		return xerrors.Wrap(xerrors.KindConfig, xerrors.SeverityFatal, err, "build SSH host key callback")
	}

	return backoff.Retry(func() error {
		sshClient, err := ssh.Dial("tcp", b.host, &ssh.ClientConfig{
			User:            b.user,
			Auth:            auth,
			HostKeyCallback: hkc,
			Timeout:         30 * time.Second,
		})
		if err != nil {
			return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityWarning, err, "dial remote db host").WithRetryable(true)
		}
		sftpClient, err := sftp.NewClient(sshClient)
		if err != nil {
			_ = sshClient.Close()
			return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityWarning, err, "open SFTP session").WithRetryable(true)
		}
		b.ssh, b.sftp = sshClient, sftpClient
		return nil
	}, backoff.WithContext(b.policy, ctx))
}

func (b *remoteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sftp != nil {
		_ = b.sftp.Close()
		b.sftp = nil
	}
	if b.ssh != nil {
		_ = b.ssh.Close()
		b.ssh = nil
	}
	return nil
}

func (b *remoteBackend) open(ctx context.Context, path string, flag int, perm os.FileMode) (File, error) {
	if err := b.connect(ctx); err != nil {
		return nil, err
	}
	f, err := b.sftp.OpenFile(path, flag)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "open remote "+path)
	}
	if perm != 0 {
		_ = b.sftp.Chmod(path, perm)
	}
	return &remoteFile{f: f}, nil
}

func (b *remoteBackend) stat(ctx context.Context, path string) (os.FileInfo, error) {
	if err := b.connect(ctx); err != nil {
		return nil, err
	}
	return b.sftp.Stat(path)
}

func (b *remoteBackend) chmod(ctx context.Context, path string, mode os.FileMode) error {
	if err := b.connect(ctx); err != nil {
		return err
	}
	return b.sftp.Chmod(path, mode)
}

func (b *remoteBackend) mkdir(ctx context.Context, path string, _ os.FileMode) error {
	if err := b.connect(ctx); err != nil {
		return err
	}
	return b.sftp.MkdirAll(path)
}

func (b *remoteBackend) rename(ctx context.Context, oldpath, newpath string) error {
	if err := b.connect(ctx); err != nil {
		return err
	}
	return b.sftp.Rename(oldpath, newpath)
}

func (b *remoteBackend) unlink(ctx context.Context, path string) error {
	if err := b.connect(ctx); err != nil {
		return err
	}
	err := b.sftp.Remove(path)
	if err != nil && strings.Contains(err.Error(), "not exist") {
		return nil
	}
	return err
}

func (b *remoteBackend) opendir(ctx context.Context, path string) ([]DirEntry, error) {
	if err := b.connect(ctx); err != nil {
		return nil, err
	}
	infos, err := b.sftp.ReadDir(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "opendir remote "+path)
	}
	out := make([]DirEntry, 0, len(infos))
	for _, fi := range infos {
		entry := DirEntry{Name: fi.Name(), Mode: fi.Mode(), Size: fi.Size(), ModTime: fi.ModTime(), IsDir: fi.IsDir()}
		if fi.Mode()&os.ModeSymlink != 0 {
			entry.IsLink = true
			if target, err := b.sftp.ReadLink(filepath.Join(path, fi.Name())); err == nil {
				entry.LinkTo = target
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// remoteFile wraps an *sftp.File, which already implements io.ReaderAt
// and io.WriterAt natively over the SFTP protocol's offset-addressed
// read/write requests.
type remoteFile struct {
	f *sftp.File
}

func (rf *remoteFile) Read(p []byte) (int, error)  { return rf.f.Read(p) }
func (rf *remoteFile) Write(p []byte) (int, error) { return rf.f.Write(p) }
func (rf *remoteFile) Close() error                { return rf.f.Close() }
func (rf *remoteFile) Flush() error                { return nil }
func (rf *remoteFile) Stat() (os.FileInfo, error)  { return rf.f.Stat() }
func (rf *remoteFile) Chmod(mode os.FileMode) error {
	return rf.f.Chmod(mode)
}
func (rf *remoteFile) Fseek(offset int64, whence int) (int64, error) {
	return rf.f.Seek(offset, whence)
}
func (rf *remoteFile) Ftruncate(size int64) error {
	return rf.f.Truncate(size)
}
func (rf *remoteFile) Pread(p []byte, off int64) (int, error) {
	n, err := rf.f.ReadAt(p, off)
	if err == io.EOF {
		return n, err
	}
	return n, err
}
func (rf *remoteFile) Pwrite(p []byte, off int64) (int, error) {
	return rf.f.WriteAt(p, off)
}
