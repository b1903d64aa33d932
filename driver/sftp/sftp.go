package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/gobeaver/nodekit"
	"github.com/pkg/sftp"
	"go.uber.org/multierr"
	"golang.org/x/crypto/ssh"
)

// Adapter is a hierarchical backend over an SFTP server
type Adapter struct {
	mu       sync.Mutex
	client   *sftp.Client
	sshConn  *ssh.Client
	basePath string
	config   Config
}

// Config holds SFTP connection configuration
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey []byte // PEM encoded private key
	BasePath   string
}

// AdapterOption is a function that configures SFTP Adapter
type AdapterOption func(*Adapter)

// WithBasePath sets the directory every path is resolved against
func WithBasePath(basePath string) AdapterOption {
	return func(a *Adapter) {
		a.basePath = basePath
	}
}

// New connects to the server described by cfg
func New(cfg Config, options ...AdapterOption) (*Adapter, error) {
	a := &Adapter{
		config:   cfg,
		basePath: cfg.BasePath,
	}
	for _, option := range options {
		option(a)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.connect(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewWithClient wraps an already established SFTP session. The adapter does
// not reconnect it.
func NewWithClient(client *sftp.Client, options ...AdapterOption) *Adapter {
	a := &Adapter{client: client}
	for _, option := range options {
		option(a)
	}
	return a
}

// connect establishes SSH and SFTP connections.
// Must be called with lock held
func (a *Adapter) connect() error {
	sshConfig := &ssh.ClientConfig{
		User: a.config.Username,
		// TODO: verify host keys against a known_hosts file from the config
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	if len(a.config.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(a.config.PrivateKey)
		if err != nil {
			return fmt.Errorf("failed to parse private key: %w", err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}
	if a.config.Password != "" {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(a.config.Password))
	}
	if len(sshConfig.Auth) == 0 {
		return fmt.Errorf("no authentication method provided")
	}

	port := a.config.Port
	if port == 0 {
		port = 22
	}

	addr := fmt.Sprintf("%s:%d", a.config.Host, port)
	sshConn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SSH: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}

	a.sshConn = sshConn
	a.client = sftpClient
	return nil
}

// Close closes the SFTP and SSH connections
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	if a.client != nil {
		err = multierr.Append(err, a.client.Close())
		a.client = nil
	}
	if a.sshConn != nil {
		err = multierr.Append(err, a.sshConn.Close())
		a.sshConn = nil
	}
	return err
}

// session returns a live client, reconnecting connections the adapter owns
func (a *Adapter) session() (*sftp.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.config.Host == "" {
		if a.client == nil {
			return nil, errors.New("sftp session closed")
		}
		return a.client, nil
	}

	if a.client != nil {
		if _, err := a.client.Getwd(); err == nil {
			return a.client, nil
		}
		// Connection lost
		a.client.Close()
		a.sshConn.Close()
		a.client, a.sshConn = nil, nil
	}
	if err := a.connect(); err != nil {
		return nil, err
	}
	return a.client, nil
}

// resolve returns the server path for a backend path and a live client
func (a *Adapter) resolve(ctx context.Context, op, p string) (*sftp.Client, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	p = nodekit.Strip(p)
	for _, seg := range strings.Split(p, nodekit.Separator) {
		if seg == ".." {
			return nil, "", nodekit.NewPathError(op, p, nodekit.ErrInvalidPath)
		}
	}
	client, err := a.session()
	if err != nil {
		return nil, "", nodekit.BackendError(op, p, err)
	}

	full := p
	if a.basePath != "" {
		full = path.Join(a.basePath, p)
	} else if full == "" {
		full = "."
	}
	return client, full, nil
}

// Probe implements nodekit.Backend
func (a *Adapter) Probe(ctx context.Context, p string) (nodekit.Metadata, error) {
	client, full, err := a.resolve(ctx, "probe", p)
	if err != nil {
		return nodekit.Metadata{}, err
	}
	info, err := client.Stat(full)
	if err != nil {
		if isNotExist(err) {
			return nodekit.Metadata{Kind: nodekit.KindAbsent}, nil
		}
		return nodekit.Metadata{}, mapSFTPError("probe", p, err)
	}
	return metadataOf(info), nil
}

// Open implements nodekit.Backend
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	client, full, err := a.resolve(ctx, "open", p)
	if err != nil {
		return nil, err
	}
	info, err := client.Stat(full)
	if err != nil {
		return nil, mapSFTPError("open", p, err)
	}
	if info.IsDir() {
		return nil, nodekit.NewPathError("open", p, nodekit.ErrIsDir)
	}
	f, err := client.Open(full)
	if err != nil {
		return nil, mapSFTPError("open", p, err)
	}
	return f, nil
}

// Write implements nodekit.Backend
func (a *Adapter) Write(ctx context.Context, p string, content io.Reader, size int64) (err error) {
	client, full, err := a.resolve(ctx, "write", p)
	if err != nil {
		return err
	}
	if info, statErr := client.Stat(full); statErr == nil && info.IsDir() {
		return nodekit.NewPathError("write", p, nodekit.ErrIsDir)
	}

	if err := client.MkdirAll(path.Dir(full)); err != nil {
		return mapSFTPError("write", p, err)
	}

	f, err := client.Create(full)
	if err != nil {
		return mapSFTPError("write", p, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = mapSFTPError("write", p, cerr)
		}
	}()

	if _, err := io.Copy(f, content); err != nil {
		return mapSFTPError("write", p, err)
	}
	return nil
}

// DeleteOne implements nodekit.Backend. Directories must be empty.
func (a *Adapter) DeleteOne(ctx context.Context, p string, dir bool) error {
	client, full, err := a.resolve(ctx, "delete", p)
	if err != nil {
		return err
	}
	if nodekit.Strip(p) == "" {
		return nodekit.NewPathError("delete", p, nodekit.ErrInvalidPath)
	}

	info, err := client.Stat(full)
	if err != nil {
		return mapSFTPError("delete", p, err)
	}
	if !dir {
		if info.IsDir() {
			return nodekit.NewPathError("delete", p, nodekit.ErrIsDir)
		}
		return mapSFTPError("delete", p, client.Remove(full))
	}

	if !info.IsDir() {
		return nodekit.NewPathError("delete", p, nodekit.ErrNotDir)
	}
	entries, err := client.ReadDir(full)
	if err != nil {
		return mapSFTPError("delete", p, err)
	}
	if len(entries) > 0 {
		return nodekit.NewPathError("delete", p, nodekit.ErrNotEmpty)
	}
	return mapSFTPError("delete", p, client.RemoveDirectory(full))
}

// CreateDirectoryMarker implements nodekit.Backend
func (a *Adapter) CreateDirectoryMarker(ctx context.Context, p string) error {
	client, full, err := a.resolve(ctx, "mkdirs", p)
	if err != nil {
		return err
	}
	if info, statErr := client.Stat(full); statErr == nil {
		if !info.IsDir() {
			return nodekit.NewPathError("mkdirs", p, nodekit.ErrNotDir)
		}
		return nil
	}
	return mapSFTPError("mkdirs", p, client.MkdirAll(full))
}

// ListImmediate implements nodekit.HierarchicalBackend
func (a *Adapter) ListImmediate(ctx context.Context, p string) ([]nodekit.Entry, error) {
	client, full, err := a.resolve(ctx, "list", p)
	if err != nil {
		return nil, err
	}
	info, err := client.Stat(full)
	if err != nil {
		return nil, mapSFTPError("list", p, err)
	}
	if !info.IsDir() {
		return nil, nodekit.NewPathError("list", p, nodekit.ErrNotDir)
	}

	infos, err := client.ReadDir(full)
	if err != nil {
		return nil, mapSFTPError("list", p, err)
	}
	entries := make([]nodekit.Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, nodekit.Entry{Name: fi.Name(), Metadata: metadataOf(fi)})
	}
	return entries, nil
}

func metadataOf(info os.FileInfo) nodekit.Metadata {
	if info.IsDir() {
		return nodekit.Metadata{Kind: nodekit.KindDirectory, LastModified: info.ModTime()}
	}
	return nodekit.Metadata{Kind: nodekit.KindFile, Size: info.Size(), LastModified: info.ModTime()}
}

func isNotExist(err error) bool {
	if os.IsNotExist(err) || errors.Is(err, os.ErrNotExist) {
		return true
	}
	var status *sftp.StatusError
	return errors.As(err, &status) && status.FxCode() == sftp.ErrSSHFxNoSuchFile
}

func mapSFTPError(op, p string, err error) error {
	if err == nil {
		return nil
	}
	if isNotExist(err) {
		return nodekit.NewPathError(op, p, nodekit.ErrNotExist)
	}
	if os.IsPermission(err) {
		return nodekit.NewPathError(op, p, nodekit.ErrPermission)
	}
	var status *sftp.StatusError
	if errors.As(err, &status) && status.FxCode() == sftp.ErrSSHFxPermissionDenied {
		return nodekit.NewPathError(op, p, nodekit.ErrPermission)
	}
	return nodekit.BackendError(op, p, err)
}

var (
	_ nodekit.HierarchicalBackend = (*Adapter)(nil)
	_ nodekit.Closer              = (*Adapter)(nil)
)
