package youtube

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Partner upload defaults.
const (
	DefaultHost = "partnerupload.google.com"
	DefaultPort = 19321
)

// RemoteFS is the part of an SFTP session the uploader needs.
type RemoteFS interface {
	Mkdir(path string) error
	Create(path string) (io.WriteCloser, error)
	Close() error
}

// Dialer opens a session for the given login.
type Dialer func(ctx context.Context, username string) (RemoteFS, error)

type sftpFS struct {
	client *sftp.Client
	conn   *ssh.Client
}

func (s *sftpFS) Mkdir(path string) error {
	return s.client.Mkdir(path)
}

func (s *sftpFS) Create(path string) (io.WriteCloser, error) {
	return s.client.Create(path)
}

func (s *sftpFS) Close() error {
	s.client.Close()
	return s.conn.Close()
}

// SFTPDialer connects to the partner upload host with a private key.
func SFTPDialer(cfg config.YouTubeConfig) Dialer {
	return func(ctx context.Context, username string) (RemoteFS, error) {
		if username == "" {
			username = cfg.Username
		}

		key, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}

		hostKeys := ssh.InsecureIgnoreHostKey()
		if cfg.KnownHostsPath != "" {
			if hostKeys, err = knownhosts.New(cfg.KnownHostsPath); err != nil {
				return nil, fmt.Errorf("loading known hosts: %w", err)
			}
		}

		host := cfg.Host
		if host == "" {
			host = DefaultHost
		}
		port := cfg.Port
		if port == 0 {
			port = DefaultPort
		}
		addr := net.JoinHostPort(host, strconv.Itoa(port))

		var d net.Dialer
		raw, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dialing %s: %w", addr, err)
		}
		sshConn, chans, reqs, err := ssh.NewClientConn(raw, addr, &ssh.ClientConfig{
			User:            username,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeys,
		})
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
		}
		conn := ssh.NewClient(sshConn, chans, reqs)

		client, err := sftp.NewClient(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("starting sftp session: %w", err)
		}
		return &sftpFS{client: client, conn: conn}, nil
	}
}
