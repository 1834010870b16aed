// Package sftp checks SSH destinations through the SFTP subsystem, so hosts that
// refuse shell or exec sessions (internal-sftp chroots, storage boxes) still work.
// Package sftp 通过 SFTP 子系统检测 SSH 目的地
package sftp

import (
	"context"
	"net"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/haierkeys/library-backup-service/pkg/fileurl"

	"github.com/pkg/errors"
	pkgsftp "github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

type Config struct {
	Host       string
	Port       int
	User       string
	Password   string
	PrivateKey string
	// HostKey is the expected server key in authorized_keys format; empty skips verification
	HostKey string
	Path    string
	Timeout time.Duration
}

type SFTP struct {
	conn   *ssh.Client
	client *pkgsftp.Client
	Config *Config
}

// AuthMethods builds ssh auth from the config; the private key wins over the password.
// AuthMethods 根据配置构造认证方式，私钥优先
func AuthMethods(conf *Config) ([]ssh.AuthMethod, error) {
	if conf.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(conf.PrivateKey))
		if err != nil {
			return nil, errors.Wrap(err, "sftp: parse private key")
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if conf.Password != "" {
		return []ssh.AuthMethod{ssh.Password(conf.Password)}, nil
	}
	return nil, errors.New("sftp: no authentication method provided")
}

// HostKeyCallback pins conf.HostKey when set.
func HostKeyCallback(conf *Config) (ssh.HostKeyCallback, error) {
	if strings.TrimSpace(conf.HostKey) == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(conf.HostKey))
	if err != nil {
		return nil, errors.Wrap(err, "sftp: parse host key")
	}
	return ssh.FixedHostKey(pub), nil
}

// NewClient dials host:port, authenticates and opens the sftp subsystem
func NewClient(ctx context.Context, conf *Config) (*SFTP, error) {
	auth, err := AuthMethods(conf)
	if err != nil {
		return nil, err
	}
	hostKey, err := HostKeyCallback(conf)
	if err != nil {
		return nil, err
	}
	port := conf.Port
	if port == 0 {
		port = 22
	}
	timeout := conf.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	addr := net.JoinHostPort(conf.Host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "sftp: dial")
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            conf.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	})
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "sftp: handshake")
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := pkgsftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, errors.Wrap(err, "sftp: subsystem")
	}
	return &SFTP{conn: sshClient, client: client, Config: conf}, nil
}

func (s *SFTP) SendContent(_ context.Context, pathKey string, content []byte) error {
	dir := s.dir()
	if err := s.client.MkdirAll(dir); err != nil {
		return errors.Wrapf(err, "sftp: mkdir %s", dir)
	}
	f, err := s.client.Create(path.Join(dir, pathKey))
	if err != nil {
		return errors.Wrap(err, "sftp: create")
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return errors.Wrap(err, "sftp: write")
	}
	return errors.Wrap(f.Close(), "sftp: close")
}

func (s *SFTP) Delete(_ context.Context, pathKey string) error {
	return errors.Wrap(s.client.Remove(path.Join(s.dir(), pathKey)), "sftp: remove")
}

func (s *SFTP) dir() string {
	if p := fileurl.JoinRemote(s.Config.Path); p != "" {
		if strings.HasPrefix(s.Config.Path, "/") {
			return "/" + p
		}
		return p
	}
	return "."
}

func (s *SFTP) Close() error {
	s.client.Close()
	return s.conn.Close()
}
