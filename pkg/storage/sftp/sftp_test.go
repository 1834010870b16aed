package sftp

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	pkgsftp "github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func newHostKey(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

// sftpOnlyServer accepts password "pw" for user "backup" and serves the sftp
// subsystem; exec, shell and pty requests are refused.
func sftpOnlyServer(t *testing.T, hostKey ssh.Signer) int {
	t.Helper()
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pw []byte) (*ssh.Permissions, error) {
			if c.User() == "backup" && string(pw) == "pw" {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
	}
	cfg.AddHostKey(hostKey)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, cfg)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func serveConn(conn net.Conn, cfg *ssh.ServerConfig) {
	defer conn.Close()
	sc, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	defer sc.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			nc.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			return
		}
		go func() {
			for req := range requests {
				// subsystem payload: uint32 length + name
				if req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp" {
					req.Reply(true, nil)
					go func() {
						defer ch.Close()
						srv, err := pkgsftp.NewServer(ch)
						if err != nil {
							return
						}
						_ = srv.Serve()
					}()
					continue
				}
				req.Reply(false, nil)
			}
		}()
	}
}

func TestSendAndDeleteOnSFTPOnlyHost(t *testing.T) {
	hostKey := newHostKey(t)
	port := sftpOnlyServer(t, hostKey)
	target := filepath.Join(t.TempDir(), "backups", "nas")
	ctx := context.Background()

	c, err := NewClient(ctx, &Config{
		Host:     "127.0.0.1",
		Port:     port,
		User:     "backup",
		Password: "pw",
		HostKey:  string(ssh.MarshalAuthorizedKey(hostKey.PublicKey())),
		Path:     target,
	})
	require.NoError(t, err)
	defer c.Close()

	session, err := c.conn.NewSession()
	require.NoError(t, err)
	assert.Error(t, session.Run("true"), "host refuses exec")
	session.Close()

	require.NoError(t, c.SendContent(ctx, ".marker", []byte("hello")))
	body, err := os.ReadFile(filepath.Join(target, ".marker"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	require.NoError(t, c.Delete(ctx, ".marker"))
	assert.NoFileExists(t, filepath.Join(target, ".marker"))
}

func TestNewClientRejectsWrongHostKey(t *testing.T) {
	port := sftpOnlyServer(t, newHostKey(t))
	other := newHostKey(t)

	_, err := NewClient(context.Background(), &Config{
		Host:     "127.0.0.1",
		Port:     port,
		User:     "backup",
		Password: "pw",
		HostKey:  string(ssh.MarshalAuthorizedKey(other.PublicKey())),
	})
	assert.Error(t, err)
}

func TestAuthMethods(t *testing.T) {
	_, err := AuthMethods(&Config{})
	assert.Error(t, err)

	m, err := AuthMethods(&Config{Password: "pw"})
	assert.NoError(t, err)
	assert.Len(t, m, 1)

	_, err = AuthMethods(&Config{PrivateKey: "not a key"})
	assert.Error(t, err)

	_, err = HostKeyCallback(&Config{HostKey: "not a key"})
	assert.Error(t, err)
}
