package webdav

import (
	"context"

	"github.com/haierkeys/library-backup-service/pkg/fileurl"

	"github.com/pkg/errors"
	"github.com/studio-b12/gowebdav"
)

// Config WebDAV 连接信息
type Config struct {
	URL      string
	User     string
	Password string
	Path     string
}

type WebDAV struct {
	Client *gowebdav.Client
	Config *Config
}

// NewClient connects and authenticates against the server.
// NewClient 连接并认证 WebDAV 服务器
func NewClient(conf *Config) (*WebDAV, error) {
	if conf.URL == "" {
		return nil, errors.New("webdav: url is empty")
	}
	c := gowebdav.NewClient(conf.URL, conf.User, conf.Password)
	if err := c.Connect(); err != nil {
		return nil, errors.Wrap(err, "webdav")
	}
	return &WebDAV{Client: c, Config: conf}, nil
}

func (w *WebDAV) SendContent(_ context.Context, pathKey string, content []byte) error {
	if dir := fileurl.JoinRemote(w.Config.Path); dir != "" {
		if err := w.Client.MkdirAll("/"+dir, 0o755); err != nil {
			return errors.Wrap(err, "webdav")
		}
	}
	return errors.Wrap(w.Client.Write("/"+fileurl.JoinRemote(w.Config.Path, pathKey), content, 0o644), "webdav")
}

func (w *WebDAV) Delete(_ context.Context, pathKey string) error {
	return errors.Wrap(w.Client.Remove("/"+fileurl.JoinRemote(w.Config.Path, pathKey)), "webdav")
}

func (w *WebDAV) Close() error { return nil }
