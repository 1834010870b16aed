package remote

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/haierkeys/library-backup-service/internal/domain"
	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/execx"
	"github.com/haierkeys/library-backup-service/pkg/fileurl"
)

// RemoteName is the rclone remote defined (through env vars) for a backup config
func RemoteName(configID int64) string {
	return "lbs" + strconv.FormatInt(configID, 10)
}

// TargetPath returns "<remote>:<path>" for a non-local backup config.
// s3 paths are prefixed with the bucket.
// TargetPath 返回备份配置对应的 rclone 路径
func TargetPath(cfg *domain.BackupConfig) string {
	p := fileurl.JoinRemote(cfg.RemotePath)
	if cfg.Type == domain.BackupTypeS3 && cfg.Params.S3 != nil {
		p = fileurl.JoinRemote(cfg.Params.S3.Bucket, cfg.RemotePath)
	}
	return RemoteName(cfg.ID) + ":" + p
}

type rcloneToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// BackendEnv builds the RCLONE_CONFIG_<NAME>_* variables describing the destination of cfg,
// so no rclone config file entry is written for backup configs. Passwords are obscured
// through "rclone obscure" reading stdin. token is required for gdrive.
// BackendEnv 通过环境变量描述备份目的地，无需写入 rclone 配置文件
func (a *Adapter) BackendEnv(ctx context.Context, cfg *domain.BackupConfig, token *domain.GDriveToken) ([]string, error) {
	prefix := "RCLONE_CONFIG_" + strings.ToUpper(RemoteName(cfg.ID)) + "_"
	var env []string
	set := func(k, v string) {
		if v != "" {
			env = append(env, prefix+k+"="+v)
		}
	}

	switch cfg.Type {
	case domain.BackupTypeGDrive:
		if token == nil {
			return nil, code.ErrorAuthExpired.WithDetails("no token linked")
		}
		raw, err := json.Marshal(rcloneToken{
			AccessToken:  token.AccessToken,
			TokenType:    token.TokenType,
			RefreshToken: token.RefreshToken,
			Expiry:       token.Expiry,
		})
		if err != nil {
			return nil, err
		}
		set("TYPE", "drive")
		set("SCOPE", "drive.file")
		set("CLIENT_ID", a.cfg.DriveClientID)
		set("CLIENT_SECRET", a.cfg.DriveClientSecret)
		set("TOKEN", string(raw))
		if cfg.Params.GDrive != nil {
			set("ROOT_FOLDER_ID", cfg.Params.GDrive.FolderID)
		}

	case domain.BackupTypeWebDAV:
		p := cfg.Params.WebDAV
		pass, err := a.Obscure(ctx, p.Password)
		if err != nil {
			return nil, err
		}
		set("TYPE", "webdav")
		set("URL", p.URL)
		set("USER", p.User)
		set("PASS", pass)

	case domain.BackupTypeS3:
		p := cfg.Params.S3
		set("TYPE", "s3")
		if p.Endpoint == "" {
			set("PROVIDER", "AWS")
		} else {
			set("PROVIDER", "Other")
			set("ENDPOINT", p.Endpoint)
		}
		set("REGION", p.Region)
		set("ACCESS_KEY_ID", p.AccessKeyID)
		set("SECRET_ACCESS_KEY", p.SecretAccessKey)

	case domain.BackupTypeSFTP:
		p := cfg.Params.SFTP
		set("TYPE", "sftp")
		set("HOST", p.Host)
		set("PORT", strconv.Itoa(p.Port))
		set("USER", p.User)
		if p.PrivateKey != "" {
			set("KEY_PEM", strings.ReplaceAll(strings.TrimSpace(p.PrivateKey), "\n", `\n`))
		} else {
			pass, err := a.Obscure(ctx, p.Password)
			if err != nil {
				return nil, err
			}
			set("PASS", pass)
		}

	default:
		return nil, code.ErrorInvalidConfig.WithDetails("type " + string(cfg.Type) + " has no rclone backend")
	}
	return env, nil
}

// Obscure runs "rclone obscure -" so the secret never appears in the process list
func (a *Adapter) Obscure(ctx context.Context, secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	res, err := a.runner.Run(ctx, execx.Command{
		Name:    a.cfg.Binary,
		Args:    []string{"obscure", "-"},
		Stdin:   strings.NewReader(secret),
		Timeout: a.cfg.ProbeTimeout,
	})
	if err != nil {
		out := &CommandResult{Command: a.cfg.Binary + " obscure -"}
		if res != nil {
			out.Stderr, out.ExitCode = res.Stderr, res.ExitCode
		}
		return "", classify(err, out)
	}
	return strings.TrimSpace(res.Stdout), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
