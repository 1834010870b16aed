package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/haierkeys/library-backup-service/pkg/code"
)

// SecretMask replaces credentials in API output; sending it back keeps the stored value.
// SecretMask 接口输出中用于遮盖凭据，回传该值表示保持原值
const SecretMask = "********"

func invalid(detail string) error {
	return code.ErrorInvalidConfig.WithDetails(detail)
}

// GDriveToken is the persisted OAuth token
type GDriveToken struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

type GDriveParams struct {
	FolderID string       `json:"folderId,omitempty"`
	Token    *GDriveToken `json:"token,omitempty"`
}

type WebDAVParams struct {
	URL      string `json:"url"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type S3Params struct {
	Endpoint        string `json:"endpoint,omitempty"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
}

type SFTPParams struct {
	Host       string `json:"host"`
	Port       int    `json:"port,omitempty"`
	User       string `json:"user"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
	// HostKey pins the server key (authorized_keys format); empty accepts any key
	HostKey string `json:"hostKey,omitempty"`
}

type LocalParams struct {
	TargetDir string `json:"targetDir"`
	KeepCount int    `json:"keepCount"`
}

// BackupParams holds exactly one shape, the one matching the config type.
// BackupParams 仅包含与类型对应的一种参数
type BackupParams struct {
	GDrive *GDriveParams
	WebDAV *WebDAVParams
	S3     *S3Params
	SFTP   *SFTPParams
	Local  *LocalParams
}

func (p BackupParams) set() []BackupType {
	var out []BackupType
	if p.GDrive != nil {
		out = append(out, BackupTypeGDrive)
	}
	if p.WebDAV != nil {
		out = append(out, BackupTypeWebDAV)
	}
	if p.S3 != nil {
		out = append(out, BackupTypeS3)
	}
	if p.SFTP != nil {
		out = append(out, BackupTypeSFTP)
	}
	if p.Local != nil {
		out = append(out, BackupTypeLocal)
	}
	return out
}

// MarshalJSON emits the single populated shape as a flat object
func (p BackupParams) MarshalJSON() ([]byte, error) {
	switch {
	case p.GDrive != nil:
		return json.Marshal(p.GDrive)
	case p.WebDAV != nil:
		return json.Marshal(p.WebDAV)
	case p.S3 != nil:
		return json.Marshal(p.S3)
	case p.SFTP != nil:
		return json.Marshal(p.SFTP)
	case p.Local != nil:
		return json.Marshal(p.Local)
	}
	return []byte("{}"), nil
}

// DecodeParams parses a flat params object for type t. Unknown fields are rejected
// so a payload written for another type cannot slip through.
// DecodeParams 按类型解析参数，拒绝未知字段
func DecodeParams(t BackupType, raw []byte) (BackupParams, error) {
	var p BackupParams
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}
	var target any
	switch t {
	case BackupTypeGDrive:
		p.GDrive = &GDriveParams{}
		target = p.GDrive
	case BackupTypeWebDAV:
		p.WebDAV = &WebDAVParams{}
		target = p.WebDAV
	case BackupTypeS3:
		p.S3 = &S3Params{}
		target = p.S3
	case BackupTypeSFTP:
		p.SFTP = &SFTPParams{}
		target = p.SFTP
	case BackupTypeLocal:
		p.Local = &LocalParams{}
		target = p.Local
	default:
		return p, invalid("unknown type: " + string(t))
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return BackupParams{}, invalid("params do not match type " + string(t) + ": " + err.Error())
	}
	return p, nil
}

// Validate checks that exactly the shape of t is present with its required fields.
// Validate 校验参数形状与必填字段
func (p BackupParams) Validate(t BackupType) error {
	set := p.set()
	if len(set) != 1 || set[0] != t {
		return invalid("params must contain exactly the " + string(t) + " shape")
	}
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }

	switch t {
	case BackupTypeGDrive:
		// token is linked later through the OAuth callback
		return nil
	case BackupTypeWebDAV:
		w := p.WebDAV
		if blank(w.URL) || !(strings.HasPrefix(w.URL, "http://") || strings.HasPrefix(w.URL, "https://")) {
			return invalid("webdav url must be http(s)")
		}
		if blank(w.User) {
			return invalid("webdav user is required")
		}
	case BackupTypeS3:
		s := p.S3
		if blank(s.Bucket) {
			return invalid("s3 bucket is required")
		}
		if blank(s.Region) && blank(s.Endpoint) {
			return invalid("s3 region or endpoint is required")
		}
		if blank(s.AccessKeyID) || blank(s.SecretAccessKey) {
			return invalid("s3 access keys are required")
		}
	case BackupTypeSFTP:
		s := p.SFTP
		if blank(s.Host) || blank(s.User) {
			return invalid("sftp host and user are required")
		}
		if s.Port < 0 || s.Port > 65535 {
			return invalid("sftp port out of range")
		}
		if blank(s.Password) && blank(s.PrivateKey) {
			return invalid("sftp password or privateKey is required")
		}
	case BackupTypeLocal:
		l := p.Local
		if blank(l.TargetDir) {
			return invalid("local targetDir is required")
		}
		if l.KeepCount < 0 {
			return invalid("local keepCount must be >= 0")
		}
	}
	return nil
}

// Normalize fills defaults (sftp port 22)
func (p *BackupParams) Normalize() {
	if p.SFTP != nil && p.SFTP.Port == 0 {
		p.SFTP.Port = 22
	}
}

// Redacted returns a copy safe for API output: secrets masked, the gdrive token hidden.
// Redacted 返回遮盖凭据后的副本
func (p BackupParams) Redacted() BackupParams {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return SecretMask
	}
	var out BackupParams
	switch {
	case p.GDrive != nil:
		g := *p.GDrive
		g.Token = nil
		out.GDrive = &g
	case p.WebDAV != nil:
		w := *p.WebDAV
		w.Password = mask(w.Password)
		out.WebDAV = &w
	case p.S3 != nil:
		s := *p.S3
		s.SecretAccessKey = mask(s.SecretAccessKey)
		out.S3 = &s
	case p.SFTP != nil:
		s := *p.SFTP
		s.Password = mask(s.Password)
		s.PrivateKey = mask(s.PrivateKey)
		out.SFTP = &s
	case p.Local != nil:
		l := *p.Local
		out.Local = &l
	}
	return out
}

// KeepSecrets copies stored credentials into patch fields that are empty or masked,
// so editing a config does not require re-entering passwords.
// KeepSecrets 补丁中为空或为掩码的凭据字段沿用已保存的值
func (p *BackupParams) KeepSecrets(stored BackupParams) {
	keep := func(dst *string, old string) {
		if *dst == "" || *dst == SecretMask {
			*dst = old
		}
	}
	switch {
	case p.GDrive != nil && stored.GDrive != nil:
		if p.GDrive.Token == nil {
			p.GDrive.Token = stored.GDrive.Token
		}
	case p.WebDAV != nil && stored.WebDAV != nil:
		keep(&p.WebDAV.Password, stored.WebDAV.Password)
	case p.S3 != nil && stored.S3 != nil:
		keep(&p.S3.SecretAccessKey, stored.S3.SecretAccessKey)
	case p.SFTP != nil && stored.SFTP != nil:
		if p.SFTP.PrivateKey == "" && p.SFTP.Password == "" {
			p.SFTP.Password = stored.SFTP.Password
			p.SFTP.PrivateKey = stored.SFTP.PrivateKey
		}
		if p.SFTP.Password == SecretMask {
			p.SFTP.Password = stored.SFTP.Password
		}
		if p.SFTP.PrivateKey == SecretMask {
			p.SFTP.PrivateKey = stored.SFTP.PrivateKey
		}
	}
}
