// Package oauth runs the authorization-code flow for drive configs and keeps their tokens fresh.
// Package oauth 处理云盘配置的授权码流程并刷新令牌
package oauth

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/haierkeys/library-backup-service/internal/domain"
	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/logger"
	"github.com/haierkeys/library-backup-service/pkg/timex"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
)

// driveFileScope limits access to files the app created
const driveFileScope = "https://www.googleapis.com/auth/drive.file"

// tokens expiring within this window are refreshed before use
const expiryLeeway = time.Minute

// Config OAuth 客户端配置
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// AuthURL and TokenURL override the Google endpoints when set
	AuthURL    string
	TokenURL   string
	Scopes     []string
	PendingTTL time.Duration
}

// PendingAuthorization links a consent request to the config that receives the token.
// PendingAuthorization 授权请求与配置的关联
type PendingAuthorization struct {
	State     string    `json:"state"`
	ConfigID  int64     `json:"configId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Broker OAuth 授权代理
type Broker struct {
	cfg    Config
	oauth  *oauth2.Config
	repo   domain.BackupRepository
	clock  timex.Clock
	logger *zap.Logger
	// HTTPClient is used for token requests when set
	HTTPClient *http.Client

	mu       sync.Mutex
	pending  map[string]*PendingAuthorization
	byConfig map[int64]string

	refresh singleflight.Group
}

// New 创建授权代理
func New(cfg Config, repo domain.BackupRepository, clock timex.Clock, lg *zap.Logger) *Broker {
	if lg == nil {
		lg = zap.NewNop()
	}
	if clock == nil {
		clock = timex.System
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 10 * time.Minute
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{driveFileScope}
	}
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	return &Broker{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		repo:     repo,
		clock:    clock,
		logger:   lg.Named("oauth"),
		pending:  map[string]*PendingAuthorization{},
		byConfig: map[int64]string{},
	}
}

// Configured reports whether client id and secret are set
func (b *Broker) Configured() bool {
	return b.cfg.ClientID != "" && b.cfg.ClientSecret != ""
}

// ClientID 返回 OAuth 客户端 ID
func (b *Broker) ClientID() string     { return b.cfg.ClientID }
func (b *Broker) ClientSecret() string { return b.cfg.ClientSecret }

func (b *Broker) httpContext(ctx context.Context) context.Context {
	if b.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}
	return ctx
}

// AuthURL registers a pending authorization for configID and returns the consent URL.
// A newer request for the same config replaces the older one.
// AuthURL 为配置创建待处理授权并返回授权地址，新请求会替换旧请求
func (b *Broker) AuthURL(configID int64) (string, *PendingAuthorization, error) {
	if !b.Configured() {
		return "", nil, code.ErrorOAuthNotConfigured
	}
	p := &PendingAuthorization{
		State:     uuid.NewString(),
		ConfigID:  configID,
		ExpiresAt: b.clock.Now().Add(b.cfg.PendingTTL),
	}

	b.mu.Lock()
	if old, ok := b.byConfig[configID]; ok {
		delete(b.pending, old)
	}
	b.pending[p.State] = p
	b.byConfig[configID] = p.State
	b.mu.Unlock()

	url := b.oauth.AuthCodeURL(p.State, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	return url, p, nil
}

// take removes and returns the pending record of state when it has not expired
func (b *Broker) take(state string) (*PendingAuthorization, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[state]
	if !ok {
		return nil, false
	}
	delete(b.pending, state)
	if b.byConfig[p.ConfigID] == state {
		delete(b.byConfig, p.ConfigID)
	}
	if !b.clock.Now().Before(p.ExpiresAt) {
		return nil, false
	}
	return p, true
}

// HandleCallback exchanges the code and stores the token on the pending config.
// On failure the config stays in needs-auth state with the error recorded.
// HandleCallback 交换授权码并保存令牌，失败时配置保持待授权状态
func (b *Broker) HandleCallback(ctx context.Context, authCode, state string) (int64, error) {
	if !b.Configured() {
		return 0, code.ErrorOAuthNotConfigured
	}
	p, ok := b.take(state)
	if !ok {
		return 0, code.ErrorOAuthStateInvalid
	}
	log := b.logger.With(zap.Int64(logger.FieldConfigID, p.ConfigID))

	tok, err := b.oauth.Exchange(b.httpContext(ctx), authCode)
	if err != nil {
		msg := "authorization failed: " + err.Error()
		if uerr := b.repo.UpdateAuth(ctx, p.ConfigID, domain.AuthUpdate{NeedsAuth: true, Error: &msg}); uerr != nil {
			log.Error("record authorization failure", zap.Error(uerr))
		}
		log.Warn("code exchange failed", zap.Error(err))
		return p.ConfigID, code.ErrorOAuthExchange.WithDetails(err.Error())
	}

	none := ""
	if err := b.repo.UpdateAuth(ctx, p.ConfigID, domain.AuthUpdate{
		Token:  fromOAuth(tok),
		Error:  &none,
		Enable: true,
	}); err != nil {
		return p.ConfigID, err
	}
	log.Info("drive linked")
	return p.ConfigID, nil
}

// Deny records a consent the provider reported as refused or failed.
// Deny 记录被拒绝或失败的授权
func (b *Broker) Deny(ctx context.Context, state, reason string) (int64, error) {
	p, ok := b.take(state)
	if !ok {
		return 0, code.ErrorOAuthStateInvalid
	}
	msg := "authorization failed: " + reason
	if err := b.repo.UpdateAuth(ctx, p.ConfigID, domain.AuthUpdate{NeedsAuth: true, Error: &msg}); err != nil {
		b.logger.Error("record authorization failure", zap.Int64(logger.FieldConfigID, p.ConfigID), zap.Error(err))
	}
	b.logger.Warn("authorization denied", zap.Int64(logger.FieldConfigID, p.ConfigID), zap.String("reason", reason))
	return p.ConfigID, code.ErrorOAuthExchange.WithDetails(reason)
}

// Token returns a usable token for configID, refreshing it when needed. Concurrent
// callers for one config share a single refresh.
// Token 返回可用令牌，同一配置的并发刷新只执行一次
func (b *Broker) Token(ctx context.Context, configID int64) (*domain.GDriveToken, error) {
	v, err, _ := b.refresh.Do(strconv.FormatInt(configID, 10), func() (any, error) {
		return b.token(ctx, configID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.GDriveToken), nil
}

func (b *Broker) token(ctx context.Context, configID int64) (*domain.GDriveToken, error) {
	cfg, err := b.repo.GetConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	if cfg.Type != domain.BackupTypeGDrive || cfg.Params.GDrive == nil {
		return nil, code.ErrorInvalidConfig.WithDetails("config is not a gdrive config")
	}
	cur := cfg.Params.GDrive.Token
	if cur == nil || cur.RefreshToken == "" && cur.AccessToken == "" {
		return nil, code.ErrorAuthExpired.WithDetails("no token linked")
	}
	if cur.AccessToken != "" && (cur.Expiry.IsZero() || b.clock.Now().Add(expiryLeeway).Before(cur.Expiry)) {
		return cur, nil
	}
	if !b.Configured() {
		return nil, code.ErrorOAuthNotConfigured
	}
	if cur.RefreshToken == "" {
		return nil, b.expire(ctx, configID, "token expired and no refresh token is stored")
	}

	nt, err := b.oauth.TokenSource(b.httpContext(ctx), &oauth2.Token{RefreshToken: cur.RefreshToken}).Token()
	if err != nil {
		return nil, b.expire(ctx, configID, "token refresh failed: "+err.Error())
	}
	fresh := fromOAuth(nt)
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cur.RefreshToken
	}
	if err := b.repo.UpdateAuth(ctx, configID, domain.AuthUpdate{Token: fresh}); err != nil {
		return nil, err
	}
	b.logger.Debug("token refreshed", zap.Int64(logger.FieldConfigID, configID))
	return fresh, nil
}

func (b *Broker) expire(ctx context.Context, configID int64, msg string) error {
	if err := b.repo.UpdateAuth(ctx, configID, domain.AuthUpdate{NeedsAuth: true, Error: &msg}); err != nil {
		b.logger.Error("record expired token", zap.Int64(logger.FieldConfigID, configID), zap.Error(err))
	}
	b.logger.Warn("authorization expired", zap.Int64(logger.FieldConfigID, configID), zap.String("reason", msg))
	return code.ErrorAuthExpired.WithDetails(msg)
}

// Sweep drops expired pending authorizations and returns how many were removed.
// Sweep 清理过期的待处理授权
func (b *Broker) Sweep() int {
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for state, p := range b.pending {
		if !now.Before(p.ExpiresAt) {
			delete(b.pending, state)
			if b.byConfig[p.ConfigID] == state {
				delete(b.byConfig, p.ConfigID)
			}
			n++
		}
	}
	return n
}

// PendingCount 返回待处理授权数量
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func fromOAuth(t *oauth2.Token) *domain.GDriveToken {
	return &domain.GDriveToken{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}
