package dao

import (
	"context"
	"encoding/json"
	"time"

	"github.com/haierkeys/library-backup-service/internal/domain"
	"github.com/haierkeys/library-backup-service/internal/model"
	"github.com/haierkeys/library-backup-service/pkg/code"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Sealer encrypts the params column. A nil Sealer stores plaintext JSON.
type Sealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

type backupRepository struct {
	dao    *Dao
	sealer Sealer
}

// NewBackupRepository 创建 BackupRepository 实例
func NewBackupRepository(dao *Dao, sealer Sealer) domain.BackupRepository {
	return &backupRepository{dao: dao, sealer: sealer}
}

func (r *backupRepository) configToDomain(m *model.BackupConfig) (*domain.BackupConfig, error) {
	raw := m.Params
	if r.sealer != nil {
		var err error
		if raw, err = r.sealer.Open(raw); err != nil {
			return nil, errors.Wrapf(err, "open params of config %d", m.ID)
		}
	}
	params, err := domain.DecodeParams(domain.BackupType(m.Type), []byte(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "decode params of config %d", m.ID)
	}
	return &domain.BackupConfig{
		ID:               m.ID,
		Name:             m.Name,
		Type:             domain.BackupType(m.Type),
		Schedule:         domain.Schedule(m.Schedule),
		RemotePath:       m.RemotePath,
		Params:           params,
		Enabled:          m.Enabled,
		LastBackupStatus: domain.RunStatus(m.LastBackupStatus),
		LastBackupAt:     m.LastBackupAt,
		LastBackupError:  m.LastBackupError,
		NeedsAuth:        m.NeedsAuth,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}, nil
}

func (r *backupRepository) sealParams(p domain.BackupParams) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", errors.Wrap(err, "marshal params")
	}
	if r.sealer == nil {
		return string(b), nil
	}
	return r.sealer.Seal(string(b))
}

func (r *backupRepository) configToModel(d *domain.BackupConfig) (*model.BackupConfig, error) {
	params, err := r.sealParams(d.Params)
	if err != nil {
		return nil, err
	}
	return &model.BackupConfig{
		ID:               d.ID,
		Name:             d.Name,
		Type:             string(d.Type),
		Schedule:         string(d.Schedule),
		RemotePath:       d.RemotePath,
		Params:           params,
		Enabled:          d.Enabled,
		NeedsAuth:        d.NeedsAuth,
		LastBackupStatus: string(d.LastBackupStatus),
		LastBackupAt:     d.LastBackupAt,
		LastBackupError:  d.LastBackupError,
	}, nil
}

func logToDomain(m *model.BackupLog) *domain.BackupLog {
	l := &domain.BackupLog{
		ID:               m.ID,
		ConfigID:         m.ConfigID,
		StartedAt:        m.StartedAt,
		FinishedAt:       m.FinishedAt,
		Status:           domain.RunStatus(m.Status),
		FilesTransferred: m.FilesTransferred,
		BytesTransferred: m.BytesTransferred,
		ErrorMessage:     m.ErrorMessage,
	}
	if m.DetailsJSON != "" {
		var d domain.BackupDetails
		if json.Unmarshal([]byte(m.DetailsJSON), &d) == nil {
			l.Details = &d
		}
	}
	return l
}

func logToModel(d *domain.BackupLog) *model.BackupLog {
	m := &model.BackupLog{
		ID:               d.ID,
		ConfigID:         d.ConfigID,
		StartedAt:        d.StartedAt,
		FinishedAt:       d.FinishedAt,
		Status:           string(d.Status),
		FilesTransferred: d.FilesTransferred,
		BytesTransferred: d.BytesTransferred,
		ErrorMessage:     d.ErrorMessage,
	}
	if d.Details != nil {
		if b, err := json.Marshal(d.Details); err == nil {
			m.DetailsJSON = string(b)
		}
	}
	return m
}

func notFound(id int64) error {
	return code.ErrorBackupConfigNotFound.WithDetails("config " + itoa(id))
}

func (r *backupRepository) CreateConfig(ctx context.Context, cfg *domain.BackupConfig) (*domain.BackupConfig, error) {
	m, err := r.configToModel(cfg)
	if err != nil {
		return nil, err
	}
	m.ID = 0
	err = r.dao.ExecuteWrite(ctx, 0, func(db *gorm.DB) error {
		return db.Create(m).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "create config")
	}
	return r.configToDomain(m)
}

// UpdateConfig reads the stored config, lets apply edit it and writes the editable
// columns back, all on the config's write lane, so auth updates (token refresh,
// callback) never interleave with the read.
// UpdateConfig 在同一写通道内完成读取、合并与写回
func (r *backupRepository) UpdateConfig(ctx context.Context, id int64, apply func(cfg *domain.BackupConfig) error) (*domain.BackupConfig, error) {
	err := r.dao.ExecuteWrite(ctx, id, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			var m model.BackupConfig
			if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFound(id)
				}
				return err
			}
			cfg, err := r.configToDomain(&m)
			if err != nil {
				return err
			}
			if err := apply(cfg); err != nil {
				return err
			}
			params, err := r.sealParams(cfg.Params)
			if err != nil {
				return err
			}
			return tx.Model(&model.BackupConfig{}).Where("id = ?", id).Updates(map[string]any{
				"name":        cfg.Name,
				"schedule":    string(cfg.Schedule),
				"remote_path": cfg.RemotePath,
				"params":      params,
				"enabled":     cfg.Enabled,
				"updated_at":  time.Now(),
			}).Error
		})
	})
	if err != nil {
		return nil, err
	}
	return r.GetConfig(ctx, id)
}

func (r *backupRepository) GetConfig(ctx context.Context, id int64) (*domain.BackupConfig, error) {
	var m model.BackupConfig
	if err := r.dao.DB(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(id)
		}
		return nil, errors.Wrap(err, "get config")
	}
	return r.configToDomain(&m)
}

func (r *backupRepository) ListConfigs(ctx context.Context) ([]*domain.BackupConfig, error) {
	var rows []*model.BackupConfig
	if err := r.dao.DB(ctx).Order("id asc").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list configs")
	}
	out := make([]*domain.BackupConfig, 0, len(rows))
	for _, m := range rows {
		c, err := r.configToDomain(m)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *backupRepository) DeleteConfig(ctx context.Context, id int64) error {
	return r.dao.ExecuteWrite(ctx, id, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("config_id = ?", id).Delete(&model.BackupLog{}).Error; err != nil {
				return err
			}
			res := tx.Where("id = ?", id).Delete(&model.BackupConfig{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return notFound(id)
			}
			return nil
		})
	})
}

func (r *backupRepository) UpdateAuth(ctx context.Context, id int64, u domain.AuthUpdate) error {
	return r.dao.ExecuteWrite(ctx, id, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			var m model.BackupConfig
			if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFound(id)
				}
				return err
			}
			updates := map[string]any{
				"needs_auth": u.NeedsAuth,
				"updated_at": time.Now(),
			}
			if u.Error != nil {
				updates["last_backup_error"] = *u.Error
			}
			if u.Enable {
				updates["enabled"] = true
			}
			if u.Token != nil {
				cfg, err := r.configToDomain(&m)
				if err != nil {
					return err
				}
				if cfg.Params.GDrive == nil {
					return code.ErrorInvalidConfig.WithDetails("config is not a gdrive config")
				}
				cfg.Params.GDrive.Token = u.Token
				sealed, err := r.sealParams(cfg.Params)
				if err != nil {
					return err
				}
				updates["params"] = sealed
			}
			return tx.Model(&model.BackupConfig{}).Where("id = ?", id).Updates(updates).Error
		})
	})
}

func (r *backupRepository) AppendLog(ctx context.Context, log *domain.BackupLog) (*domain.BackupLog, error) {
	m := logToModel(log)
	m.ID = 0
	err := r.dao.ExecuteWrite(ctx, log.ConfigID, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			var n int64
			if err := tx.Model(&model.BackupConfig{}).Where("id = ?", log.ConfigID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return notFound(log.ConfigID)
			}
			if log.Status == domain.RunStatusRunning {
				var running int64
				if err := tx.Model(&model.BackupLog{}).
					Where("config_id = ? AND status = ?", log.ConfigID, string(domain.RunStatusRunning)).
					Count(&running).Error; err != nil {
					return err
				}
				if running > 0 {
					return code.ErrorAlreadyRunning.WithDetails("config " + itoa(log.ConfigID))
				}
			}
			if err := tx.Create(m).Error; err != nil {
				return err
			}
			if log.Status == domain.RunStatusRunning {
				return tx.Model(&model.BackupConfig{}).Where("id = ?", log.ConfigID).
					Update("last_backup_status", string(domain.RunStatusRunning)).Error
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return logToDomain(m), nil
}

func (r *backupRepository) FinalizeRun(ctx context.Context, log *domain.BackupLog, retention int) error {
	if log.Status != domain.RunStatusSuccess && log.Status != domain.RunStatusFailed {
		return errors.Errorf("finalize with non-terminal status %q", log.Status)
	}
	m := logToModel(log)
	if m.FinishedAt == nil {
		now := time.Now()
		m.FinishedAt = &now
	}

	return r.dao.ExecuteWrite(ctx, log.ConfigID, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&model.BackupLog{}).
				Where("id = ? AND status = ?", log.ID, string(domain.RunStatusRunning)).
				Updates(map[string]any{
					"status":            m.Status,
					"finished_at":       m.FinishedAt,
					"files_transferred": m.FilesTransferred,
					"bytes_transferred": m.BytesTransferred,
					"error_message":     m.ErrorMessage,
					"details_json":      m.DetailsJSON,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errors.Errorf("log %d is not running", log.ID)
			}

			startedAt := log.StartedAt
			if err := tx.Model(&model.BackupConfig{}).Where("id = ?", log.ConfigID).Updates(map[string]any{
				"last_backup_status": m.Status,
				"last_backup_at":     &startedAt,
				"last_backup_error":  m.ErrorMessage,
			}).Error; err != nil {
				return err
			}

			if retention <= 0 {
				return nil
			}
			keep := tx.Model(&model.BackupLog{}).Select("id").
				Where("config_id = ?", log.ConfigID).
				Order("started_at desc, id desc").
				Limit(retention)
			return tx.Where("config_id = ? AND id NOT IN (?)", log.ConfigID, keep).Delete(&model.BackupLog{}).Error
		})
	})
}

func (r *backupRepository) ListLogs(ctx context.Context, configID int64, limit int) ([]*domain.BackupLog, error) {
	var rows []*model.BackupLog
	err := r.dao.DB(ctx).Where("config_id = ?", configID).
		Order("started_at desc, id desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list logs")
	}
	out := make([]*domain.BackupLog, 0, len(rows))
	for _, m := range rows {
		out = append(out, logToDomain(m))
	}
	return out, nil
}

func (r *backupRepository) HasSuccessfulLog(ctx context.Context, configID int64) (bool, error) {
	var n int64
	err := r.dao.DB(ctx).Model(&model.BackupLog{}).
		Where("config_id = ? AND status = ?", configID, string(domain.RunStatusSuccess)).
		Count(&n).Error
	if err != nil {
		return false, errors.Wrap(err, "count successful logs")
	}
	return n > 0, nil
}

// RecoverInterrupted runs on the store-wide lane before any backup can start.
func (r *backupRepository) RecoverInterrupted(ctx context.Context, at time.Time, message string) (int, error) {
	details, _ := json.Marshal(&domain.BackupDetails{ErrorKind: domain.ErrorKindInterrupted})
	var recovered int
	err := r.dao.ExecuteWrite(ctx, 0, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			var stale []*model.BackupLog
			if err := tx.Where("status = ?", string(domain.RunStatusRunning)).Find(&stale).Error; err != nil {
				return err
			}
			for _, l := range stale {
				if err := tx.Model(&model.BackupLog{}).Where("id = ?", l.ID).Updates(map[string]any{
					"status":        string(domain.RunStatusFailed),
					"finished_at":   &at,
					"error_message": message,
					"details_json":  string(details),
				}).Error; err != nil {
					return err
				}
			}
			recovered = len(stale)
			return tx.Model(&model.BackupConfig{}).
				Where("last_backup_status = ?", string(domain.RunStatusRunning)).
				Updates(map[string]any{
					"last_backup_status": string(domain.RunStatusFailed),
					"last_backup_error":  message,
				}).Error
		})
	})
	return recovered, err
}
