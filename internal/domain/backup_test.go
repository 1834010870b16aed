package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/haierkeys/library-backup-service/pkg/code"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams(t BackupType) string {
	switch t {
	case BackupTypeGDrive:
		return `{"folderId":"abc"}`
	case BackupTypeWebDAV:
		return `{"url":"https://dav.example.com/remote.php/dav","user":"alice","password":"pw"}`
	case BackupTypeS3:
		return `{"region":"eu-west-1","bucket":"music","accessKeyId":"AK","secretAccessKey":"SK"}`
	case BackupTypeSFTP:
		return `{"host":"nas.local","user":"bob","password":"pw"}`
	case BackupTypeLocal:
		return `{"targetDir":"/tmp/b","keepCount":3}`
	}
	return `{}`
}

func TestParamsShapeMatchesType(t *testing.T) {
	for _, typ := range BackupTypes {
		p, err := DecodeParams(typ, []byte(validParams(typ)))
		require.NoError(t, err, typ)
		cfg := &BackupConfig{Name: "x", Type: typ, Schedule: ScheduleManual, Params: p}
		assert.NoError(t, cfg.Validate(), typ)
	}
}

// Property: params written for one type never validate for another.
func TestParamsForOtherTypeRejected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	n := len(BackupTypes)
	properties.Property("cross-type params are InvalidConfig", prop.ForAll(
		func(i, j int) bool {
			if i == j {
				return true
			}
			from, to := BackupTypes[i], BackupTypes[j]
			p, err := DecodeParams(to, []byte(validParams(from)))
			if err != nil {
				return errors.Is(err, code.ErrorInvalidConfig)
			}
			// decoded shape is to's; it must then fail required fields unless from's payload happened to fit
			cfg := &BackupConfig{Name: "x", Type: to, Schedule: ScheduleManual, Params: p}
			return errors.Is(cfg.Validate(), code.ErrorInvalidConfig) || to == BackupTypeGDrive
		},
		gen.IntRange(0, n-1), gen.IntRange(0, n-1),
	))
	properties.TestingRun(t)
}

func TestValidateRejectsMixedShapes(t *testing.T) {
	cfg := &BackupConfig{
		Name: "mixed", Type: BackupTypeLocal, Schedule: ScheduleDaily,
		Params: BackupParams{Local: &LocalParams{TargetDir: "/tmp/b"}, S3: &S3Params{Bucket: "x"}},
	}
	assert.ErrorIs(t, cfg.Validate(), code.ErrorInvalidConfig)

	cfg.Params = BackupParams{}
	assert.ErrorIs(t, cfg.Validate(), code.ErrorInvalidConfig)
}

func TestUnknownTypeAndSchedule(t *testing.T) {
	_, err := DecodeParams("ftp", []byte(`{}`))
	assert.ErrorIs(t, err, code.ErrorInvalidConfig)

	cfg := &BackupConfig{Name: "x", Type: BackupTypeLocal, Schedule: "monthly",
		Params: BackupParams{Local: &LocalParams{TargetDir: "/tmp"}}}
	assert.ErrorIs(t, cfg.Validate(), code.ErrorInvalidConfig)
}

func TestSFTPNeedsOneAuthMethod(t *testing.T) {
	p, err := DecodeParams(BackupTypeSFTP, []byte(`{"host":"h","user":"u"}`))
	require.NoError(t, err)
	assert.ErrorIs(t, p.Validate(BackupTypeSFTP), code.ErrorInvalidConfig)

	p.Normalize()
	assert.Equal(t, 22, p.SFTP.Port)
}

func TestRedactAndKeepSecrets(t *testing.T) {
	stored, err := DecodeParams(BackupTypeWebDAV, []byte(validParams(BackupTypeWebDAV)))
	require.NoError(t, err)

	red := stored.Redacted()
	b, err := json.Marshal(red)
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://dav.example.com/remote.php/dav","user":"alice","password":"********"}`, string(b))
	assert.Equal(t, "pw", stored.WebDAV.Password, "redaction copies")

	patch, err := DecodeParams(BackupTypeWebDAV, b)
	require.NoError(t, err)
	patch.KeepSecrets(stored)
	assert.Equal(t, "pw", patch.WebDAV.Password)
}

func TestDue(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-59 * time.Minute)
	cfg := &BackupConfig{Enabled: true, Schedule: ScheduleHourly}

	assert.True(t, cfg.Due(now), "never ran")
	cfg.LastBackupAt = &last
	assert.False(t, cfg.Due(now))
	assert.True(t, cfg.Due(now.Add(time.Minute)))

	cfg.Schedule = ScheduleManual
	assert.False(t, cfg.Due(now.Add(time.Hour)))

	cfg.Schedule = ScheduleWeekly
	cfg.Enabled = false
	assert.False(t, cfg.Due(now.Add(30*24*time.Hour)))
}
