package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMySQLDSN(t *testing.T) {
	got := normalizeMySQLDSN("jdbc:mysql://db:3306/site?useSSL=false&characterEncoding=utf8&serverTimezone=UTC", "root", "secret")
	assert.Contains(t, got, "root:secret@tcp(db:3306)/site?")
	assert.Contains(t, got, "charset=utf8")
	assert.Contains(t, got, "tls=false")
	assert.Contains(t, got, "loc=UTC")
	assert.Contains(t, got, "parseTime=true")

	raw := "u:p@tcp(127.0.0.1:3306)/site"
	assert.Equal(t, raw, normalizeMySQLDSN(raw, "x", "y"))
}

func TestNormalizePostgresURL(t *testing.T) {
	assert.Equal(t, "postgresql://u:p@h/db", NormalizePostgresURL("postgres://u:p@h/db"))
	assert.Equal(t, "host=h user=u", NormalizePostgresURL("host=h user=u"))
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgresql://u:xxxxx@h/db", MaskDSN("postgresql://u:pw@h/db"))
	assert.Equal(t, "u:****@tcp(h)/db", MaskDSN("u:pw@tcp(h)/db"))
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "a.db?_busy_timeout=5000&_foreign_keys=on", sqliteDSN("sqlite://a.db"))
	assert.Equal(t, "a.db?mode=rw&_busy_timeout=5000&_foreign_keys=on", sqliteDSN("a.db?mode=rw"))
	assert.Equal(t, "a.db?_busy_timeout=1", sqliteDSN("a.db?_busy_timeout=1"))
}

func TestNewGormSQLite(t *testing.T) {
	db, err := NewGorm(Opts{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "x.db"), LogLevel: "silent", MaxOpenConns: 1})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()
	require.NoError(t, sqlDB.Ping())
}

func TestNewGormUnsupported(t *testing.T) {
	_, err := NewGorm(Opts{Driver: "oracle"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}
