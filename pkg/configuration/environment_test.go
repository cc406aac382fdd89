package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvSkipsMissingFiles(t *testing.T) {
	tmp := t.TempDir()
	envFile := filepath.Join(tmp, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SDLON_TEST_ENV_LOAD=ok\n"), 0o644))

	_ = os.Unsetenv("SDLON_TEST_ENV_LOAD")
	n, err := LoadEnv([]string{envFile, filepath.Join(tmp, ".env.local")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "ok", os.Getenv("SDLON_TEST_ENV_LOAD"))
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SD_USER", "sd-user")
	t.Setenv("SD_PASSWORD", "secret")
	t.Setenv("SD_INSTITUTION_IDENTIFIER", "XY")
	t.Setenv("SD_GLOBAL_FROM_DATE", "2019-01-01")
	t.Setenv("SD_MONTHLY_HOURLY_DIVIDE", "80000")
	t.Setenv("MUNICIPALITY_CODE", "740")
	t.Setenv("MUNICIPALITY_NAME", "Silkeborg")
}

func TestLoadParsesOptions(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SD_IMPORT_TOO_DEEP", "Afdelings-niveau,NY1-niveau")
	t.Setenv("LOG_LEVEL", "debug")

	c := &Configuration{}
	require.NoError(t, c.load(nil))
	t.Cleanup(c.Unload)

	assert.Equal(t, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), c.SD.GlobalFromDate)
	assert.Equal(t, []string{"Afdelings-niveau", "NY1-niveau"}, c.SD.ImportTooDeep)
	assert.Equal(t, JobFunctionEmploymentName, c.SD.JobFunction)
	assert.Contains(t, c.Database.Opts, "dbname=sd")
	assert.NotNil(t, c.Logger())
}

func TestLoadRejectsBadJobFunction(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SD_JOB_FUNCTION", "SomethingElse")

	c := &Configuration{}
	err := c.load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SD_JOB_FUNCTION")
}

func TestLoadRejectsBadCPR(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SD_CPRS", "0101011234,123")

	c := &Configuration{}
	err := c.load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SD_CPRS")
}
