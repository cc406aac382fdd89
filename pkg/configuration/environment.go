package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/magenta-aps/sdlon/pkg/logging"
)

const Production = "production"

// Job function sources. EmploymentName carries the free-text title from
// payroll, JobPositionIdentifier the numeric position code.
const (
	JobFunctionEmploymentName        = "EmploymentName"
	JobFunctionJobPositionIdentifier = "JobPositionIdentifier"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existingFiles = append(existingFiles, file)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

// SDOptions configures the payroll side.
type SDOptions struct {
	User                  string `env:"SD_USER,required"`
	Password              string `env:"SD_PASSWORD,required"`
	InstitutionIdentifier string `env:"SD_INSTITUTION_IDENTIFIER,required"`
	BaseURL               string `env:"SD_BASE_URL" envDefault:"https://service.sd.dk/sdws/"`

	// GlobalFromDate is the day the municipality went live on payroll
	// integration. Nothing before it is reconciled.
	GlobalFromDate time.Time `env:"SD_GLOBAL_FROM_DATE,required"`

	// ImportTooDeep lists the department level identifiers engagements may
	// not be placed on. Placements on these levels are elevated to the
	// nearest allowed ancestor.
	ImportTooDeep []string `env:"SD_IMPORT_TOO_DEEP" envSeparator:","`

	// MonthlyHourlyDivide splits numeric employment identifiers into
	// monthly paid (below) and hourly paid (at or above).
	MonthlyHourlyDivide int `env:"SD_MONTHLY_HOURLY_DIVIDE,required"`

	// JobFunction selects which payroll field becomes the MO job function.
	JobFunction string `env:"SD_JOB_FUNCTION" envDefault:"EmploymentName"`

	// NoSalaryMinimumID refuses engagements for externals whose job
	// position code is below this value. Zero disables the check.
	NoSalaryMinimumID int `env:"SD_NO_SALARY_MINIMUM_ID" envDefault:"0"`

	// SkipEmploymentTypes lists job position identifiers that never become
	// engagements.
	SkipEmploymentTypes []string `env:"SD_SKIP_EMPLOYMENT_TYPES" envSeparator:","`

	// CPRs to exclude from a run, or to exclusively include when
	// ExcludeCPRsMode is false.
	CPRs            []string `env:"SD_CPRS" envSeparator:","`
	ExcludeCPRsMode bool     `env:"SD_EXCLUDE_CPRS_MODE" envDefault:"true"`

	FixDepartmentsRoot              uuid.UUID `env:"SD_FIX_DEPARTMENTS_ROOT"`
	OverwriteExistingEmploymentName bool      `env:"SD_OVERWRITE_EXISTING_EMPLOYMENT_NAME" envDefault:"true"`
	PersistPayloads                 bool      `env:"SD_PERSIST_PAYLOADS" envDefault:"true"`
	SkipLeaveCreationIfNoEngagement bool      `env:"SD_SKIP_LEAVE_CREATION_IF_NO_ENGAGEMENT" envDefault:"false"`
	PrefixUserKeyWithInstitutionID  bool      `env:"SD_PREFIX_ENG_USER_KEY_WITH_INST_ID" envDefault:"false"`
}

// MOOptions configures the organizational record store.
type MOOptions struct {
	BaseURL  string `env:"MORA_BASE" envDefault:"http://mo-service:5000"`
	APIToken string `env:"MO_API_TOKEN"`
	PageSize int    `env:"MO_PAGE_SIZE" envDefault:"100"`
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"sd"`
	Host     string `env:"DB_HOST" envDefault:"sd-db"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"sd"`
	Password string `env:"DB_PASSWORD" envDefault:"sd"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/metrics"`
}

type Configuration struct {
	SD         SDOptions
	MO         MOOptions
	Database   DatabaseOptions
	Prometheus PrometheusOptions

	MunicipalityCode int    `env:"MUNICIPALITY_CODE,required"`
	MunicipalityName string `env:"MUNICIPALITY_NAME,required"`

	ServerPort       int    `env:"PORT" envDefault:"8000"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogToFile bool   `env:"LOG_TO_FILE" envDefault:"false"`
	LogPath   string `env:"LOG_PATH" envDefault:"./logs/sd.log"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.ParseWithOptions(c, env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Time{}): func(v string) (interface{}, error) {
				return time.Parse("2006-01-02", v)
			},
			reflect.TypeOf(uuid.UUID{}): func(v string) (interface{}, error) {
				return uuid.Parse(v)
			},
		},
	}); err != nil {
		return err
	}

	if err := c.validateSD(); err != nil {
		return err
	}

	if c.LogToFile {
		f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
		if err != nil {
			return err
		}
		c.logFile = f
		c.logger = logger
	} else {
		c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	}

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}

	return nil
}

func (c *Configuration) validateSD() error {
	switch c.SD.JobFunction {
	case JobFunctionEmploymentName, JobFunctionJobPositionIdentifier:
	default:
		return fmt.Errorf(
			"invalid SD_JOB_FUNCTION=%q (expected %s|%s)",
			c.SD.JobFunction, JobFunctionEmploymentName, JobFunctionJobPositionIdentifier,
		)
	}
	if c.SD.MonthlyHourlyDivide <= 0 {
		return fmt.Errorf("SD_MONTHLY_HOURLY_DIVIDE must be positive, got %d", c.SD.MonthlyHourlyDivide)
	}
	for _, cpr := range c.SD.CPRs {
		if len(cpr) != 10 {
			return fmt.Errorf("invalid SD_CPRS entry of length %d", len(cpr))
		}
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		_ = c.logFile.Close()
		c.logFile = nil
	}
}
