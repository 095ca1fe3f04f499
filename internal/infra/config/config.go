package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig describes the bot configuration.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token string `envconfig:"BOT_TOKEN" required:"true"`
	} `envconfig:""`

	Admin struct {
		// IDs is the allow-list for /lista and the error fan-out target.
		IDs []int64 `envconfig:"ADMIN_IDS"`
		// Notify is the primary recipient of submissions and contact
		// messages, either a numeric chat id or an @username.
		Notify string `envconfig:"ADMIN_NOTIFY" default:"@juanpedro233"`
	} `envconfig:""`

	Sheets struct {
		SpreadsheetID string `envconfig:"SPREADSHEET_ID"`
		SheetName     string `envconfig:"SHEET_NAME" default:"R2R_Listings"`
		// Creds is either a raw service-account JSON blob or a path to one.
		Creds string `envconfig:"GOOGLE_CREDS_JSON"`
	} `envconfig:""`

	// PGDSN switches the listings repository to Postgres when set.
	PGDSN string `envconfig:"PG_DSN"`

	// RedisAddr switches the session store to Redis when set.
	RedisAddr string `envconfig:"REDIS_ADDR"`

	Session struct {
		TTL time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	} `envconfig:""`

	Uploads struct {
		Dir string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	} `envconfig:""`

	Manuals struct {
		SamplePDFURL string `envconfig:"SAMPLE_PDF_URL" default:"https://example.com/calculadora_rentabilidad.pdf"`
	} `envconfig:""`

	Limits struct {
		ResultWindow int `envconfig:"RESULT_WINDOW" default:"5"`
		AdminRecent  int `envconfig:"ADMIN_RECENT" default:"10"`
	} `envconfig:""`
}

// Load reads an optional .env file and the environment. A missing bot token
// is fatal: the process must not start without credentials.
func Load() AppConfig {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	return cfg
}
