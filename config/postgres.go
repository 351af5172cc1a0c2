package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// PostgresConfig defines the configuration for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SSM parameter names holding the production credentials.
const (
	ssmDBHost     = "MARKETSYNC_DB_HOST"
	ssmDBUser     = "MARKETSYNC_DB_USER"
	ssmDBPassword = "MARKETSYNC_DB_PASSWORD"
)

// DSN builds the connection string. In "prod" host and credentials come from
// AWS SSM Parameter Store; everywhere else from the config file.
func (cfg *PostgresConfig) DSN(env string) string {
	return cfg.dsnFor(env, "")
}

// AdminDSN points at the maintenance database so the target one can be created.
func (cfg *PostgresConfig) AdminDSN(env string) string {
	return cfg.dsnFor(env, "postgres")
}

func (cfg *PostgresConfig) dsnFor(env, dbName string) string {
	host, user, password := cfg.Host, cfg.User, cfg.Password
	if env == "prod" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		params, err := loadParameters(ctx, ssmDBHost, ssmDBUser, ssmDBPassword)
		cancel()
		// Missing parameters keep the values from the config file.
		if err == nil {
			host = pick(params[ssmDBHost], host)
			user = pick(params[ssmDBUser], user)
			password = pick(params[ssmDBPassword], password)
		}
	}
	if dbName == "" {
		dbName = cfg.DBName
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.Port, user, password, dbName, cfg.SSLMode,
	)
	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}
	return dsn
}

func pick(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// loadParameters fetches decrypted SSM parameters in one call, keyed by name.
func loadParameters(ctx context.Context, names ...string) (map[string]string, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	out, err := ssm.NewFromConfig(awsCfg).GetParameters(ctx, &ssm.GetParametersInput{
		Names:          names,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get ssm parameters: %w", err)
	}

	params := make(map[string]string, len(out.Parameters))
	for _, p := range out.Parameters {
		if p.Name != nil && p.Value != nil {
			params[*p.Name] = *p.Value
		}
	}
	return params, nil
}
