package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DatabaseConfig describes where tracked accounts and sync runs are stored.
type DatabaseConfig struct {
	Driver        string
	URL           string
	MigrationsDir string
	MaxOpenConns  int
	MaxIdleConns  int

	// Cloud SQL on Cloud Run, used when URL is empty
	InstanceConnectionName string
	User                   string
	Password               string
	Name                   string
}

// ConnectionString returns a PostgreSQL connection string that works with both
// local development and Google Cloud SQL on Cloud Run.
//
// A non-empty URL wins. Otherwise INSTANCE_CONNECTION_NAME selects the Unix
// socket Cloud Run mounts at /cloudsql/<instance>, and DB_USER and DB_NAME
// are required. An empty password means IAM authentication.
func (d DatabaseConfig) ConnectionString() (string, error) {
	if d.URL != "" {
		return d.URL, nil
	}

	if d.InstanceConnectionName == "" {
		return "", fmt.Errorf("neither DATABASE_URL nor INSTANCE_CONNECTION_NAME is set")
	}
	if d.User == "" || d.Name == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	parts := []string{
		"host=" + d.socketPath(),
		"user=" + d.User,
	}
	if d.Password != "" {
		parts = append(parts, "password="+d.Password)
	}
	parts = append(parts, "dbname="+d.Name, "sslmode=disable")

	return strings.Join(parts, " "), nil
}

// Describe returns connection details safe for logging.
func (d DatabaseConfig) Describe() map[string]string {
	desc := map[string]string{"driver": d.Driver}

	switch {
	case d.Driver == DriverMemory:
		desc["connection_type"] = "memory"
	case d.URL != "":
		desc["connection_type"] = "direct"
		desc["database_url"] = redactPassword(d.URL)
	case d.InstanceConnectionName != "":
		desc["connection_type"] = "cloud_sql"
		desc["instance"] = d.InstanceConnectionName
		desc["user"] = d.User
		desc["database"] = d.Name
		desc["socket_path"] = d.socketPath()
	default:
		desc["connection_type"] = "none"
	}

	return desc
}

func (d DatabaseConfig) socketPath() string {
	return "/cloudsql/" + d.InstanceConnectionName
}

func redactPassword(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	return u.Redacted()
}
