package connector

import (
	"context"
	"database/sql"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/internal/utils"
)

// DatabaseConnector handles the connection to a MySQL source system
type DatabaseConnector struct {
	Host     string
	User     string
	Password string
	Database string
	Port     string
	DB       *sql.DB
	Logger   *logrus.Logger
}

// NewDatabaseConnector creates a new database connector. Empty arguments
// fall back to the MYSQL_* environment variables.
func NewDatabaseConnector(host, user, password, database, port string, logger *logrus.Logger) *DatabaseConnector {
	if host == "" {
		host = utils.GetEnvOrDefault("MYSQL_HOST", "localhost")
	}
	if user == "" {
		user = utils.GetEnvOrDefault("MYSQL_USER", "root")
	}
	if password == "" {
		password = utils.GetEnvOrDefault("MYSQL_PASSWORD", "")
	}
	if database == "" {
		database = utils.GetEnvOrDefault("MYSQL_DATABASE", "")
	}
	if port == "" {
		port = utils.GetEnvOrDefault("MYSQL_PORT", "3306")
	}

	return &DatabaseConnector{
		Host:     host,
		User:     user,
		Password: password,
		Database: database,
		Port:     port,
		Logger:   logger,
	}
}

// DSN returns the driver connection string
func (dc *DatabaseConnector) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = dc.User
	cfg.Passwd = dc.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(dc.Host, dc.Port)
	cfg.DBName = dc.Database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// Connect establishes a connection to the MySQL database
func (dc *DatabaseConnector) Connect(ctx context.Context) error {
	if dc.Database == "" {
		return errors.New("database name must be provided either as an argument or as MYSQL_DATABASE environment variable")
	}

	db, err := sql.Open("mysql", dc.DSN())
	if err != nil {
		dc.Logger.Errorf("Error connecting to MySQL database: %v", err)
		return errors.Wrap(err, "opening MySQL connection")
	}

	if err := db.PingContext(ctx); err != nil {
		dc.Logger.Errorf("Error pinging MySQL database: %v", err)
		db.Close()
		return errors.Wrap(err, "pinging MySQL")
	}

	dc.DB = db
	dc.Logger.Infof("Connected to MySQL database: %s", dc.Database)
	return nil
}

// Disconnect closes the database connection
func (dc *DatabaseConnector) Disconnect() {
	if dc.DB != nil {
		if err := dc.DB.Close(); err != nil {
			dc.Logger.Errorf("Error closing database connection: %v", err)
		} else {
			dc.Logger.Info("MySQL connection closed")
		}
	}
}

// ExecuteQuery executes a SQL query and returns the rows keyed by column
// name. Text values are returned as strings.
func (dc *DatabaseConnector) ExecuteQuery(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error) {
	if dc.DB == nil {
		if err := dc.Connect(ctx); err != nil {
			return nil, err
		}
	}

	rows, err := dc.DB.QueryContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing query: %v", err)
		return nil, errors.Wrap(err, "executing query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "reading columns")
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, errors.Wrap(err, "scanning row")
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		dc.Logger.Errorf("Error iterating rows: %v", err)
		return nil, errors.Wrap(err, "iterating rows")
	}
	return results, nil
}
