package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vpn-sentinel/pkg/model"
)

type cycleRow struct {
	ID         uint      `gorm:"primaryKey"`
	Host       string    `gorm:"size:255;index"`
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time
	Status     string `gorm:"size:16"`
	Failed     int
	Warned     int
	Summary    string `gorm:"type:text"`
}

func (cycleRow) TableName() string { return "sentinel_cycles" }

type alertRow struct {
	ID        uint      `gorm:"primaryKey"`
	Host      string    `gorm:"size:255;index"`
	Timestamp time.Time `gorm:"index"`
	Severity  string    `gorm:"size:16"`
	Message   string    `gorm:"type:text"`
}

func (alertRow) TableName() string { return "sentinel_alerts" }

// MySQL is a journal in a shared MySQL database, used when several gateways
// report into one place. Rows carry the gateway host name.
type MySQL struct {
	db   *gorm.DB
	host string
}

// OpenMySQL connects with dsn, creating the database if it is missing, and
// migrates the journal tables.
func OpenMySQL(dsn string) (*MySQL, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	db, err := gorm.Open(mysql.Open(dsn), cfg)
	if err != nil {
		if !strings.Contains(err.Error(), "Unknown database") {
			return nil, err
		}
		if cerr := createDatabase(dsn); cerr != nil {
			return nil, fmt.Errorf("create database failed: %w", cerr)
		}
		if db, err = gorm.Open(mysql.Open(dsn), cfg); err != nil {
			return nil, err
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(4)
	if err := db.AutoMigrate(&cycleRow{}, &alertRow{}); err != nil {
		return nil, err
	}
	return &MySQL{db: db, host: hostname()}, nil
}

func createDatabase(dsn string) error {
	server, name, err := serverDSN(dsn)
	if err != nil {
		return err
	}
	db, err := sql.Open("mysql", server)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4", name))
	return err
}

// serverDSN splits dsn into a DSN without the database, keeping every
// connection parameter, and the database name.
func serverDSN(dsn string) (string, string, error) {
	parsed, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return "", "", err
	}
	name := parsed.DBName
	if name == "" || strings.ContainsAny(name, "`/\\") {
		return "", "", fmt.Errorf("invalid database name %q", name)
	}
	parsed.DBName = ""
	return parsed.FormatDSN(), name, nil
}

func (j *MySQL) SaveCycle(ctx context.Context, s model.RunSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return j.db.WithContext(ctx).Create(&cycleRow{
		Host:       j.host,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Status:     string(s.Status),
		Failed:     s.Failed,
		Warned:     s.Warned,
		Summary:    string(data),
	}).Error
}

func (j *MySQL) SaveAlert(ctx context.Context, a model.AlertRecord) error {
	return j.db.WithContext(ctx).Create(&alertRow{
		Host:      j.host,
		Timestamp: a.Timestamp,
		Severity:  string(a.Severity),
		Message:   a.Message,
	}).Error
}

func (j *MySQL) Cycles(ctx context.Context, limit int) ([]model.RunSummary, error) {
	var rows []cycleRow
	err := j.db.WithContext(ctx).Where("host = ?", j.host).Order("id desc").Limit(clampLimit(limit)).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.RunSummary, 0, len(rows))
	for _, r := range rows {
		var s model.RunSummary
		if err := json.Unmarshal([]byte(r.Summary), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (j *MySQL) Alerts(ctx context.Context, limit int) ([]model.AlertRecord, error) {
	var rows []alertRow
	err := j.db.WithContext(ctx).Where("host = ?", j.host).Order("id desc").Limit(clampLimit(limit)).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.AlertRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.AlertRecord{Severity: model.Severity(r.Severity), Message: r.Message, Timestamp: r.Timestamp})
	}
	return out, nil
}

func (j *MySQL) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}
