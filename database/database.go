// Package database provides MySQL persistence for appraisals, uploaded
// images and synthesized audio summaries.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"

	"appraisal-service/config"
	"appraisal-service/models"
)

// Database wraps the MySQL connection pool.
type Database struct {
	db *sql.DB
}

// NewDatabase connects to MySQL with bounded retry and prepares the schema.
func NewDatabase(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// MySQL may still be starting; back off and retry before giving up.
	var pingErr error
	for i := 0; i < 10; i++ {
		pingErr = db.Ping()
		if pingErr == nil {
			break
		}
		wait := time.Duration(i+1) * time.Second
		log.Warnf("database not ready, retrying in %v: %v", wait, pingErr)
		time.Sleep(wait)
	}
	if pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	d := &Database{db: db}
	if err := d.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) createTables() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS appraisals (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(255),
			tier ENUM('basic', 'initial', 'full') NOT NULL DEFAULT 'full',
			image_urls TEXT NOT NULL,
			report JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_user_id (user_id),
			INDEX idx_created_at (created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS images (
			id VARCHAR(36) PRIMARY KEY,
			content_type VARCHAR(64) NOT NULL,
			data LONGBLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS audio_summaries (
			id VARCHAR(36) PRIMARY KEY,
			appraisal_id VARCHAR(36) NOT NULL,
			data LONGBLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_appraisal_id (appraisal_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// SaveAppraisal persists one completed appraisal.
func (d *Database) SaveAppraisal(ctx context.Context, a *models.Appraisal) error {
	reportJSON, err := json.Marshal(a.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO appraisals (id, user_id, tier, image_urls, report) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.UserID, string(a.Tier), strings.Join(a.ImageURLs, "\n"), reportJSON)
	if err != nil {
		return fmt.Errorf("failed to insert appraisal: %w", err)
	}
	return nil
}

// GetAppraisal loads one appraisal by ID. Returns sql.ErrNoRows when absent.
func (d *Database) GetAppraisal(ctx context.Context, id string) (*models.Appraisal, error) {
	var (
		a          models.Appraisal
		urls       string
		reportJSON []byte
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT id, user_id, tier, image_urls, report, created_at FROM appraisals WHERE id = ?`, id).
		Scan(&a.ID, &a.UserID, &a.Tier, &urls, &reportJSON, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	if urls != "" {
		a.ImageURLs = strings.Split(urls, "\n")
	}
	a.Report = &models.NormalizedReport{}
	if err := json.Unmarshal(reportJSON, a.Report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &a, nil
}

// SaveImage stores processed image bytes.
func (d *Database) SaveImage(ctx context.Context, id, contentType string, data []byte) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO images (id, content_type, data) VALUES (?, ?, ?)`, id, contentType, data)
	if err != nil {
		return fmt.Errorf("failed to insert image: %w", err)
	}
	return nil
}

// GetImage loads image bytes and content type by ID.
func (d *Database) GetImage(ctx context.Context, id string) (string, []byte, error) {
	var (
		contentType string
		data        []byte
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT content_type, data FROM images WHERE id = ?`, id).Scan(&contentType, &data)
	if err != nil {
		return "", nil, err
	}
	return contentType, data, nil
}

// SaveAudio stores a synthesized summary for an appraisal.
func (d *Database) SaveAudio(ctx context.Context, id, appraisalID string, data []byte) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO audio_summaries (id, appraisal_id, data) VALUES (?, ?, ?)`, id, appraisalID, data)
	if err != nil {
		return fmt.Errorf("failed to insert audio summary: %w", err)
	}
	return nil
}

// GetAudio loads synthesized audio by ID.
func (d *Database) GetAudio(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT data FROM audio_summaries WHERE id = ?`, id).Scan(&data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close releases the connection pool.
func (d *Database) Close() error {
	return d.db.Close()
}

// GetDB exposes the underlying pool for health checks.
func (d *Database) GetDB() *sql.DB {
	return d.db
}
