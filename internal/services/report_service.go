package services

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/isdelr/neuroscan-be/internal/models"
	"github.com/rs/zerolog/log"
)

// ReportServiceProvider defines the interface for report services.
type ReportServiceProvider interface {
	CreateReport(ctx context.Context, userID int64, content, createTime string) (models.Report, error)
	ListReports(ctx context.Context, userID int64) ([]models.Report, error)
}

// ReportService stores and retrieves generated diagnostic reports.
type ReportService struct {
	db *sql.DB
}

// NewReportService creates a new ReportService.
func NewReportService(db *sql.DB) *ReportService {
	return &ReportService{db: db}
}

// CreateReport inserts a report row. createTime is the visit date the report was written for.
func (s *ReportService) CreateReport(ctx context.Context, userID int64, content, createTime string) (models.Report, error) {
	report := models.Report{
		ID:         uuid.New().String(),
		UserID:     userID,
		Content:    content,
		CreateTime: createTime,
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to acquire database connection")
		return models.Report{}, err
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx, "INSERT INTO reports (id, user_id, content, create_time) VALUES (?, ?, ?, ?)",
		report.ID, report.UserID, report.Content, report.CreateTime)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to insert report")
		return models.Report{}, err
	}
	return report, nil
}

// ListReports returns every report belonging to a user, oldest first.
func (s *ReportService) ListReports(ctx context.Context, userID int64) ([]models.Report, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to acquire database connection")
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, "SELECT id, user_id, content, create_time FROM reports WHERE user_id = ? ORDER BY create_time, rowid", userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to query reports")
		return nil, err
	}
	defer rows.Close()

	reports := []models.Report{}
	for rows.Next() {
		var report models.Report
		if err := rows.Scan(&report.ID, &report.UserID, &report.Content, &report.CreateTime); err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}
