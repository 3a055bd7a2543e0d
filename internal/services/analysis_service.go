package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"

	"github.com/isdelr/neuroscan-be/internal/inference"
	"github.com/isdelr/neuroscan-be/internal/models"
	"github.com/isdelr/neuroscan-be/internal/overlay"
	"github.com/rs/zerolog/log"
)

// DefaultConfidenceThreshold is the minimum detector confidence for a region to count.
const DefaultConfidenceThreshold = 0.5

// ErrInvalidImage is returned when an upload cannot be decoded as an image.
var ErrInvalidImage = errors.New("invalid image")

// Analysis is the outcome of one scan upload.
type Analysis struct {
	ProcessedImage string // base64 PNG
	Report         string
	Detections     []models.Detection // qualifying detections only
	ReportID       string             // empty when no report was stored
}

// Preview is the outcome of a demo run: every detection drawn, no report.
type Preview struct {
	OriginalImage  string
	ProcessedImage string
	Detections     []models.Detection
}

// AnalysisServiceProvider defines the interface for the scan pipeline.
type AnalysisServiceProvider interface {
	Analyze(ctx context.Context, userID int64, data []byte) (Analysis, error)
	Preview(ctx context.Context, data []byte) (Preview, error)
}

// AnalysisService runs detection, segmentation, overlay and report generation.
type AnalysisService struct {
	detector  inference.Detector
	segmenter inference.Segmenter
	users     UserServiceProvider
	reports   ReportServiceProvider
	chat      ChatServiceProvider
	events    EventServiceProvider
	threshold float64
	maxPixels int64
}

// NewAnalysisService creates a new AnalysisService.
func NewAnalysisService(detector inference.Detector, segmenter inference.Segmenter, users UserServiceProvider, reports ReportServiceProvider, chat ChatServiceProvider, events EventServiceProvider, threshold float64, maxPixels int64) *AnalysisService {
	return &AnalysisService{
		detector:  detector,
		segmenter: segmenter,
		users:     users,
		reports:   reports,
		chat:      chat,
		events:    events,
		threshold: threshold,
		maxPixels: maxPixels,
	}
}

// Analyze runs the full pipeline for one upload. A report is generated and
// stored only when at least one detection reaches the confidence threshold.
func (s *AnalysisService) Analyze(ctx context.Context, userID int64, data []byte) (Analysis, error) {
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		return Analysis{}, err
	}

	img, err := overlay.Decode(data, s.maxPixels)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	kept, err := s.annotate(ctx, img, s.threshold, false)
	if err != nil {
		return Analysis{}, err
	}

	encoded, err := overlay.EncodeBase64PNG(img)
	if err != nil {
		return Analysis{}, err
	}

	result := Analysis{ProcessedImage: encoded, Detections: kept}
	s.recordEvent(ctx, "scan.analyze", "info", fmt.Sprintf("Scan analyzed: %d region(s) above threshold", len(kept)), &userID)

	if len(kept) == 0 {
		result.Report = NoFindingsMessage
		return result, nil
	}

	tumorTypes := make([]string, 0, len(kept))
	for _, det := range kept {
		tumorTypes = append(tumorTypes, TumorName(det.Label))
	}

	prompt := BuildReportPrompt(profile, tumorTypes)
	report, _, err := s.chat.Ask(ctx, strconv.FormatInt(userID, 10), prompt)
	if err != nil {
		return Analysis{}, fmt.Errorf("generate report: %w", err)
	}

	stored, err := s.reports.CreateReport(ctx, userID, report, profile.VisitDate)
	if err != nil {
		return Analysis{}, fmt.Errorf("store report: %w", err)
	}

	log.Info().Int64("user_id", userID).Str("report_id", stored.ID).Int("regions", len(kept)).Msg("Diagnostic report created")
	s.recordEvent(ctx, "report.create", "info", "Diagnostic report created", &userID)

	result.Report = report
	result.ReportID = stored.ID
	return result, nil
}

// Preview draws and segments every detection regardless of confidence. Nothing is stored.
func (s *AnalysisService) Preview(ctx context.Context, data []byte) (Preview, error) {
	img, err := overlay.Decode(data, s.maxPixels)
	if err != nil {
		return Preview{}, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	original, err := overlay.EncodeBase64PNG(img)
	if err != nil {
		return Preview{}, err
	}

	kept, err := s.annotate(ctx, img, 0, true)
	if err != nil {
		return Preview{}, err
	}

	processed, err := overlay.EncodeBase64PNG(img)
	if err != nil {
		return Preview{}, err
	}
	return Preview{OriginalImage: original, ProcessedImage: processed, Detections: kept}, nil
}

// annotate detects on img, then for every detection at or above minConfidence
// draws it and blends its masks into img. It returns the detections that were
// drawn. The segmenter is prompted with the working image as annotated so far,
// or with an untouched copy of the scan when fromSource is set.
func (s *AnalysisService) annotate(ctx context.Context, img *image.RGBA, minConfidence float64, fromSource bool) ([]models.Detection, error) {
	detections, err := s.detector.Detect(ctx, img)
	if err != nil {
		return nil, err
	}

	var source image.Image = img
	if fromSource {
		source = overlay.Clone(img)
	}

	kept := make([]models.Detection, 0, len(detections))
	for _, det := range detections {
		if det.Confidence < minConfidence {
			continue
		}
		kept = append(kept, det)

		overlay.DrawDetection(img, det)

		masks, err := s.segmenter.Segment(ctx, source, det.Box)
		if err != nil {
			return nil, err
		}
		for _, mask := range masks {
			overlay.BlendMask(img, mask)
		}
	}
	return kept, nil
}

func (s *AnalysisService) recordEvent(ctx context.Context, eventType, level, message string, userID *int64) {
	if s.events == nil {
		return
	}
	if err := s.events.CreateEvent(ctx, eventType, level, message, userID); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("Failed to record event")
	}
}
