package submission

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"advocacy-engine/pkg/errutil"
	"advocacy-engine/pkg/sequence"
	"advocacy-engine/services/ledger"
	"advocacy-engine/services/oracle"
)

// Screenshots above this size are still analyzed but not archived.
const maxArchivedImageBytes = 10 << 20

// A screenshot verdict below this quality is flagged for manual review.
const minQualityScore = 3

// Ledger is the slice of the ledger service intake settles through.
type Ledger interface {
	ParticipantByID(ctx context.Context, id string) (*ledger.Participant, bool, error)
	IsDuplicate(ctx context.Context, participantID, fingerprint string) (bool, error)
	ApplySubmission(ctx context.Context, sub *ledger.Submission) (*ledger.Submission, *ledger.Participant, error)
}

// BlobStore archives screenshot evidence and returns the storage key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type Service struct {
	ledger Ledger
	oracle oracle.Analyzer
	blobs  BlobStore
	seq    sequence.Generator
}

type ServiceParams struct {
	fx.In

	Ledger   *ledger.Service
	Oracle   oracle.Analyzer
	Blobs    BlobStore `optional:"true"`
	Sequence sequence.Generator
}

func NewService(p ServiceParams) *Service {
	return &Service{
		ledger: p.Ledger,
		oracle: p.Oracle,
		blobs:  p.Blobs,
		seq:    p.Sequence,
	}
}

type SubmitRequest struct {
	ParticipantID string         `json:"participant_id"`
	Text          string         `json:"text"`
	URLs          []string       `json:"urls"`
	Images        []ImagePayload `json:"images"`
	Channel       string         `json:"channel"`
	IsReply       bool           `json:"is_reply"`
}

type ItemResult struct {
	ID                 string                   `json:"id"`
	ReferenceCode      string                   `json:"reference_code"`
	Platform           string                   `json:"platform"`
	ContentType        string                   `json:"content_type"`
	SourceReference    string                   `json:"source_reference"`
	ContentFingerprint string                   `json:"content_fingerprint"`
	PointsAwarded      int64                    `json:"points_awarded"`
	IsDuplicate        bool                     `json:"is_duplicate"`
	ValidityStatus     string                   `json:"validity_status"`
	EngagementMetrics  ledger.EngagementMetrics `json:"engagement_metrics"`
}

type SubmitResult struct {
	Items       []ItemResult        `json:"items"`
	TotalPoints int64               `json:"total_points_awarded"`
	Participant *ledger.Participant `json:"participant,omitempty"`
}

// item is one unit of content on its way through the pipeline: either a URL
// or a screenshot, never both.
type item struct {
	url   string
	image []byte
	mime  string
	name  string

	platform    string
	contentType string
	fingerprint string
	metrics     ledger.EngagementMetrics
	validity    string
	points      int64
	sourceRef   string
	payload     datatypes.JSON
}

// Submit runs one message through the whole intake pipeline: extraction,
// platform detection, oracle verification for screenshots, fingerprinting,
// dedup, scoring, and settlement. Each extracted item settles independently;
// a message with three links yields three submission rows.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	traceOpt := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("participant_id", req.ParticipantID),
	}

	if req.ParticipantID == "" {
		return nil, errutil.BadRequest("participant_id is required", nil)
	}

	participant, _, err := s.ledger.ParticipantByID(ctx, req.ParticipantID)
	if err != nil {
		return nil, err
	}
	if participant == nil || !participant.Active() {
		return nil, errutil.UnknownParticipant("participant is not on the active roster", nil,
			errutil.WithDetails(errutil.Detail{Field: "participant_id", Message: req.ParticipantID}))
	}

	items := s.collect(ctx, req, traceOpt)
	if len(items) == 0 {
		return nil, errutil.EmptyPayload("no links or screenshots to score", nil)
	}

	result := &SubmitResult{Participant: participant}
	for i := range items {
		it := &items[i]
		s.settleFields(ctx, req, it, traceOpt)

		code, err := s.seq.NextSubmissionCode(ctx)
		if err != nil {
			zap.L().Warn("reference code generation failed", append(traceOpt, zap.Error(err))...)
		}

		saved, updated, err := s.ledger.ApplySubmission(ctx, &ledger.Submission{
			ReferenceCode:      code,
			ParticipantID:      req.ParticipantID,
			Platform:           it.platform,
			ContentType:        it.contentType,
			Channel:            req.Channel,
			SourceReference:    it.sourceRef,
			ContentFingerprint: it.fingerprint,
			EngagementMetrics:  it.metrics.JSON(),
			PointsAwarded:      it.points,
			IsDuplicate:        false,
			ValidityStatus:     it.validity,
			OraclePayload:      it.payload,
		})
		if err != nil {
			// Already-settled items stay settled; the client retries the whole
			// message and dedup absorbs the overlap.
			return nil, err
		}

		submissionsTotal.WithLabelValues(saved.ValidityStatus).Inc()
		if saved.PointsAwarded > 0 {
			pointsAwardedTotal.Add(float64(saved.PointsAwarded))
			result.TotalPoints += saved.PointsAwarded
		}
		if updated != nil {
			result.Participant = updated
		}

		result.Items = append(result.Items, ItemResult{
			ID:                 saved.ID,
			ReferenceCode:      saved.ReferenceCode,
			Platform:           saved.Platform,
			ContentType:        saved.ContentType,
			SourceReference:    saved.SourceReference,
			ContentFingerprint: saved.ContentFingerprint,
			PointsAwarded:      saved.PointsAwarded,
			IsDuplicate:        saved.IsDuplicate,
			ValidityStatus:     saved.ValidityStatus,
			EngagementMetrics:  ledger.MetricsFromJSON(saved.EngagementMetrics),
		})
	}

	zap.L().Info("submission settled", append(traceOpt,
		zap.Int("items", len(result.Items)),
		zap.Int64("points", result.TotalPoints),
	)...)

	return result, nil
}

// collect turns the request into pipeline items. Undecodable images are
// dropped here; they can neither be fingerprinted nor analyzed.
func (s *Service) collect(ctx context.Context, req *SubmitRequest, traceOpt []zap.Field) []item {
	var items []item

	for _, u := range ExtractURLs(req.Text, req.URLs) {
		items = append(items, item{url: u})
	}

	for _, img := range req.Images {
		raw, err := img.Bytes()
		if err != nil || len(raw) == 0 {
			zap.L().Warn("dropping undecodable image payload", append(traceOpt,
				zap.String("filename", img.Filename), zap.Error(err))...)
			continue
		}
		items = append(items, item{image: raw, mime: img.MimeType, name: img.Filename})
	}

	return items
}

// settleFields fills in everything ApplySubmission needs for one item.
func (s *Service) settleFields(ctx context.Context, req *SubmitRequest, it *item, traceOpt []zap.Field) {
	if it.url != "" {
		it.platform, it.contentType = DetectPlatform(it.url)
		it.fingerprint = Fingerprint(req.Text, it.url, nil)
		it.sourceRef = it.url
		it.validity = ledger.ValidityAccepted
		it.points = Score(it.contentType, it.metrics, req.IsReply)
		return
	}

	it.fingerprint = Fingerprint(req.Text, "", it.image)
	it.platform = PlatformUnknown
	it.contentType = ContentTypeUnknown
	it.sourceRef = s.archive(ctx, req.ParticipantID, it, traceOpt)

	// An already-seen screenshot skips the oracle; settlement re-checks under
	// lock and records the duplicate row either way.
	dup, err := s.ledger.IsDuplicate(ctx, req.ParticipantID, it.fingerprint)
	if err == nil && dup {
		it.validity = ledger.ValidityRejected
		return
	}

	verdict, err := s.oracle.Analyze(ctx, it.image, req.Text)
	if err != nil {
		oracleFailuresTotal.Inc()
		zap.L().Warn("oracle unavailable, accepting screenshot flagged", append(traceOpt, zap.Error(err))...)
		it.validity = ledger.ValidityFlagged
		return
	}

	it.platform = verdict.Platform
	it.contentType = verdict.ContentType
	it.metrics = verdict.Metrics
	if b, err := json.Marshal(verdict); err == nil {
		it.payload = datatypes.JSON(b)
	}

	if !verdict.IsAuthentic || verdict.Quality < minQualityScore {
		it.validity = ledger.ValidityFlagged
		return
	}

	it.validity = ledger.ValidityAccepted
	it.points = Score(it.contentType, it.metrics, req.IsReply)
}

// archive stores screenshot bytes for later review. Failures degrade to an
// inline reference; evidence storage never blocks intake.
func (s *Service) archive(ctx context.Context, participantID string, it *item, traceOpt []zap.Field) string {
	fallback := "inline:" + it.fingerprint

	if s.blobs == nil || len(it.image) > maxArchivedImageBytes {
		return fallback
	}

	key := "submissions/" + participantID + "/" + it.fingerprint
	if base := filepath.Base(strings.TrimSpace(it.name)); base != "" && base != "." && base != "/" {
		key += "-" + base
	}

	mime := it.mime
	if mime == "" {
		mime = http.DetectContentType(it.image)
	}

	stored, err := s.blobs.Put(ctx, key, it.image, mime)
	if err != nil {
		zap.L().Warn("screenshot archive failed", append(traceOpt, zap.Error(err))...)
		return fallback
	}
	return stored
}
