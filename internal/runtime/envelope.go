package runtime

import (
	"fmt"

	"github.com/oddiya/queueflow/broker"
	errspkg "github.com/oddiya/queueflow/internal/runtime/errors"
	"github.com/oddiya/queueflow/internal/runtime/jsoncodec"
)

// Category identifies a kind of asynchronous work. Every category routes to
// exactly one well-known queue.
type Category string

const (
	CategoryEmail           Category = "email"
	CategoryImageProcessing Category = "image-processing"
	CategoryAnalytics       Category = "analytics"
	CategoryRecommendation  Category = "recommendation"
	CategoryVideoProcessing Category = "video-processing"
)

// categoryAttribute marks every dispatched message with its category so
// consumers can filter without parsing the body.
const categoryAttribute = "queueflow_category"

var queueNames = map[Category]string{
	CategoryEmail:           "oddiya-email-notifications",
	CategoryImageProcessing: "oddiya-image-processing",
	CategoryAnalytics:       "oddiya-analytics-events",
	CategoryRecommendation:  "oddiya-recommendation-updates",
	CategoryVideoProcessing: "oddiya-video-processing",
}

// categoryOrder keeps statistics and health output stable.
var categoryOrder = []Category{
	CategoryEmail,
	CategoryImageProcessing,
	CategoryAnalytics,
	CategoryRecommendation,
	CategoryVideoProcessing,
}

// QueueName resolves the category to its configured queue name. Unknown
// categories are a configuration error, surfaced immediately and never
// retried.
func (c Category) QueueName() (string, error) {
	name, ok := queueNames[c]
	if !ok {
		return "", errspkg.NewConfigValidationError(fmt.Errorf("%w: %q", errspkg.ErrUnknownCategory, string(c)))
	}
	return name, nil
}

// Valid reports whether the category is one of the registered kinds.
func (c Category) Valid() bool {
	_, ok := queueNames[c]
	return ok
}

// Categories returns all registered categories in stable order.
func Categories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// RegisteredQueueNames returns the queue names of all registered categories
// in stable order. Health checks and statistics polling iterate this set.
func RegisteredQueueNames() []string {
	out := make([]string, 0, len(categoryOrder))
	for _, c := range categoryOrder {
		out = append(out, queueNames[c])
	}
	return out
}

// Envelope is a typed message wrapper carrying an identifier,
// category-specific payload, and metadata attributes. The broker never
// inspects the payload; Validate runs before dispatch and its failures never
// reach the broker.
type Envelope interface {
	Category() Category
	MessageID() string
	SetMessageID(id string)
	MessageAttributes() map[string]string
	Validate() error
}

// EnvelopeBase carries the fields shared by every envelope. Embed it in a
// category payload struct.
type EnvelopeBase struct {
	// ID is the unique message identifier. Leave empty to have the
	// dispatcher assign a ULID. Immutable once assigned.
	ID string `json:"message_id,omitempty"`

	// Attributes is optional transport metadata for consumers.
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (b *EnvelopeBase) MessageID() string { return b.ID }

func (b *EnvelopeBase) SetMessageID(id string) {
	if b.ID == "" {
		b.ID = id
	}
}

func (b *EnvelopeBase) MessageAttributes() map[string]string { return b.Attributes }

// EmailMessage requests delivery of a templated email.
type EmailMessage struct {
	EnvelopeBase
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject"`
	Template     string            `json:"template"`
	TemplateData map[string]string `json:"template_data,omitempty"`
}

func (m *EmailMessage) Category() Category { return CategoryEmail }

func (m *EmailMessage) Validate() error {
	if m.Recipient == "" {
		return errspkg.NewValidationError(string(CategoryEmail), "recipient", "is required")
	}
	if m.Subject == "" {
		return errspkg.NewValidationError(string(CategoryEmail), "subject", "is required")
	}
	if m.Template == "" {
		return errspkg.NewValidationError(string(CategoryEmail), "template", "is required")
	}
	return nil
}

// ImageProcessingMessage requests transformations of a stored source image.
type ImageProcessingMessage struct {
	EnvelopeBase
	SourceKey     string   `json:"source_key"`
	TargetFormats []string `json:"target_formats"`
	MaxWidth      int      `json:"max_width,omitempty"`
	MaxHeight     int      `json:"max_height,omitempty"`
}

func (m *ImageProcessingMessage) Category() Category { return CategoryImageProcessing }

func (m *ImageProcessingMessage) Validate() error {
	if m.SourceKey == "" {
		return errspkg.NewValidationError(string(CategoryImageProcessing), "source_key", "is required")
	}
	if len(m.TargetFormats) == 0 {
		return errspkg.NewValidationError(string(CategoryImageProcessing), "target_formats", "must not be empty")
	}
	if m.MaxWidth < 0 || m.MaxHeight < 0 {
		return errspkg.NewValidationError(string(CategoryImageProcessing), "max_width/max_height", "must not be negative")
	}
	return nil
}

// AnalyticsMessage records a product analytics event.
type AnalyticsMessage struct {
	EnvelopeBase
	EventType  string            `json:"event_type"`
	UserID     string            `json:"user_id,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

func (m *AnalyticsMessage) Category() Category { return CategoryAnalytics }

func (m *AnalyticsMessage) Validate() error {
	if m.EventType == "" {
		return errspkg.NewValidationError(string(CategoryAnalytics), "event_type", "is required")
	}
	return nil
}

// RecommendationMessage triggers a recommendation model refresh for a user.
type RecommendationMessage struct {
	EnvelopeBase
	UserID  string `json:"user_id"`
	Trigger string `json:"trigger"`
}

func (m *RecommendationMessage) Category() Category { return CategoryRecommendation }

func (m *RecommendationMessage) Validate() error {
	if m.UserID == "" {
		return errspkg.NewValidationError(string(CategoryRecommendation), "user_id", "is required")
	}
	if m.Trigger == "" {
		return errspkg.NewValidationError(string(CategoryRecommendation), "trigger", "is required")
	}
	return nil
}

// VideoProcessingMessage requests transcoding of an uploaded video.
type VideoProcessingMessage struct {
	EnvelopeBase
	SourceKey    string   `json:"source_key"`
	OutputPrefix string   `json:"output_prefix"`
	Resolutions  []string `json:"resolutions"`
}

func (m *VideoProcessingMessage) Category() Category { return CategoryVideoProcessing }

func (m *VideoProcessingMessage) Validate() error {
	if m.SourceKey == "" {
		return errspkg.NewValidationError(string(CategoryVideoProcessing), "source_key", "is required")
	}
	if m.OutputPrefix == "" {
		return errspkg.NewValidationError(string(CategoryVideoProcessing), "output_prefix", "is required")
	}
	if len(m.Resolutions) == 0 {
		return errspkg.NewValidationError(string(CategoryVideoProcessing), "resolutions", "must not be empty")
	}
	return nil
}

// envelopeToMessage serializes the envelope body and lifts its identifier and
// attributes onto the wire message. The category travels as an attribute so
// consumers can route without unmarshalling.
func envelopeToMessage(env Envelope) (broker.Message, error) {
	body, err := jsoncodec.Marshal(env)
	if err != nil {
		return broker.Message{}, fmt.Errorf("failed to marshal %s envelope: %w", env.Category(), err)
	}

	attrs := make(map[string]string, len(env.MessageAttributes())+1)
	for k, v := range env.MessageAttributes() {
		attrs[k] = v
	}
	attrs[categoryAttribute] = string(env.Category())

	return broker.Message{
		ID:         env.MessageID(),
		Body:       body,
		Attributes: attrs,
	}, nil
}
