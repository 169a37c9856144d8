// Package types provides shared domain types used across doorstep packages.
// This package exists to break import cycles between the lifecycle manager,
// router, tools, and transport layers. Types here are foundational data
// structures with no complex dependencies.
package types

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a new document id. Mongo-style ObjectIds from the legacy
// system are replaced by UUIDs throughout.
func NewID() string {
	return uuid.NewString()
}

// Frequency is how often a neighborhood receives its newsletter.
type Frequency string

const (
	FrequencyWeekly  Frequency = "Weekly"
	FrequencyMonthly Frequency = "Monthly"
)

// Valid reports whether f is a recognised frequency.
func (f Frequency) Valid() bool {
	return f == FrequencyWeekly || f == FrequencyMonthly
}

// Window returns the number of days ahead the frequency covers when
// searching for events.
func (f Frequency) Window() int {
	if f == FrequencyMonthly {
		return 30
	}
	return 7
}

// ManagerInfo identifies the person responsible for a neighborhood.
type ManagerInfo struct {
	Email    string `json:"email"`
	WhatsApp string `json:"whatsapp,omitempty"`
}

// BrandingInfo carries the presentation identity stamped on newsletters.
type BrandingInfo struct {
	CompanyName       string `json:"company_name"`
	FooterDescription string `json:"footer_description"`
	PrimaryColor      string `json:"primary_color,omitempty"`
	LogoURL           string `json:"logo_url,omitempty"`
}

// Neighborhood is a community served by one recurring newsletter
// configuration. It owns zero-to-many conversations and newsletters.
type Neighborhood struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Postcode  string       `json:"postcode"`
	Frequency Frequency    `json:"frequency"`
	Info      string       `json:"info,omitempty"`
	Manager   ManagerInfo  `json:"manager"`
	Radius    float64      `json:"radius"`
	Branding  BrandingInfo `json:"branding"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	IsActive  bool         `json:"is_active"`
}

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a recognised role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Message is one entry in a conversation. Messages are append-only; they
// are never mutated or deleted once written.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation is the chat session producing or refining a newsletter.
// Closed permanently once its newsletter reaches a terminal status.
type Conversation struct {
	ID             string             `json:"id"`
	NeighborhoodID string             `json:"neighborhood_id"`
	NewsletterID   string             `json:"newsletter_id,omitempty"`
	Messages       []Message          `json:"messages"`
	Status         ConversationStatus `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	ClosedAt       *time.Time         `json:"closed_at,omitempty"`
}

// Event is a single community event embedded in newsletter content.
// Verified is true only when the verification gate found a corroborating
// source whose text matches the claimed date and location; unverified
// events still render, flagged for the UI.
type Event struct {
	Title          string   `json:"event_title"`
	Description    string   `json:"description"`
	Location       string   `json:"location"`
	Cost           string   `json:"cost"`
	Date           string   `json:"date"`
	BookingDetails string   `json:"booking_details,omitempty"`
	Images         []string `json:"images"`
	AdditionalInfo string   `json:"additional_info,omitempty"`
	IsRecurring    bool     `json:"is_recurring"`
	Tags           []string `json:"tags"`
	SourceURL      string   `json:"source_url,omitempty"`
	Verified       bool     `json:"verified"`
}

// EventDraft is a candidate event before verification. Drafts carry the
// URL they were extracted from, but the source URL only migrates onto the
// final Event when verification corroborates it.
type EventDraft struct {
	Title          string   `json:"event_title"`
	Description    string   `json:"description"`
	Location       string   `json:"location"`
	Cost           string   `json:"cost"`
	Date           string   `json:"date"`
	BookingDetails string   `json:"booking_details,omitempty"`
	Images         []string `json:"images"`
	Tags           []string `json:"tags"`
	CandidateURL   string   `json:"candidate_url,omitempty"`
}

// Header is the newsletter masthead.
type Header struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	IssueNumber string `json:"issue_number,omitempty"`
	Location    string `json:"location"`
}

// MainChannel carries the welcome and community-update sections.
type MainChannel struct {
	WelcomeMessage   string   `json:"welcome_message"`
	CommunityUpdates []string `json:"community_updates,omitempty"`
	FeaturedMessage  string   `json:"featured_message,omitempty"`
}

// NewsletterContent is the composed document a newsletter renders from.
// Schedules map day or date labels to event titles.
type NewsletterContent struct {
	Header          Header              `json:"header"`
	MainChannel     MainChannel         `json:"main_channel"`
	WeeklySchedule  map[string][]string `json:"weekly_schedule,omitempty"`
	MonthlySchedule map[string][]string `json:"monthly_schedule,omitempty"`
	Highlights      []string            `json:"newsletter_highlights,omitempty"`
	Events          []Event             `json:"events"`
}

// NewsletterMetadata records how and when content was generated.
type NewsletterMetadata struct {
	Location           string    `json:"location"`
	Postcode           string    `json:"postcode"`
	Radius             float64   `json:"radius"`
	GenerationDate     time.Time `json:"generation_date"`
	TemplateVersion    string    `json:"template_version"`
	SourceCount        int       `json:"source_count"`
	VerificationStatus string    `json:"verification_status"`
}

// NewsletterStatus is a state in the newsletter lifecycle machine:
//
//	generating → generated → {accepted | rejected}
//
// with generating → error on job failure and generated → generating only
// for explicit regeneration. accepted and rejected are terminal.
type NewsletterStatus string

const (
	StatusGenerating NewsletterStatus = "generating"
	StatusGenerated  NewsletterStatus = "generated"
	StatusAccepted   NewsletterStatus = "accepted"
	StatusRejected   NewsletterStatus = "rejected"
	StatusError      NewsletterStatus = "error"
)

// Terminal reports whether no further mutation is permitted.
func (s NewsletterStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Newsletter is the central mutable artifact. Version increments on every
// content mutation under compare-and-swap discipline; no two concurrent
// mutations may observe and increment the same version.
type Newsletter struct {
	ID             string             `json:"id"`
	NeighborhoodID string             `json:"neighborhood_id"`
	ConversationID string             `json:"conversation_id,omitempty"`
	Metadata       NewsletterMetadata `json:"newsletter_metadata"`
	Content        NewsletterContent  `json:"content"`
	Status         NewsletterStatus   `json:"status"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	Version        int64              `json:"version"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}
