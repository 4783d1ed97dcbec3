package domain

import "time"

// LeadStatus is the outreach lifecycle status of a lead. Imports always
// create leads in LeadStatusNew.
type LeadStatus string

const (
	LeadStatusNew          LeadStatus = "NEW"
	LeadStatusContacted    LeadStatus = "CONTACTED"
	LeadStatusResponded    LeadStatus = "RESPONDED"
	LeadStatusQualified    LeadStatus = "QUALIFIED"
	LeadStatusDisqualified LeadStatus = "DISQUALIFIED"
	LeadStatusConverted    LeadStatus = "CONVERTED"
)

// AllLeadStatuses lists every LeadStatus in lifecycle order.
var AllLeadStatuses = []LeadStatus{
	LeadStatusNew,
	LeadStatusContacted,
	LeadStatusResponded,
	LeadStatusQualified,
	LeadStatusDisqualified,
	LeadStatusConverted,
}

// Valid reports whether s is a known lead status.
func (s LeadStatus) Valid() bool {
	for _, v := range AllLeadStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// InstagramLead is one imported profile record. Every lead belongs to exactly
// one ApolloBatch.
type InstagramLead struct {
	ID string `gorm:"type:text;primaryKey" json:"id"`

	// Profile identity
	ProfileURL  string  `gorm:"type:text;not null" json:"profile_url"`
	ProfileName string  `gorm:"type:text;not null;index:idx_instagram_leads_profile_name" json:"profile_name"`
	FullName    *string `gorm:"type:text" json:"full_name,omitempty"`
	Bio         *string `gorm:"type:text" json:"bio,omitempty"`
	InstagramID *string `gorm:"type:text" json:"instagram_id,omitempty"`
	ImageURL    *string `gorm:"type:text" json:"image_url,omitempty"`

	// Metrics
	FollowersCount       *float64 `gorm:"index:idx_instagram_leads_followers" json:"followers_count,omitempty"`
	FollowingCount       *float64 `json:"following_count,omitempty"`
	PostsCount           *float64 `json:"posts_count,omitempty"`
	MutualFollowersCount *float64 `json:"mutual_followers_count,omitempty"`

	// Flags
	IsBusinessAccount bool `gorm:"default:false" json:"is_business_account"`
	IsPrivate         bool `gorm:"default:false" json:"is_private"`
	IsVerified        bool `gorm:"default:false" json:"is_verified"`
	JoinedRecently    bool `gorm:"default:false" json:"joined_recently"`
	BlockedByViewer   bool `gorm:"default:false" json:"blocked_by_viewer"`
	FollowedByViewer  bool `gorm:"default:false" json:"followed_by_viewer"`
	FollowsViewer     bool `gorm:"default:false" json:"follows_viewer"`
	RequestedByViewer bool `gorm:"default:false" json:"requested_by_viewer"`

	// Business
	Category              *string `gorm:"type:text" json:"category,omitempty"`
	BusinessCategory      *string `gorm:"type:text" json:"business_category,omitempty"`
	BusinessStreetAddress *string `gorm:"type:text" json:"business_street_address,omitempty"`
	BusinessZipCode       *string `gorm:"type:text" json:"business_zip_code,omitempty"`
	BusinessCity          *string `gorm:"type:text" json:"business_city,omitempty"`

	// Contact
	Website          *string `gorm:"type:text" json:"website,omitempty"`
	Email            *string `gorm:"type:text" json:"email,omitempty"`
	AlternativeEmail *string `gorm:"type:text" json:"alternative_email,omitempty"`
	PhoneNumber      *string `gorm:"type:text" json:"phone_number,omitempty"`
	Snapchat         *string `gorm:"type:text" json:"snapchat,omitempty"`

	// Provenance
	Query     *string    `gorm:"type:text" json:"query,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Error     *string    `gorm:"type:text" json:"error,omitempty"`

	Status      LeadStatus   `gorm:"type:text;index:idx_instagram_leads_status;default:NEW" json:"status"`
	Notes       *string      `gorm:"type:text" json:"notes,omitempty"`
	ProcessedAt *time.Time   `json:"processed_at,omitempty"`
	BatchID     string       `gorm:"type:text;not null;index:idx_instagram_leads_batch" json:"batch_id"`
	Batch       *ApolloBatch `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE" json:"batch,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TableName returns the database table name for InstagramLead.
func (InstagramLead) TableName() string {
	return "instagram_leads"
}
