package models

import "time"

type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	CreatedAt time.Time `json:"createdAt"`
}

type Subscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Tier      string    `json:"tier"`   // free | basic | creator | viral | admin
	Status    string    `json:"status"` // active | canceled
	CreatedAt time.Time `json:"createdAt"`
}

type Brand struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Name           string    `json:"name"`
	Description    *string   `json:"description,omitempty"`
	LogoURL        *string   `json:"logoUrl,omitempty"`
	Guidelines     *string   `json:"guidelines,omitempty"`
	Industry       *string   `json:"industry,omitempty"`
	TargetAudience *string   `json:"targetAudience,omitempty"`
	BrandColors    []string  `json:"brandColors,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type BrandAsset struct {
	ID        string    `json:"id"`
	BrandID   string    `json:"brandId"`
	FileName  string    `json:"fileName"`
	FileURL   string    `json:"fileUrl"`
	FileType  string    `json:"fileType"`
	FileSize  int64     `json:"fileSize"`
	CreatedAt time.Time `json:"createdAt"`
}

// TrialRequest tracks one free sample ad video from request to delivery.
// Status only moves forward: pending -> ready -> delivered.
type TrialRequest struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	BrandID     string    `json:"brandId"`
	Status      string    `json:"status"`
	RequestedAt time.Time `json:"requestedAt"`
	ReadyAt     time.Time `json:"readyAt"`
}

// AdIdea is one ad concept belonging to a brand. TrialRequestID is set only
// for ideas created by a trial request; user-authored custom ideas leave it nil.
type AdIdea struct {
	ID             string    `json:"id"`
	BrandID        string    `json:"brandId"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	TargetAudience *string   `json:"targetAudience,omitempty"`
	CampaignType   *string   `json:"campaignType,omitempty"`
	Status         string    `json:"status"`
	TrialRequestID *string   `json:"trialRequestId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Download struct {
	ID        string    `json:"id"`
	AdIdeaID  string    `json:"adIdeaId"`
	FileName  string    `json:"fileName"`
	FileURL   string    `json:"fileUrl"`
	FileType  string    `json:"fileType"`
	FileSize  int64     `json:"fileSize"`
	CreatedAt time.Time `json:"createdAt"`
}

type ChatSession struct {
	ID           string    `json:"id"`
	VisitorName  *string   `json:"visitorName,omitempty"`
	VisitorEmail *string   `json:"visitorEmail,omitempty"`
	UserID       *string   `json:"userId,omitempty"`
	IsRegistered bool      `json:"isRegistered"`
	Status       string    `json:"status"` // active | closed
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type ChatMessage struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	SenderType  string    `json:"senderType"` // visitor | agent
	SenderName  string    `json:"senderName"`
	SenderEmail *string   `json:"senderEmail,omitempty"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"createdAt"`
}
