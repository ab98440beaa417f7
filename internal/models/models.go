package models

import (
	"time"
)

// DocumentKind is the declared source kind of an ingested artifact.
type DocumentKind string

const (
	KindText  DocumentKind = "text"
	KindImage DocumentKind = "image"
	KindPDF   DocumentKind = "pdf"
	KindNote  DocumentKind = "note"
	KindURL   DocumentKind = "url"
)

// DocumentStatus is the processing state of a document.
//
// uploading -> indexing -> ready | failed; ready/failed re-enter indexing only on an explicit re-run.
type DocumentStatus string

const (
	StatusUploading DocumentStatus = "uploading"
	StatusIndexing  DocumentStatus = "indexing"
	StatusReady     DocumentStatus = "ready"
	StatusFailed    DocumentStatus = "failed"
)

// Terminal reports whether the status only changes on an explicit re-run.
func (s DocumentStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Space is an owner's knowledge container. Description doubles as the owner's
// instructions to the assistant.
type Space struct {
	ID              string    `db:"id" json:"id"`
	OwnerID         string    `db:"owner_id" json:"owner_id"`
	Name            string    `db:"name" json:"name"`
	Description     string    `db:"description" json:"description"`
	Persona         *string   `db:"persona" json:"persona,omitempty"`
	Tone            *string   `db:"tone" json:"tone,omitempty"`
	Audience        *string   `db:"audience" json:"audience,omitempty"`
	FallbackMessage *string   `db:"fallback_message" json:"fallback_message,omitempty"`
	IndexHandle     *string   `db:"index_handle" json:"index_handle,omitempty"` // remote vector store id, set once
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// HasIndex reports whether the remote index has been created for the space.
func (s *Space) HasIndex() bool {
	return s.IndexHandle != nil && *s.IndexHandle != ""
}

// Document represents one uploaded, pasted or scraped artifact.
type Document struct {
	ID            string         `db:"id" json:"id"`
	SpaceID       string         `db:"space_id" json:"space_id"`
	OwnerID       string         `db:"owner_id" json:"owner_id"`
	FileName      string         `db:"file_name" json:"file_name"`
	Kind          DocumentKind   `db:"kind" json:"kind"`
	StoragePath   *string        `db:"storage_path" json:"storage_path,omitempty"` // object key of the raw bytes
	SourceURL     *string        `db:"source_url" json:"source_url,omitempty"`     // url-scrape only
	Content       *string        `db:"content" json:"content,omitempty"`           // note text
	ContentType   string         `db:"content_type" json:"content_type"`
	ExtractedText *string        `db:"extracted_text" json:"extracted_text,omitempty"` // truncated preview
	Status        DocumentStatus `db:"status" json:"status"`
	ErrorMessage  *string        `db:"error_message" json:"error_message,omitempty"`
	IndexFileID   *string        `db:"index_file_id" json:"index_file_id,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// StatusUpdate is written to a document row in a single update. Nil pointers
// are stored as NULL.
type StatusUpdate struct {
	Status        DocumentStatus
	ErrorMessage  *string
	ExtractedText *string
	IndexFileID   *string
}

// DocumentChunk represents one text chunk from a document.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	SpaceID    string    `db:"space_id" json:"space_id"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"embedding,omitempty"` // pgvector column, nullable
	Position   int       `db:"position" json:"position"`
	TokenCount int       `db:"token_count" json:"token_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ShareLink grants anonymous chat access to one space.
type ShareLink struct {
	ID         string     `db:"id" json:"id"`
	SpaceID    string     `db:"space_id" json:"space_id"`
	Token      string     `db:"token" json:"token"`
	Label      string     `db:"label" json:"label"`
	Revoked    bool       `db:"revoked" json:"revoked"`
	ViewCount  int        `db:"view_count" json:"view_count"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatTurn is one message of a visitor conversation.
type ChatTurn struct {
	Role      ChatRole   `json:"role"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
}

// Citation points at the indexed file an answer fragment was grounded on.
type Citation struct {
	FileID   string `json:"file_id,omitempty"`
	Filename string `json:"filename,omitempty"`
	Index    int    `json:"index,omitempty"`
}

// Helper for the many nullable text columns.
func StringPtr(s string) *string {
	return &s
}
