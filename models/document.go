package models

import "time"

// Document is the metadata record for an uploaded file.
type Document struct {
	TenantID   string    `bson:"tenant_id" json:"tenant_id"`
	Filename   string    `bson:"filename" json:"filename"`
	ChunkCount int       `bson:"chunk_count" json:"chunk_count"`
	UploadedAt time.Time `bson:"uploaded_at" json:"uploaded_at"`
}
