package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProfilePicture is the live picture of one user. The bytes live in the blob
// store under (UserID, BlobID); this record only describes them.
type ProfilePicture struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID   string             `bson:"user_id" json:"userId"` // unique: one live picture per user
	BlobID   string             `bson:"blob_id" json:"blobId"`
	Filename string             `bson:"filename" json:"filename"`   // Original filename
	MimeType string             `bson:"mime_type" json:"mimeType"`  // Of the stored artifacts
	Size     int64              `bson:"size" json:"size"`           // Uploaded size in bytes
	Width    int                `bson:"width" json:"width"`
	Height   int                `bson:"height" json:"height"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}
