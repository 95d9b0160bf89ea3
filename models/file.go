package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// File is the metadata record for one uploaded blob. Records are immutable
// once created; removal deletes the record outright, there is no soft delete.
type File struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID     string             `bson:"owner_id" json:"owner_id"`
	Name        string             `bson:"name" json:"name"`
	ContentType string             `bson:"content_type" json:"content_type"`
	Size        int64              `bson:"size" json:"size"`
	UploadTime  time.Time          `bson:"upload_time" json:"upload_time"`
	Locator     string             `bson:"locator" json:"-"`
	DownloadURL string             `bson:"download_url" json:"download_url"`
}
