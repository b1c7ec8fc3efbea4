package models

// MediaKind identifies which attachment field of a channel message holds the
// stored file.
type MediaKind string

const (
	KindDocument MediaKind = "document"
	KindAudio    MediaKind = "audio"
	KindVideo    MediaKind = "video"
	KindPhoto    MediaKind = "photo"
)

// BlobReference describes one file archived in the storage channel. For
// photos it always points at the highest-resolution variant.
type BlobReference struct {
	ChannelID      int64     `json:"channel_id"`
	MessageID      int64     `json:"message_id"`
	Kind           MediaKind `json:"kind"`
	FileExternalID string    `json:"file_id"`
	FileName       string    `json:"file_name"`
	MimeType       string    `json:"mime_type"`
	SizeBytes      int64     `json:"size"`
}
