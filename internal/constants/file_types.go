package constants

// FileType describes an attachment extension the dashboard knows how to
// preview. Kind matches the attachment type names.
type FileType struct {
	Mime string
	Kind string
}

// FileTypes is keyed by lower-case extension without the dot. Shop
// drawings (dwg) are filed with documents.
var FileTypes = map[string]FileType{
	"jpg":  {"image/jpeg", "image"},
	"jpeg": {"image/jpeg", "image"},
	"png":  {"image/png", "image"},
	"webp": {"image/webp", "image"},
	"heic": {"image/heic", "image"},

	"pdf":  {"application/pdf", "document"},
	"docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "document"},
	"xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "document"},
	"csv":  {"text/csv", "document"},
	"txt":  {"text/plain", "document"},
	"dwg":  {"image/vnd.dwg", "document"},

	"ogg": {"audio/ogg", "audio"},
	"mp3": {"audio/mpeg", "audio"},
	"m4a": {"audio/mp4", "audio"},
}

const DefaultMimeType = "application/octet-stream"
