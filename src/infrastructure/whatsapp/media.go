package whatsapp

import (
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/gabriel-vasile/mimetype"
)

// DetectMediaKind maps a media link or filename to the WhatsApp payload kind
// (image, video, audio or document) based on its extension. Anything
// unrecognized is sent as a document.
func DetectMediaKind(link string) string {
	trimmed := link
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	dot := strings.LastIndex(trimmed, ".")
	if dot < 0 {
		return "document"
	}
	return kindFromMime(mimetype.Lookup(mimeByExtension(trimmed[dot:])))
}

// DetectMediaKindFromFile sniffs a local attachment's content. The path is
// resolved inside the attachment directory so a crafted filename cannot
// escape it.
func DetectMediaKindFromFile(attachmentDir string, filename string) (string, error) {
	path, err := securejoin.SecureJoin(attachmentDir, filename)
	if err != nil {
		return "", err
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	return kindFromMime(mtype), nil
}

func kindFromMime(mtype *mimetype.MIME) string {
	if mtype == nil {
		return "document"
	}
	switch {
	case strings.HasPrefix(mtype.String(), "image/"):
		return "image"
	case strings.HasPrefix(mtype.String(), "video/"):
		return "video"
	case strings.HasPrefix(mtype.String(), "audio/"):
		return "audio"
	}
	return "document"
}

func mimeByExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".3gp":
		return "video/3gpp"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	case ".aac":
		return "audio/aac"
	case ".pdf":
		return "application/pdf"
	}
	return "application/octet-stream"
}
