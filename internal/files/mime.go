package files

import (
	"log"
	"mime"
	"path"
	"strings"
)

func init() {
	ensureMimeType(".dcm", "application/dicom")
	ensureMimeType(".hl7", "x-application/hl7-v2+er7")
	ensureMimeType(".ccd", "application/xml")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("files: failed to register MIME type for %s: %v", ext, err)
	}
}

// ContentType picks the declared media type, falling back to the filename
// extension and finally to application/octet-stream.
func ContentType(declared, filename string) string {
	if mt, _, err := mime.ParseMediaType(strings.TrimSpace(declared)); err == nil && mt != "application/octet-stream" {
		return mt
	}
	if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(filename))); byExt != "" {
		if mt, _, err := mime.ParseMediaType(byExt); err == nil {
			return mt
		}
	}
	return "application/octet-stream"
}
