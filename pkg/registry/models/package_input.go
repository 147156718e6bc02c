package models

// PackageInput is the create/update payload. Exactly one of Content and
// URL must be set; both or neither is a validation failure.
type PackageInput struct {
	Content    []byte `json:"Content,omitempty"`
	URL        string `json:"URL,omitempty"`
	GateScript string `json:"GateScript,omitempty"`
}

// UploadRequest is the upload-mode variant, decided once at the boundary.
type UploadRequest struct {
	Content    []byte
	GateScript string
}

// ReferenceRequest is the reference-mode variant.
type ReferenceRequest struct {
	URL        string
	GateScript string
}

// Mode splits the input into its typed variant. Returns ok=false when the
// input is ambiguous (both set) or empty (neither set).
func (in *PackageInput) Mode() (*UploadRequest, *ReferenceRequest, bool) {
	hasContent := len(in.Content) > 0
	hasURL := in.URL != ""
	switch {
	case hasContent && !hasURL:
		return &UploadRequest{Content: in.Content, GateScript: in.GateScript}, nil, true
	case hasURL && !hasContent:
		return nil, &ReferenceRequest{URL: in.URL, GateScript: in.GateScript}, true
	default:
		return nil, nil, false
	}
}
