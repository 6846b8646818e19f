package models

type OCRResult struct {
	Success    bool     `json:"success"`
	Text       string   `json:"text,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Pages      int      `json:"pages"`
	Filename   string   `json:"filename"`
	FileType   string   `json:"fileType"`
	Error      string   `json:"error,omitempty"`
}
