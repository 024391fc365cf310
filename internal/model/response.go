package model

// ContentResponse is the standard envelope for single-resource endpoints.
type ContentResponse struct {
	Content interface{} `json:"content"`
}

// PagedResponse is the standard envelope for paginated list endpoints.
type PagedResponse struct {
	Content interface{} `json:"content"`
	Meta    PageMeta    `json:"meta"`
}

// PageMeta carries pagination information for list responses. Total is the
// row count before the page window is applied; Count is the number of rows
// actually returned.
type PageMeta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Count int `json:"count"`
}

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}
