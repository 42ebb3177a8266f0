package remote

// listResponse is one page of a message listing.
type listResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	NextPageToken      string `json:"nextPageToken"`
	ResultSizeEstimate int    `json:"resultSizeEstimate"`
}

// messageResponse is a single message with raw content.
type messageResponse struct {
	ID string `json:"id"`
	// InternalDate is milliseconds since the Unix epoch, as a string.
	InternalDate string `json:"internalDate"`
	Subject      string `json:"subject"`
	// Raw is the full RFC 822 message, base64url encoded.
	Raw string `json:"raw"`
}

// errorResponse is the API's error envelope. Both fields are optional.
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
