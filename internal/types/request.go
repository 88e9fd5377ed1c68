package types

// RequestSend is the body of POST /send.
type RequestSend struct {
	Number  string `json:"number" form:"number"`
	Message string `json:"message" form:"message"`
}
