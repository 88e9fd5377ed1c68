package types

type ResponseSend struct {
	Sent      bool   `json:"sent"`
	Skipped   bool   `json:"skipped,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	To        string `json:"to"`
}

type ResponseMissingFields struct {
	Missing []string `json:"missing"`
}

type ResponseCheckPhone struct {
	IsRegistered bool   `json:"is_registered"`
	JID          string `json:"jid"`
}

type ResponseDevice struct {
	JID       string `json:"jid,omitempty"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	LoggedIn  bool   `json:"logged_in"`
}
