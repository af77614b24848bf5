package api

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// LoginRequest accepts an email address or a username in Login.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type SendMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}
